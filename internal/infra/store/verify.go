package store

import (
	"context"
	"errors"
	"os"

	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
)

// VerifyReport compares CSV rows with JSON backups.
type VerifyReport struct {
	Rows           int                 `json:"rows"`
	Backups        int                 `json:"backups"`
	MissingBackups []domain.ResponseID `json:"missing_backups,omitempty"`
	OrphanBackups  []domain.ResponseID `json:"orphan_backups,omitempty"`
	Mismatched     []domain.ResponseID `json:"mismatched,omitempty"`
	DuplicateRows  []domain.ResponseID `json:"duplicate_rows,omitempty"`
}

func (r *VerifyReport) OK() bool {
	return len(r.MissingBackups) == 0 && len(r.OrphanBackups) == 0 &&
		len(r.Mismatched) == 0 && len(r.DuplicateRows) == 0
}

// Verify checks that every row has a matching backup and vice versa.
// Orphan backups are left behind by a crash between the two writes.
func (s *FileStore) Verify(ctx context.Context) (*VerifyReport, error) {
	rows, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := s.Backups(ctx)
	if err != nil {
		return nil, err
	}

	rep := &VerifyReport{Rows: len(rows), Backups: len(ids)}
	inCSV := make(map[domain.ResponseID]bool, len(rows))
	for _, row := range rows {
		if inCSV[row.ID] {
			rep.DuplicateRows = append(rep.DuplicateRows, row.ID)
			continue
		}
		inCSV[row.ID] = true

		backup, err := s.LoadBackup(row.ID)
		if errors.Is(err, os.ErrNotExist) {
			rep.MissingBackups = append(rep.MissingBackups, row.ID)
			continue
		}
		if err != nil || !sameResponse(row, backup) {
			rep.Mismatched = append(rep.Mismatched, row.ID)
		}
	}
	for _, id := range ids {
		if !inCSV[id] {
			rep.OrphanBackups = append(rep.OrphanBackups, id)
		}
	}
	return rep, nil
}

func sameResponse(a, b *domain.Response) bool {
	if a.ID != b.ID || !a.SubmittedAt.Equal(b.SubmittedAt) || a.Participant != b.Participant {
		return false
	}
	if len(a.Answers) != len(b.Answers) {
		return false
	}
	for q, x := range a.Answers {
		y, ok := b.Answers[q]
		if !ok || x.Text != y.Text || (x.Value == nil) != (y.Value == nil) {
			return false
		}
		if x.Value != nil && *x.Value != *y.Value {
			return false
		}
	}
	return a.Scores.Total == b.Scores.Total
}
