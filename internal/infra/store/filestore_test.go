package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
)

func openTestStore(t *testing.T, dir string) *FileStore {
	t.Helper()
	s, err := Open(domain.DefaultSchema(), Options{DataDir: dir, Sync: true}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newResponse(schema *domain.Schema, id string, at time.Time, values map[string]int) *domain.Response {
	answers := map[domain.QuestionID]domain.Answer{}
	for q, v := range values {
		v := v
		answers[domain.QuestionID(q)] = domain.Answer{Value: &v, Text: schema.Scale().Labels[v]}
	}
	return &domain.Response{
		ID:          domain.ResponseID(id),
		SubmittedAt: at,
		Participant: domain.Participant{ParticipantID: "P_" + id, SessionID: "s-" + id, Age: "31", Gender: "f", Education: "BSc, Psychology"},
		Answers:     answers,
		Scores:      schema.Score(answers),
	}
}

func TestOpen_WritesHeader(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)

	b, err := os.ReadFile(s.CSVPath())
	require.NoError(t, err)
	header, err := csv.NewReader(bytes.NewReader(b)).Read()
	require.NoError(t, err)

	assert.Equal(t, Columns(domain.DefaultSchema()), header)
	assert.Equal(t, "submission_id", header[0])
	assert.Contains(t, header, "creativity_score")
	assert.Contains(t, header, "Q20_text")
	assert.Len(t, header, len(metaColumns)+4+40)

	info, err := os.Stat(filepath.Join(dir, "survey_responses"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestAppendReadAll_RoundTrip(t *testing.T) {
	schema := domain.DefaultSchema()
	s := openTestStore(t, t.TempDir())
	ctx := context.Background()

	at := time.Date(2026, 5, 4, 10, 30, 15, 123456789, time.UTC)
	r1 := newResponse(schema, "SUB_1", at, map[string]int{"Q1": 5, "Q2": 1, "Q20": 3})
	r1.Answers["Q3"] = domain.Answer{Text: "line one\nline \"two\""}
	r2 := newResponse(schema, "SUB_2", at.Add(time.Second), map[string]int{"Q4": 2})

	require.NoError(t, s.Append(ctx, r1))
	require.NoError(t, s.Append(ctx, r2))

	all, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	got := all[0]
	assert.Equal(t, r1.ID, got.ID)
	assert.True(t, got.SubmittedAt.Equal(at))
	assert.Equal(t, r1.Participant, got.Participant)
	assert.Equal(t, r1.Answers, got.Answers)
	assert.Equal(t, r1.Scores.Total, got.Scores.Total)
	assert.Equal(t, r1.Scores.Average, got.Scores.Average)
	assert.Equal(t, r1.Scores.Subscales, got.Scores.Subscales)
	assert.Equal(t, r1.Scores.Scored, got.Scores.Scored)

	assert.Equal(t, r2.ID, all[1].ID)

	backup, err := s.LoadBackup("SUB_1")
	require.NoError(t, err)
	assert.Equal(t, r1.Answers, backup.Answers)
	assert.True(t, backup.SubmittedAt.Equal(at))

	ids, err := s.Backups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ResponseID{"SUB_1", "SUB_2"}, ids)
}

func TestReopen_KeepsRows(t *testing.T) {
	schema := domain.DefaultSchema()
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(schema, Options{DataDir: dir}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, newResponse(schema, "SUB_a", time.Now().UTC(), map[string]int{"Q1": 4})))
	require.NoError(t, s.Close())

	s2 := openTestStore(t, dir)
	require.NoError(t, s2.Append(ctx, newResponse(schema, "SUB_b", time.Now().UTC(), map[string]int{"Q1": 2})))

	all, err := s2.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.ResponseID("SUB_a"), all[0].ID)
	assert.Equal(t, domain.ResponseID("SUB_b"), all[1].ID)
}

func TestOpen_SchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "survey_responses.csv"), []byte("submission_id,other\n"), 0o644))

	_, err := Open(domain.DefaultSchema(), Options{DataDir: dir}, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestAppend_InvalidIDLeavesNoRow(t *testing.T) {
	schema := domain.DefaultSchema()
	s := openTestStore(t, t.TempDir())
	ctx := context.Background()

	err := s.Append(ctx, newResponse(schema, "../escape", time.Now(), map[string]int{"Q1": 1}))
	require.Error(t, err)
	assert.True(t, domain.IsPersistence(err))

	all, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAppend_BackupFailureLeavesNoRow(t *testing.T) {
	schema := domain.DefaultSchema()
	dir := t.TempDir()
	s := openTestStore(t, dir)
	ctx := context.Background()

	// Replace the backup directory with a file so the backup write fails.
	backups := filepath.Join(dir, "survey_responses")
	require.NoError(t, os.RemoveAll(backups))
	require.NoError(t, os.WriteFile(backups, []byte("x"), 0o644))

	err := s.Append(ctx, newResponse(schema, "SUB_x", time.Now(), map[string]int{"Q1": 1}))
	require.Error(t, err)
	assert.True(t, domain.IsPersistence(err))

	all, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAppend_AfterClose(t *testing.T) {
	schema := domain.DefaultSchema()
	s, err := Open(schema, Options{DataDir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Append(context.Background(), newResponse(schema, "SUB_1", time.Now(), map[string]int{"Q1": 1}))
	assert.ErrorIs(t, err, domain.ErrStoreClosed)

	_, err = s.ReadAll(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
}

func TestAppend_Concurrent(t *testing.T) {
	schema := domain.DefaultSchema()
	s := openTestStore(t, t.TempDir())
	ctx := context.Background()

	const n = 50
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			r := newResponse(schema, fmt.Sprintf("SUB_%02d", i), time.Now().UTC(), map[string]int{"Q1": i%5 + 1, "Q7": 3})
			r.Answers["Q3"] = domain.Answer{Text: strings.Repeat("long, \"quoted\" text ", 200)}
			return s.Append(ctx, r)
		})
	}
	// Readers race the writers; every snapshot must parse cleanly.
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := s.ReadAll(ctx)
			return err
		})
	}
	require.NoError(t, g.Wait())

	all, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, n)

	seen := map[domain.ResponseID]bool{}
	for _, r := range all {
		seen[r.ID] = true
	}
	assert.Len(t, seen, n)

	var buf bytes.Buffer
	_, err = s.WriteCSV(ctx, &buf)
	require.NoError(t, err)
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, n+1)
}

func TestWriteCSV_Verbatim(t *testing.T) {
	schema := domain.DefaultSchema()
	s := openTestStore(t, t.TempDir())
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, newResponse(schema, "SUB_1", time.Now().UTC(), map[string]int{"Q1": 3})))

	var buf bytes.Buffer
	n, err := s.WriteCSV(ctx, &buf)
	require.NoError(t, err)

	onDisk, err := os.ReadFile(s.CSVPath())
	require.NoError(t, err)
	assert.Equal(t, int64(len(onDisk)), n)
	assert.Equal(t, onDisk, buf.Bytes())
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	assert.NoError(t, s.Check(context.Background()))

	require.NoError(t, os.Remove(s.CSVPath()))
	assert.Error(t, s.Check(context.Background()))
}
