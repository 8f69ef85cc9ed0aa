package store

import (
	"fmt"
	"strconv"
	"time"

	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
)

var metaColumns = []string{
	"submission_id",
	"participant_id",
	"session_id",
	"age",
	"gender",
	"education",
	"submission_timestamp",
	"total_score",
	"average_score",
}

// Columns returns the fixed CSV header for a schema: metadata, one score
// column per subscale, then a numeric and a text column per question.
func Columns(schema *domain.Schema) []string {
	cols := append([]string(nil), metaColumns...)
	for _, sub := range schema.Subscales() {
		cols = append(cols, sub+"_score")
	}
	for _, q := range schema.Questions() {
		cols = append(cols, string(q.ID)+"_numeric", string(q.ID)+"_text")
	}
	return cols
}

func encodeRecord(schema *domain.Schema, r *domain.Response) []string {
	p := r.Participant
	rec := []string{
		string(r.ID),
		p.ParticipantID,
		p.SessionID,
		p.Age,
		p.Gender,
		p.Education,
		r.SubmittedAt.UTC().Format(time.RFC3339Nano),
		"",
		"",
	}
	if r.Scores.Scored > 0 {
		rec[7] = strconv.Itoa(r.Scores.Total)
		rec[8] = strconv.FormatFloat(r.Scores.Average, 'f', 2, 64)
	}
	for _, sub := range schema.Subscales() {
		v, ok := r.Scores.Subscales[sub]
		if !ok {
			rec = append(rec, "")
			continue
		}
		rec = append(rec, strconv.Itoa(v))
	}
	for _, q := range schema.Questions() {
		a, ok := r.Answers[q.ID]
		if !ok {
			rec = append(rec, "", "")
			continue
		}
		numeric := ""
		if a.Value != nil {
			numeric = strconv.Itoa(*a.Value)
		}
		rec = append(rec, numeric, a.Text)
	}
	return rec
}

func decodeRecord(schema *domain.Schema, rec []string) (*domain.Response, error) {
	ts, err := time.Parse(time.RFC3339Nano, rec[6])
	if err != nil {
		return nil, fmt.Errorf("submission %s: bad timestamp %q: %w", rec[0], rec[6], err)
	}
	r := &domain.Response{
		ID:          domain.ResponseID(rec[0]),
		SubmittedAt: ts,
		Participant: domain.Participant{
			ParticipantID: rec[1],
			SessionID:     rec[2],
			Age:           rec[3],
			Gender:        rec[4],
			Education:     rec[5],
		},
		Answers: map[domain.QuestionID]domain.Answer{},
	}
	if rec[7] != "" {
		if r.Scores.Total, err = strconv.Atoi(rec[7]); err != nil {
			return nil, fmt.Errorf("submission %s: bad total_score: %w", rec[0], err)
		}
	}
	if rec[8] != "" {
		if r.Scores.Average, err = strconv.ParseFloat(rec[8], 64); err != nil {
			return nil, fmt.Errorf("submission %s: bad average_score: %w", rec[0], err)
		}
	}

	i := len(metaColumns)
	for _, sub := range schema.Subscales() {
		if rec[i] != "" {
			v, err := strconv.Atoi(rec[i])
			if err != nil {
				return nil, fmt.Errorf("submission %s: bad %s_score: %w", rec[0], sub, err)
			}
			if r.Scores.Subscales == nil {
				r.Scores.Subscales = map[string]int{}
			}
			r.Scores.Subscales[sub] = v
		}
		i++
	}
	for _, q := range schema.Questions() {
		numeric, text := rec[i], rec[i+1]
		i += 2
		if numeric == "" && text == "" {
			continue
		}
		a := domain.Answer{Text: text}
		if numeric != "" {
			v, err := strconv.Atoi(numeric)
			if err != nil {
				return nil, fmt.Errorf("submission %s: bad %s_numeric: %w", rec[0], q.ID, err)
			}
			a.Value = &v
			r.Scores.Scored++
		}
		r.Answers[q.ID] = a
	}
	return r, nil
}
