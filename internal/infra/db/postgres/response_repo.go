package postgres

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
)

type ResponseRepository struct{ db *sql.DB }

func NewResponseRepository(db *sql.DB) *ResponseRepository { return &ResponseRepository{db: db} }

const createResponses = `
CREATE TABLE IF NOT EXISTS survey_responses (
  submission_id  TEXT PRIMARY KEY,
  participant_id TEXT NOT NULL,
  session_id     TEXT NOT NULL DEFAULT '',
  age            TEXT NOT NULL DEFAULT '',
  gender         TEXT NOT NULL DEFAULT '',
  education      TEXT NOT NULL DEFAULT '',
  submitted_at   TIMESTAMPTZ NOT NULL,
  total_score    INTEGER NOT NULL,
  average_score  DOUBLE PRECISION NOT NULL,
  answered       INTEGER NOT NULL,
  scores         JSONB NOT NULL,
  answers        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_survey_responses_submitted_at ON survey_responses (submitted_at);`

func (r *ResponseRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createResponses); err != nil {
		return fmt.Errorf("create survey_responses: %w", err)
	}
	return nil
}

// Save inserts one response; an existing id is left untouched.
func (r *ResponseRepository) Save(ctx context.Context, s *domain.Response) (bool, error) {
	const q = `
INSERT INTO survey_responses
(submission_id, participant_id, session_id, age, gender, education,
 submitted_at, total_score, average_score, answered, scores, answers)
VALUES ($1,$2,$3,$4,$5,$6,
        $7,$8,$9,$10,$11,$12)
ON CONFLICT (submission_id) DO NOTHING;`

	scores, err := jsonText(s.Scores.Subscales)
	if err != nil {
		return false, fmt.Errorf("encode scores: %w", err)
	}
	answers, err := jsonText(s.Answers)
	if err != nil {
		return false, fmt.Errorf("encode answers: %w", err)
	}

	p := s.Participant
	res, err := r.db.ExecContext(ctx, q,
		string(s.ID), stringOrDash(p.ParticipantID), p.SessionID, p.Age, p.Gender, p.Education,
		s.SubmittedAt.UTC(), s.Scores.Total, s.Scores.Average, s.Scores.Scored, scores, answers,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ResponseRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM survey_responses`).Scan(&n)
	return n, err
}

func (r *ResponseRepository) Name() string { return "postgres" }

func (r *ResponseRepository) Deliver(ctx context.Context, s *domain.Response) error {
	_, err := r.Save(ctx, s)
	return err
}
