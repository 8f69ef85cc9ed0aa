package mysql

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
)

// ResponseRepository archives accepted responses. Rows are insert-only;
// a second Save of the same id is a no-op.
type ResponseRepository struct {
	db *sql.DB
}

func NewResponseRepository(db *sql.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

const createResponses = `
CREATE TABLE IF NOT EXISTS survey_responses (
  submission_id  VARCHAR(64)  NOT NULL PRIMARY KEY,
  participant_id VARCHAR(128) NOT NULL,
  session_id     VARCHAR(256) NOT NULL DEFAULT '',
  age            VARCHAR(256) NOT NULL DEFAULT '',
  gender         VARCHAR(256) NOT NULL DEFAULT '',
  education      VARCHAR(256) NOT NULL DEFAULT '',
  submitted_at   DATETIME(6)  NOT NULL,
  total_score    INT          NOT NULL,
  average_score  DOUBLE       NOT NULL,
  answered       INT          NOT NULL,
  scores         JSON         NOT NULL,
  answers        JSON         NOT NULL,
  KEY idx_survey_responses_submitted_at (submitted_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

// Migrate creates the archive table when missing.
func (r *ResponseRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createResponses); err != nil {
		return fmt.Errorf("create survey_responses: %w", err)
	}
	return nil
}

// Save inserts one response and reports whether a row was written.
func (r *ResponseRepository) Save(ctx context.Context, s *domain.Response) (bool, error) {
	const q = `
INSERT IGNORE INTO survey_responses
(submission_id, participant_id, session_id, age, gender, education,
 submitted_at, total_score, average_score, answered, scores, answers)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?);
`
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

// Count returns the number of archived responses.
func (r *ResponseRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM survey_responses`).Scan(&n)
	return n, err
}

func (r *ResponseRepository) Name() string { return "mysql" }

func (r *ResponseRepository) Deliver(ctx context.Context, s *domain.Response) error {
	_, err := r.Save(ctx, s)
	return err
}
