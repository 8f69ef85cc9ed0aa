package surveys

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/survey-intake/internal/application"
	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
)

// Service implements the survey use-cases.
// Service is safe for concurrent use; serialization of writes is the Store's job.
type Service struct {
	Store      domain.Store
	Schema     *domain.Schema
	Deliveries domain.Dispatcher
	Clock      application.Clock
	Log        *zap.Logger

	// NewID overrides id generation in tests.
	NewID func() domain.ResponseID
}

//
// ==== USE CASES ====
//

// SubmitCommand is one intake request. Client-supplied ids and timestamps
// are not part of it.
type SubmitCommand struct {
	Participant domain.Participant
	Answers     map[string]domain.AnswerInput
}

type SubmitResult struct {
	ID          domain.ResponseID `json:"submission_id"`
	SubmittedAt time.Time         `json:"submission_timestamp"`
	Scores      domain.Scores     `json:"scores"`
	Ignored     []string          `json:"ignored,omitempty"`
}

// Submit validates, persists exactly once, then hands the response to the
// delivery sinks. Delivery never affects the result.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (SubmitResult, error) {
	answers, ignored, err := s.Schema.Normalize(cmd.Answers)
	if err != nil {
		s.logger().Info("submission rejected", zap.Error(err), zap.Strings("ignored", ignored))
		return SubmitResult{}, err
	}

	now := s.now()
	p := cmd.Participant
	if p.ParticipantID == "" {
		p.ParticipantID = "P_" + now.Format("20060102_150405")
	}

	resp := &domain.Response{
		ID:          s.newID(),
		SubmittedAt: now,
		Participant: p,
		Answers:     answers,
		Scores:      s.Schema.Score(answers),
	}

	if err := s.Store.Append(ctx, resp); err != nil {
		s.logger().Error("submission not persisted",
			zap.String("submission_id", string(resp.ID)),
			zap.Error(err))
		if !domain.IsPersistence(err) {
			err = &domain.PersistenceError{Op: "append", Err: err}
		}
		return SubmitResult{}, err
	}

	s.logger().Info("submission stored",
		zap.String("submission_id", string(resp.ID)),
		zap.String("participant_id", p.ParticipantID),
		zap.Int("answers", len(answers)),
		zap.Int("total_score", resp.Scores.Total),
		zap.Strings("ignored", ignored))

	if s.Deliveries != nil {
		s.Deliveries.Dispatch(resp)
	}

	return SubmitResult{
		ID:          resp.ID,
		SubmittedAt: resp.SubmittedAt,
		Scores:      resp.Scores,
		Ignored:     ignored,
	}, nil
}

// Stats recomputes aggregates from the store on every call.
func (s *Service) Stats(ctx context.Context) (*domain.Stats, error) {
	all, err := s.Store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading responses: %w", err)
	}
	return domain.ComputeStats(s.Schema, all), nil
}

// Export writes the CSV store verbatim.
func (s *Service) Export(ctx context.Context, w io.Writer) (int64, error) {
	return s.Store.WriteCSV(ctx, w)
}

// Responses returns every stored response in append order.
func (s *Service) Responses(ctx context.Context) ([]*domain.Response, error) {
	return s.Store.ReadAll(ctx)
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *Service) newID() domain.ResponseID {
	if s.NewID != nil {
		return s.NewID()
	}
	return domain.ResponseID("SUB_" + uuid.NewString())
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
