package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/askmore/backend/internal/analysis/preference"
	"github.com/zhouzirui/askmore/backend/internal/metrics"
	"github.com/zhouzirui/askmore/backend/internal/model/question"
	"github.com/zhouzirui/askmore/backend/internal/model/session"
)

var (
	ErrEmptyQuestionSet = errors.New("question set is empty")
	ErrUnknownQuestion  = errors.New("question does not belong to session")
	ErrInvalidAnswer    = errors.New("answer is not one of the offered options")
)

// Service owns the session lifecycle on top of a Store.
type Service struct {
	store  *Store
	logger *zap.Logger
}

// NewService wires a lifecycle manager to store.
func NewService(store *Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// CreateSession stores a new pending session for the generated questions.
func (s *Service) CreateSession(_ context.Context, originalQuery string, questions question.Set) (session.Session, error) {
	if questions.Len() == 0 {
		return session.Session{}, ErrEmptyQuestionSet
	}

	sess := session.Session{
		ID:            uuid.NewString(),
		OriginalQuery: strings.TrimSpace(originalQuery),
		Questions:     questions,
		Answers:       make(map[string]string, questions.Len()),
		CreatedAt:     s.store.Now(),
		Status:        session.StatusPending,
	}
	if err := s.store.Insert(sess); err != nil {
		return session.Session{}, fmt.Errorf("create session: %w", err)
	}

	metrics.SessionsCreated.Inc()
	s.logger.Debug("session created", zap.String("session_id", sess.ID), zap.Int("questions", questions.Len()))
	return sess.Clone(), nil
}

// GetSession returns the session or ErrSessionNotFound / ErrSessionExpired.
// With ErrSessionExpired the final snapshot is returned in StatusExpired.
func (s *Service) GetSession(_ context.Context, sessionID string) (session.Session, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return sess, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return sess, nil
}

// RecordAnswer stores answer for questionID, replacing any earlier answer.
// The session is left untouched when the question or answer is rejected.
func (s *Service) RecordAnswer(_ context.Context, sessionID, questionID, answer string) (session.Session, error) {
	updated, err := s.store.Update(sessionID, func(sess *session.Session) error {
		q, ok := sess.Questions.Find(questionID)
		if !ok {
			return ErrUnknownQuestion
		}
		if !q.HasAnswer(answer) {
			return ErrInvalidAnswer
		}
		sess.Answers[questionID] = answer
		sess.RefreshStatus()
		return nil
	})
	if err != nil {
		metrics.AnswersRecorded.WithLabelValues(answerResult(err)).Inc()
		return session.Session{}, fmt.Errorf("record answer %s/%s: %w", sessionID, questionID, err)
	}

	metrics.AnswersRecorded.WithLabelValues("ok").Inc()
	if updated.Status == session.StatusAnswered {
		s.logger.Info("session answered", zap.String("session_id", sessionID))
	}
	return updated, nil
}

// Summarize lists answered questions in question order.
func (s *Service) Summarize(ctx context.Context, sessionID string) ([]session.SummaryEntry, error) {
	report, err := s.Report(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}
	return report.Summary, nil
}

// HandoffPrompt renders the prompt a downstream search step would receive for
// the session's answers so far.
func (s *Service) HandoffPrompt(ctx context.Context, sessionID, userID string) (string, error) {
	report, err := s.Report(ctx, sessionID, userID)
	if err != nil {
		return "", err
	}
	return report.HandoffPrompt, nil
}

// Report is the summary of a session at one point in time.
type Report struct {
	Summary       []session.SummaryEntry `json:"summary"`
	Complete      bool                   `json:"complete"`
	HandoffPrompt string                 `json:"handoffPrompt"`
}

// Report builds the summary, completion flag and hand-off prompt from a single
// snapshot of the session.
func (s *Service) Report(ctx context.Context, sessionID, userID string) (Report, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return Report{}, err
	}
	summary := sess.Summary()
	return Report{
		Summary:       summary,
		Complete:      sess.Complete(),
		HandoffPrompt: preference.BuildHandoffPrompt(sess.OriginalQuery, summary, userID),
	}, nil
}

func answerResult(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrSessionExpired):
		return "expired"
	case errors.Is(err, ErrUnknownQuestion):
		return "unknown_question"
	case errors.Is(err, ErrInvalidAnswer):
		return "invalid_answer"
	default:
		return "error"
	}
}
