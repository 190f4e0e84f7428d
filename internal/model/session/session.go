package session

import (
	"encoding/json"
	"time"

	"github.com/zhouzirui/askmore/backend/internal/model/question"
)

// Status is the derived lifecycle state of a session.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAnswered Status = "answered"
	// StatusExpired marks the last snapshot of a session handed out when its
	// eviction is observed. Stored sessions are never in this state.
	StatusExpired Status = "expired"
)

// Session tracks one user's answers to a generated question set.
type Session struct {
	ID            string            `json:"id"`
	OriginalQuery string            `json:"originalQuery"`
	Questions     question.Set      `json:"questions"`
	Answers       map[string]string `json:"answers"`
	CreatedAt     time.Time         `json:"createdAt"`
	Status        Status            `json:"status"`
}

// SummaryEntry pairs an answered question with the chosen option.
type SummaryEntry struct {
	QuestionID string `json:"questionId"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
}

// Clone returns a copy that shares no mutable state with s.
func (s Session) Clone() Session {
	answers := make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	s.Answers = answers
	return s
}

// ExpiredAt reports whether the session is past its lifetime at now.
func (s Session) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) >= ttl
}

// Complete reports whether every question has an answer.
func (s Session) Complete() bool {
	for _, id := range s.Questions.IDs() {
		if _, ok := s.Answers[id]; !ok {
			return false
		}
	}
	return s.Questions.Len() > 0
}

// MarshalJSON renders CreatedAt in UTC. The in-memory value keeps its
// monotonic reading for expiry checks.
func (s Session) MarshalJSON() ([]byte, error) {
	type plain Session
	out := plain(s)
	out.CreatedAt = s.CreatedAt.UTC()
	return json.Marshal(out)
}

// RefreshStatus recomputes Status from the recorded answers.
func (s *Session) RefreshStatus() {
	if s.Complete() {
		s.Status = StatusAnswered
		return
	}
	s.Status = StatusPending
}

// Summary lists answered questions in question-set order.
func (s Session) Summary() []SummaryEntry {
	entries := make([]SummaryEntry, 0, len(s.Answers))
	for _, q := range s.Questions.Questions() {
		answer, ok := s.Answers[q.ID]
		if !ok {
			continue
		}
		entries = append(entries, SummaryEntry{
			QuestionID: q.ID,
			Question:   q.Text,
			Answer:     answer,
		})
	}
	return entries
}
