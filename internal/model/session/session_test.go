package session

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/askmore/backend/internal/model/question"
)

func sample() Session {
	return Session{
		ID: "s1",
		Questions: question.NewSet(
			question.Question{ID: "q1", Text: "What color do you prefer?", Answers: []string{"Black", "Brown"}},
			question.Question{ID: "q2", Text: "Which style suits your office?", Answers: []string{"Oxford", "Loafer"}},
		),
		Answers:   map[string]string{},
		CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:    StatusPending,
	}
}

func TestRefreshStatus(t *testing.T) {
	s := sample()
	s.Answers["q2"] = "Oxford"
	s.RefreshStatus()
	if s.Status != StatusPending {
		t.Fatalf("expected pending, got %s", s.Status)
	}

	s.Answers["q1"] = "Black"
	s.RefreshStatus()
	if s.Status != StatusAnswered {
		t.Fatalf("expected answered, got %s", s.Status)
	}
}

func TestEmptySessionIsNeverComplete(t *testing.T) {
	if (Session{}).Complete() {
		t.Fatal("session without questions must not be complete")
	}
}

func TestExpiredAt(t *testing.T) {
	s := sample()
	ttl := 24 * time.Hour
	if s.ExpiredAt(s.CreatedAt.Add(ttl-time.Second), ttl) {
		t.Fatal("expired one second early")
	}
	if !s.ExpiredAt(s.CreatedAt.Add(ttl), ttl) {
		t.Fatal("not expired at ttl")
	}
}

func TestCloneDetachesAnswers(t *testing.T) {
	s := sample()
	c := s.Clone()
	c.Answers["q1"] = "Brown"
	if _, ok := s.Answers["q1"]; ok {
		t.Fatal("clone shares answer map")
	}
}

func TestSummaryFollowsQuestionOrder(t *testing.T) {
	s := sample()
	s.Answers["q2"] = "Loafer"
	s.Answers["q1"] = "Brown"

	summary := s.Summary()
	if len(summary) != 2 || summary[0].QuestionID != "q1" || summary[1].Answer != "Loafer" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestMarshalJSONRendersCreatedAtInUTC(t *testing.T) {
	s := sample()
	s.CreatedAt = time.Date(2025, 3, 1, 17, 0, 0, 0, time.FixedZone("CST", 8*3600))

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"createdAt":"2025-03-01T09:00:00Z"`) {
		t.Fatalf("createdAt not rendered in UTC: %s", data)
	}
	if !strings.Contains(string(data), `"questions":[{"id":"q1"`) {
		t.Fatalf("questions not rendered as an array: %s", data)
	}
	if s.CreatedAt.Location().String() != "CST" {
		t.Fatalf("marshal must not modify the session")
	}
}
