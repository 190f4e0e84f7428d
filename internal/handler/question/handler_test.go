package question

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/askmore/backend/internal/model/question"
	questionsvc "github.com/zhouzirui/askmore/backend/internal/service/question"
	sessionsvc "github.com/zhouzirui/askmore/backend/internal/service/session"
)

// flakyGenerator 前 failures 次返回网络错误，之后返回合法问题集。
type flakyGenerator struct {
	failures int
	calls    int
}

func (g *flakyGenerator) Generate(_ context.Context, _ string, numQuestions, numAnswers int) (any, error) {
	g.calls++
	if g.calls <= g.failures {
		return nil, question.ErrNetwork
	}
	items := make([]any, numQuestions)
	for i := range items {
		answers := make([]any, numAnswers)
		for j := range answers {
			answers[j] = fmt.Sprintf("Choice %d", j+1)
		}
		items[i] = map[string]any{
			"id":      question.SequentialID(i),
			"text":    fmt.Sprintf("Generated question %d?", i+1),
			"answers": answers,
		}
	}
	return map[string]any{"questions": items}, nil
}

func setupRouter(gen questionsvc.Generator) (*chi.Mux, *sessionsvc.Service) {
	noSleep := questionsvc.SleeperFunc(func(context.Context, time.Duration) error { return nil })
	orchestrator := questionsvc.NewOrchestrator(gen, questionsvc.WithSleeper(noSleep))
	sessions := sessionsvc.NewService(sessionsvc.NewStore(), nil)

	r := chi.NewRouter()
	New(orchestrator, sessions, Defaults{NumQuestions: 3, NumAnswers: 3}, nil).RegisterRoutes(r)
	return r, sessions
}

func TestGenerateCreatesSession(t *testing.T) {
	r, sessions := setupRouter(&flakyGenerator{failures: 1})

	payload := []byte(`{"query": "recommend shoes for work", "numQuestions": 2}`)
	req := httptest.NewRequest(http.MethodPost, "/questions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		SessionID string `json:"sessionId"`
		Session   struct {
			OriginalQuery string `json:"originalQuery"`
			Status        string `json:"status"`
			Questions     []struct {
				ID      string   `json:"id"`
				Answers []string `json:"answers"`
			} `json:"questions"`
		} `json:"session"`
		Attempts int  `json:"attempts"`
		Fallback bool `json:"fallback"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Attempts != 2 || body.Fallback {
		t.Fatalf("unexpected attempts=%d fallback=%v", body.Attempts, body.Fallback)
	}
	if len(body.Session.Questions) != 2 || len(body.Session.Questions[0].Answers) != 3 {
		t.Fatalf("unexpected questions %+v", body.Session.Questions)
	}
	if body.Session.Status != "pending" || body.Session.OriginalQuery != "recommend shoes for work" {
		t.Fatalf("unexpected session %+v", body.Session)
	}

	if _, err := sessions.GetSession(context.Background(), body.SessionID); err != nil {
		t.Fatalf("session not stored: %v", err)
	}
}

func TestGenerateFallsBack(t *testing.T) {
	r, _ := setupRouter(&flakyGenerator{failures: 100})

	req := httptest.NewRequest(http.MethodPost, "/questions", strings.NewReader(`{"query": "gift ideas"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var body GenerateResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Fallback || body.Attempts != questionsvc.DefaultMaxAttempts {
		t.Fatalf("expected fallback after %d attempts, got %+v", questionsvc.DefaultMaxAttempts, body)
	}
	if body.FallbackVersion != questionsvc.FallbackVersion() {
		t.Fatalf("unexpected fallback version %q", body.FallbackVersion)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	r, _ := setupRouter(&flakyGenerator{})

	for _, payload := range []string{`{"query": "   "}`, `{}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/questions", strings.NewReader(payload))
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)

		if resp.Code != http.StatusBadRequest {
			t.Fatalf("payload %q: expected 400, got %d", payload, resp.Code)
		}
	}
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "" && current.name != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	return events
}

func TestStreamReportsAttempts(t *testing.T) {
	r, _ := setupRouter(&flakyGenerator{failures: 2})

	req := httptest.NewRequest(http.MethodGet, "/questions/stream?query=camping+tent&numQuestions=4&numAnswers=2", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	events := readEvents(t, resp.Body.String())

	var names []string
	for _, ev := range events {
		names = append(names, ev.name)
	}
	if got := strings.Join(names, ","); got != "attempt,attempt,questions,end" {
		t.Fatalf("unexpected event sequence %s", got)
	}

	var attempt AttemptEvent
	if err := json.Unmarshal([]byte(events[1].data), &attempt); err != nil {
		t.Fatalf("decode attempt: %v", err)
	}
	if attempt.Attempt != 2 || attempt.Kind != string(question.KindNetwork) || attempt.RetryInMS != 2000 {
		t.Fatalf("unexpected attempt event %+v", attempt)
	}

	var generated GenerateResponse
	if err := json.Unmarshal([]byte(events[2].data), &generated); err != nil {
		t.Fatalf("decode questions: %v", err)
	}
	if generated.Attempts != 3 || generated.Session.Questions.Len() != 4 {
		t.Fatalf("unexpected questions event %+v", generated)
	}
}

func TestStreamReportsFinalFailure(t *testing.T) {
	r, _ := setupRouter(&flakyGenerator{failures: 100})

	req := httptest.NewRequest(http.MethodGet, "/questions/stream?query=desk+lamp", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	attempts := 0
	for _, ev := range readEvents(t, resp.Body.String()) {
		if ev.name == "attempt" {
			attempts++
		}
	}
	if attempts != questionsvc.DefaultMaxAttempts {
		t.Fatalf("expected %d attempt events, got %d", questionsvc.DefaultMaxAttempts, attempts)
	}
}

func TestStreamRejectsBadQuery(t *testing.T) {
	r, _ := setupRouter(&flakyGenerator{})

	for _, target := range []string{"/questions/stream", "/questions/stream?query=shoes&numQuestions=two"} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, target, nil))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, resp.Code)
		}
	}
}
