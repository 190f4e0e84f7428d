package question

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/askmore/backend/internal/model/question"
	"github.com/zhouzirui/askmore/backend/internal/model/session"
	questionsvc "github.com/zhouzirui/askmore/backend/internal/service/question"
	"github.com/zhouzirui/askmore/backend/pkg/utils"
)

// Orchestrator 生成问题集，永不失败。
type Orchestrator interface {
	Generate(ctx context.Context, req questionsvc.Request) questionsvc.Result
}

// SessionCreator 为生成的问题集创建会话。
type SessionCreator interface {
	CreateSession(ctx context.Context, originalQuery string, questions question.Set) (session.Session, error)
}

// Defaults 是请求未指定数量时使用的默认值。
type Defaults struct {
	NumQuestions int
	NumAnswers   int
}

// Handler 问题生成的HTTP处理器
type Handler struct {
	orchestrator Orchestrator
	sessions     SessionCreator
	defaults     Defaults
	logger       *zap.Logger
}

// New 创建问题生成处理器
func New(orchestrator Orchestrator, sessions SessionCreator, defaults Defaults, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orchestrator: orchestrator,
		sessions:     sessions,
		defaults:     defaults,
		logger:       logger,
	}
}

// RegisterRoutes 注册问题生成相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/questions", h.handleGenerate)
	r.Get("/questions/stream", h.handleStream)
}

type generateRequest struct {
	Query        string `json:"query"`
	NumQuestions int    `json:"numQuestions"`
	NumAnswers   int    `json:"numAnswers"`
}

// GenerateResponse 是生成接口与流式 questions 事件的载荷。
type GenerateResponse struct {
	SessionID       string          `json:"sessionId"`
	Session         session.Session `json:"session"`
	Attempts        int             `json:"attempts"`
	Fallback        bool            `json:"fallback"`
	FallbackVersion string          `json:"fallbackVersion,omitempty"`
}

// AttemptEvent 描述一次失败的生成尝试。
type AttemptEvent struct {
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"maxAttempts"`
	Kind        string `json:"kind"`
	RetryInMS   int64  `json:"retryInMs,omitempty"`
}

// handleGenerate 生成问题并创建会话
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var payload generateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Query) == "" {
		utils.RespondError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := h.generate(r.Context(), payload, nil)
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, resp)
}

// handleStream 以 SSE 推送生成进度：每次失败一个 attempt 事件，随后 questions 与 end。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	query := r.URL.Query()
	payload := generateRequest{Query: query.Get("query")}
	if strings.TrimSpace(payload.Query) == "" {
		utils.RespondError(w, http.StatusBadRequest, "query parameter is required")
		return
	}
	var err error
	if payload.NumQuestions, err = optionalInt(query.Get("numQuestions")); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "numQuestions must be an integer")
		return
	}
	if payload.NumAnswers, err = optionalInt(query.Get("numAnswers")); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "numAnswers must be an integer")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	reported := 0
	observer := func(ev questionsvc.Event) {
		if ev.Err == nil || ev.Attempt <= reported {
			return
		}
		if ev.State != questionsvc.StateBackoff && ev.State != questionsvc.StateFallback {
			return
		}
		reported = ev.Attempt
		utils.SendSSEEvent(w, flusher, "attempt", AttemptEvent{
			Attempt:     ev.Attempt,
			MaxAttempts: ev.MaxAttempts,
			Kind:        string(ev.Kind),
			RetryInMS:   ev.Delay.Milliseconds(),
		})
	}

	resp, err := h.generate(r.Context(), payload, observer)
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		utils.SendSSEEvent(w, flusher, "error", utils.ErrorBody{Error: "failed to create session"})
		return
	}

	utils.SendSSEEvent(w, flusher, "questions", resp)
	utils.SendSSEEvent(w, flusher, "end", map[string]any{"sessionId": resp.SessionID, "finished": true})
}

func (h *Handler) generate(ctx context.Context, payload generateRequest, observer func(questionsvc.Event)) (GenerateResponse, error) {
	req := questionsvc.Request{
		Query:        strings.TrimSpace(payload.Query),
		NumQuestions: payload.NumQuestions,
		NumAnswers:   payload.NumAnswers,
		Observer:     observer,
	}
	if req.NumQuestions == 0 {
		req.NumQuestions = h.defaults.NumQuestions
	}
	if req.NumAnswers == 0 {
		req.NumAnswers = h.defaults.NumAnswers
	}

	result := h.orchestrator.Generate(ctx, req)

	// 客户端中途断开时仍然创建会话
	sess, err := h.sessions.CreateSession(context.WithoutCancel(ctx), req.Query, result.Questions)
	if err != nil {
		return GenerateResponse{}, err
	}

	h.logger.Info("questions generated",
		zap.String("session_id", sess.ID),
		zap.Int("questions", result.Questions.Len()),
		zap.Int("attempts", result.Attempts),
		zap.Bool("fallback", result.Fallback),
	)

	return GenerateResponse{
		SessionID:       sess.ID,
		Session:         sess,
		Attempts:        result.Attempts,
		Fallback:        result.Fallback,
		FallbackVersion: result.FallbackVersion,
	}, nil
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
