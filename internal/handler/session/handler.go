package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	sessionsvc "github.com/zhouzirui/askmore/backend/internal/service/session"
	"github.com/zhouzirui/askmore/backend/pkg/utils"
)

// Handler 会话生命周期的HTTP处理器
type Handler struct {
	sessions *sessionsvc.Service
	logger   *zap.Logger
	ws       *WebSocketHandler
}

// New 创建会话处理器
func New(sessions *sessionsvc.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		logger:   logger,
		ws:       NewWebSocketHandler(sessions, logger),
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/answers", h.handleAnswer)
		r.Get("/summary", h.handleSummary)
		r.Get("/ws", h.ws.handleWebSocket)
	})
}

// SummaryResponse 是 summary 接口与 WebSocket summary 帧的载荷。
type SummaryResponse = sessionsvc.Report

// handleGet 查询会话
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

type answerRequest struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// handleAnswer 记录一个问题的回答
func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var payload answerRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.QuestionID) == "" {
		utils.RespondError(w, http.StatusBadRequest, "questionId is required")
		return
	}

	sess, err := h.sessions.RecordAnswer(r.Context(), chi.URLParam(r, "sessionID"), payload.QuestionID, payload.Answer)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

// handleSummary 返回已回答问题的摘要与检索提示词
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	report, err := h.sessions.Report(r.Context(), chi.URLParam(r, "sessionID"), r.URL.Query().Get("userId"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, report)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("session request failed", zap.Error(err))
		utils.RespondErrorCode(w, status, code, "internal error")
		return
	}
	utils.RespondErrorCode(w, status, code, errorMessage(err))
}

// classify 将会话错误映射为 HTTP 状态码与错误码。
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, sessionsvc.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, sessionsvc.ErrSessionExpired):
		return http.StatusGone, "session_expired"
	case errors.Is(err, sessionsvc.ErrUnknownQuestion):
		return http.StatusBadRequest, "unknown_question"
	case errors.Is(err, sessionsvc.ErrInvalidAnswer):
		return http.StatusUnprocessableEntity, "invalid_answer"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func errorMessage(err error) string {
	for _, sentinel := range []error{
		sessionsvc.ErrSessionNotFound,
		sessionsvc.ErrSessionExpired,
		sessionsvc.ErrUnknownQuestion,
		sessionsvc.ErrInvalidAnswer,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
