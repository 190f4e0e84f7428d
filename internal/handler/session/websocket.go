package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/askmore/backend/internal/model/session"
	sessionsvc "github.com/zhouzirui/askmore/backend/internal/service/session"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketHandler 通过 WebSocket 逐题收集回答
type WebSocketHandler struct {
	sessions *sessionsvc.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(sessions *sessionsvc.Service, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type inboundMessage struct {
	Type   string          `json:"type"`
	UserID string          `json:"userId"`
	Data   json.RawMessage `json:"data"`
}

// AnswerMessage 回答消息
type AnswerMessage struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// wsConn 串行化写操作，ping 循环与消息循环共用同一连接。
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) writeControl(messageType int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(messageType, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		status, _ := classify(err)
		http.Error(w, errorMessage(err), status)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	h.logger.Debug("websocket connected", zap.String("session_id", sessionID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	raw.SetReadDeadline(time.Now().Add(readTimeout))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.send(conn, "session", sessionID, sess)

	for {
		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}
		raw.SetReadDeadline(time.Now().Add(readTimeout))

		if !h.handleMessage(ctx, conn, sessionID, &msg) {
			return
		}
	}
}

// handleMessage 返回 false 时关闭连接。
func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *wsConn, sessionID string, msg *inboundMessage) bool {
	switch msg.Type {
	case "answer":
		var answer AnswerMessage
		if err := json.Unmarshal(msg.Data, &answer); err != nil {
			h.sendError(conn, "bad_request", "invalid answer payload")
			return true
		}
		sess, err := h.sessions.RecordAnswer(ctx, sessionID, answer.QuestionID, answer.Answer)
		if err != nil {
			return h.reportError(conn, err)
		}
		h.send(conn, "session", sessionID, sess)
		if sess.Status == session.StatusAnswered {
			return h.sendSummary(ctx, conn, sessionID, msg.UserID)
		}

	case "summary":
		return h.sendSummary(ctx, conn, sessionID, msg.UserID)

	default:
		h.sendError(conn, "unsupported", "unsupported message type: "+msg.Type)
	}
	return true
}

func (h *WebSocketHandler) sendSummary(ctx context.Context, conn *wsConn, sessionID, userID string) bool {
	report, err := h.sessions.Report(ctx, sessionID, userID)
	if err != nil {
		return h.reportError(conn, err)
	}
	h.send(conn, "summary", sessionID, report)
	return true
}

// reportError 发送错误帧；会话已不存在时返回 false。
func (h *WebSocketHandler) reportError(conn *wsConn, err error) bool {
	status, code := classify(err)
	h.sendError(conn, code, errorMessage(err))
	return status != http.StatusNotFound && status != http.StatusGone
}

func (h *WebSocketHandler) send(conn *wsConn, kind, sessionID string, data any) {
	msg := outgoingMessage{
		Type:      kind,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", zap.String("type", kind), zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(conn *wsConn, code, message string) {
	h.send(conn, "error", "", map[string]string{"code": code, "message": message})
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.writeControl(websocket.PingMessage); err != nil {
				return
			}
		}
	}
}
