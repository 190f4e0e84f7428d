package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	questionHandler "github.com/zhouzirui/askmore/backend/internal/handler/question"
	sessionHandler "github.com/zhouzirui/askmore/backend/internal/handler/session"
	"github.com/zhouzirui/askmore/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/askmore/backend/internal/middleware"
	questionService "github.com/zhouzirui/askmore/backend/internal/service/question"
	sessionService "github.com/zhouzirui/askmore/backend/internal/service/session"
	"github.com/zhouzirui/askmore/backend/pkg/utils"
)

// Dependencies 汇总路由需要的服务。
type Dependencies struct {
	Orchestrator *questionService.Orchestrator
	Sessions     *sessionService.Service
	Defaults     questionHandler.Defaults
	Logger       *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		// 问题生成
		questionHandler.New(deps.Orchestrator, deps.Sessions, deps.Defaults, logger).RegisterRoutes(api)

		// 会话与回答
		sessionHandler.New(deps.Sessions, logger).RegisterRoutes(api)
	})

	return r
}
