package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/askmore/backend/internal/config"
	"github.com/zhouzirui/askmore/backend/internal/handler"
	questionHandler "github.com/zhouzirui/askmore/backend/internal/handler/question"
	"github.com/zhouzirui/askmore/backend/internal/logging"
	"github.com/zhouzirui/askmore/backend/internal/service/ai"
	"github.com/zhouzirui/askmore/backend/internal/service/question"
	"github.com/zhouzirui/askmore/backend/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Warn("failed to load .env file, continuing with system environment variables only", zap.Error(envErr))
	}

	// Session store and janitor
	store := session.NewStore(
		session.WithTTL(cfg.Session.TTL),
		session.WithStoreLogger(logger.Named("store")),
	)
	go store.RunJanitor(ctx, cfg.Session.SweepInterval)
	sessionService := session.NewService(store, logger.Named("session"))

	// Question generator
	orchestratorOpts := []question.Option{
		question.WithValidator(question.NewValidator(cfg.Questions.StrictCount)),
		question.WithLogger(logger.Named("orchestrator")),
		question.WithMaxAttempts(cfg.Questions.MaxRetries),
	}
	var generator question.Generator
	gen, err := ai.NewFromConfig(ctx, cfg.AI, logger.Named("generator"))
	if err != nil {
		logger.Warn("AI generator unavailable, serving fallback questions only - 请检查模型相关环境变量",
			zap.String("provider", cfg.AI.Provider), zap.Error(err))
		generator = ai.Unavailable{Reason: err.Error()}
		orchestratorOpts = append(orchestratorOpts, question.WithMaxAttempts(1))
	} else {
		generator = gen
	}
	orchestrator := question.NewOrchestrator(generator, orchestratorOpts...)

	router := handler.NewRouter(handler.Dependencies{
		Orchestrator: orchestrator,
		Sessions:     sessionService,
		Defaults: questionHandler.Defaults{
			NumQuestions: cfg.Questions.NumQuestions,
			NumAnswers:   cfg.Questions.NumAnswers,
		},
		Logger: logger,
	})

	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("AskMore backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
