package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/askmore/backend/internal/config"
)

// NewFromConfig builds the chat model named by cfg and wraps it in a Generator
// carrying the configured timeout and rate limit.
func NewFromConfig(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%s credentials are not configured", cfg.Provider)
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	gen, err := NewGenerator(ctx, chatModel,
		WithTimeout(cfg.Timeout),
		WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		WithLogger(logger.With(zap.String("provider", cfg.Provider))),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("question generator initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Duration("timeout", cfg.Timeout),
	)
	return gen, nil
}
