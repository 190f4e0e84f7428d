package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/askmore/backend/internal/model/question"
)

const DefaultTimeout = 30 * time.Second

// Generator performs exactly one upstream call per Generate and never retries.
type Generator struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithTimeout bounds each upstream call.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRateLimit spaces upstream calls with a token bucket. A non-positive
// limit disables it.
func WithRateLimit(perSecond float64, burst int) GeneratorOption {
	return func(g *Generator) {
		if perSecond <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the generator logger.
func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator compiles the prompt chain around chatModel.
func NewGenerator(ctx context.Context, chatModel model.ChatModel, opts ...GeneratorOption) (*Generator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	// 模板只做占位替换，JSON 示例中的花括号在 BuildPrompt 中已渲染完毕
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{prompt}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile question chain: %w", err)
	}

	g := &Generator{
		chain:   runnable,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate asks the model for numQuestions questions with numAnswers options
// each and returns the decoded JSON tree without validating it.
func (g *Generator) Generate(ctx context.Context, query string, numQuestions, numAnswers int) (any, error) {
	// 限流等待也计入单次调用超时
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(callCtx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", question.ErrNetwork, err)
		}
	}

	started := time.Now()
	msg, err := g.chain.Invoke(callCtx, map[string]any{
		"system": generationSystemPrompt,
		"prompt": BuildPrompt(query, numQuestions, numAnswers),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", question.ErrNetwork, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, question.ErrEmptyResponse
	}

	g.logger.Debug("question generation call finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("content_length", len(msg.Content)),
	)
	return ParseOutput(msg.Content)
}

// ParseOutput decodes the JSON object embedded in content. Text around the
// outermost braces, such as a markdown code fence, is ignored.
func ParseOutput(content string) (any, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("%w: missing json object", question.ErrParse)
	}

	var payload any
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", question.ErrParse, err)
	}
	return payload, nil
}

// Unavailable stands in for the generator when no model is configured. Every
// call fails as a network error so callers fall back immediately.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Generate(context.Context, string, int, int) (any, error) {
	reason := u.Reason
	if reason == "" {
		reason = "no model configured"
	}
	return nil, fmt.Errorf("%w: %s", question.ErrNetwork, reason)
}
