// Package anthropic adapts the Anthropic Messages API to the eino chat model
// interface.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const DefaultModel = string(anthropic.ModelClaude3_5HaikuLatest)

// Options configures the adapter.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
	MaxRetries  int
}

// ChatModel implements model.ChatModel on top of anthropic-sdk-go.
type ChatModel struct {
	client anthropic.Client
	opts   Options
}

// NewChatModel builds an adapter with its own client.
func NewChatModel(optFns ...func(o *Options)) *ChatModel {
	opts := Options{
		Model:       DefaultModel,
		Temperature: 0.7,
		MaxTokens:   500,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(opts.MaxRetries)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &ChatModel{client: anthropic.NewClient(clientOpts...), opts: opts}
}

// Generate sends one non-streaming Messages request and joins the text blocks
// of the reply.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	resp, err := m.client.Messages.New(ctx, m.buildParams(input, opts...))
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &schema.Message{
		Role:    schema.Assistant,
		Content: text.String(),
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: string(resp.StopReason),
			Usage: &schema.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
		},
	}, nil
}

// Stream is served from a single Generate call.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools is a no-op; question generation does not call tools.
func (m *ChatModel) BindTools([]*schema.ToolInfo) error { return nil }

func (m *ChatModel) buildParams(input []*schema.Message, opts ...model.Option) anthropic.MessageNewParams {
	temperature := float32(m.opts.Temperature)
	maxTokens := int(m.opts.MaxTokens)
	modelName := m.opts.Model
	common := model.GetCommonOptions(&model.Options{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		Model:       &modelName,
	}, opts...)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(*common.Model),
		MaxTokens: int64(*common.MaxTokens),
	}
	if common.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*common.Temperature))
	}

	for _, msg := range input {
		if msg == nil {
			continue
		}
		text := strings.TrimSpace(msg.Content)
		switch msg.Role {
		case schema.System:
			// Messages API takes system text out of band
			params.System = append(params.System, anthropic.TextBlockParam{Text: text})
		case schema.Assistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
	}
	return params
}
