// Package openai adapts the OpenAI Chat Completions API to the eino chat
// model interface so it can sit in the same chain as the Ark model.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const DefaultModel = "gpt-3.5-turbo"

// Options mirror the subset of Chat Completion parameters the generator needs.
type Options struct {
	APIKey              string
	BaseURL             string
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// MaxRetries is passed to the SDK client. Zero disables SDK retries.
	MaxRetries int
	// JSONMode requests a json_object response format.
	JSONMode bool
}

// ChatModel implements model.ChatModel on top of openai-go.
type ChatModel struct {
	client openai.Client
	opts   Options
}

// NewChatModel builds an adapter with its own client.
func NewChatModel(optFns ...func(o *Options)) *ChatModel {
	opts := Options{
		Model:               DefaultModel,
		Temperature:         0.7,
		MaxCompletionTokens: 500,
		JSONMode:            true,
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

	return &ChatModel{client: openai.NewClient(clientOpts...), opts: opts}
}

// Generate sends one non-streaming completion request.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	params := m.buildParams(input, opts...)

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	choice := resp.Choices[0]
	return &schema.Message{
		Role:    schema.Assistant,
		Content: choice.Message.Content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: string(choice.FinishReason),
			Usage: &schema.TokenUsage{
				PromptTokens:     int(resp.Usage.PromptTokens),
				CompletionTokens: int(resp.Usage.CompletionTokens),
				TotalTokens:      int(resp.Usage.TotalTokens),
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

func (m *ChatModel) buildParams(input []*schema.Message, opts ...model.Option) openai.ChatCompletionNewParams {
	temperature := float32(m.opts.Temperature)
	maxTokens := int(m.opts.MaxCompletionTokens)
	modelName := m.opts.Model
	common := model.GetCommonOptions(&model.Options{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		Model:       &modelName,
	}, opts...)

	params := openai.ChatCompletionNewParams{
		Messages: buildMessages(input),
		Model:    shared.ChatModel(*common.Model),
	}
	if common.Temperature != nil {
		params.Temperature = openai.Float(float64(*common.Temperature))
	}
	if common.MaxTokens != nil && *common.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(*common.MaxTokens))
	}
	if m.opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func buildMessages(input []*schema.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		text := strings.TrimSpace(msg.Content)
		switch msg.Role {
		case schema.System:
			messages = append(messages, openai.SystemMessage(text))
		case schema.Assistant:
			messages = append(messages, openai.AssistantMessage(text))
		default:
			messages = append(messages, openai.UserMessage(text))
		}
	}
	return messages
}
