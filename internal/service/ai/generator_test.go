package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/askmore/backend/internal/model/question"
	questionsvc "github.com/zhouzirui/askmore/backend/internal/service/question"
)

type fakeChatModel struct {
	mu       sync.Mutex
	content  string
	err      error
	block    bool
	calls    int
	received [][]*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.calls++
	f.received = append(f.received, input)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) BindTools([]*schema.ToolInfo) error { return nil }

func newTestGenerator(t *testing.T, fake *fakeChatModel, opts ...GeneratorOption) *Generator {
	t.Helper()
	g, err := NewGenerator(context.Background(), fake, opts...)
	require.NoError(t, err)
	return g
}

const validContent = `{"questions": [
  {"id": "q1", "text": "What color do you prefer?", "answers": ["Black", "Brown", "Navy"]},
  {"id": "q2", "text": "Which style suits your office?", "answers": ["Oxford", "Loafer", "Derby"]}
]}`

func TestGenerateReturnsParsedTree(t *testing.T) {
	fake := &fakeChatModel{content: validContent}
	g := newTestGenerator(t, fake)

	raw, err := g.Generate(context.Background(), "recommend shoes for work", 2, 3)
	require.NoError(t, err)

	set, err := questionsvc.NewValidator(true).Validate(raw, questionsvc.Limits{NumQuestions: 2, NumAnswers: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, set.IDs())
	assert.Equal(t, 1, fake.calls)
}

func TestGenerateSendsSystemAndUserPrompt(t *testing.T) {
	fake := &fakeChatModel{content: validContent}
	g := newTestGenerator(t, fake)

	_, err := g.Generate(context.Background(), "recommend shoes for work", 2, 3)
	require.NoError(t, err)

	require.Len(t, fake.received, 1)
	msgs := fake.received[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, generationSystemPrompt, msgs[0].Content)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, BuildPrompt("recommend shoes for work", 2, 3), msgs[1].Content)
}

func TestGenerateToleratesCodeFence(t *testing.T) {
	fake := &fakeChatModel{content: "```json\n" + validContent + "\n```"}
	raw, err := newTestGenerator(t, fake).Generate(context.Background(), "shoes", 2, 3)
	require.NoError(t, err)
	assert.Contains(t, raw, "questions")
}

func TestGenerateErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeChatModel
		want error
	}{
		{"upstream failure", &fakeChatModel{err: errors.New("connection reset")}, question.ErrNetwork},
		{"blank content", &fakeChatModel{content: "   \n"}, question.ErrEmptyResponse},
		{"no object", &fakeChatModel{content: "I cannot help with that."}, question.ErrParse},
		{"broken json", &fakeChatModel{content: `{"questions": [}`}, question.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestGenerator(t, tt.fake).Generate(context.Background(), "shoes", 3, 3)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, tt.fake.calls)
		})
	}
}

func TestGenerateTimeout(t *testing.T) {
	fake := &fakeChatModel{block: true}
	g := newTestGenerator(t, fake, WithTimeout(20*time.Millisecond))

	started := time.Now()
	_, err := g.Generate(context.Background(), "shoes", 3, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, question.ErrNetwork)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestGenerateRateLimiterHonoursCancellation(t *testing.T) {
	fake := &fakeChatModel{content: validContent}
	g := newTestGenerator(t, fake, WithRateLimit(0.001, 1))

	_, err := g.Generate(context.Background(), "shoes", 2, 3)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Generate(ctx, "shoes", 2, 3)
	assert.ErrorIs(t, err, question.ErrNetwork)
	assert.Equal(t, 1, fake.calls)
}

func TestGenerateRateLimiterWaitBoundedByTimeout(t *testing.T) {
	fake := &fakeChatModel{content: validContent}
	g := newTestGenerator(t, fake, WithTimeout(50*time.Millisecond), WithRateLimit(0.5, 1))

	_, err := g.Generate(context.Background(), "shoes", 2, 3)
	require.NoError(t, err)

	started := time.Now()
	_, err = g.Generate(context.Background(), "shoes", 2, 3)
	assert.ErrorIs(t, err, question.ErrNetwork)
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, 1, fake.calls)
}

func TestNewGeneratorRequiresModel(t *testing.T) {
	_, err := NewGenerator(context.Background(), nil)
	assert.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("  best hiking boots  ", 5, 4)

	assert.Contains(t, p, `Given this user request: "best hiking boots"`)
	assert.Contains(t, p, "Generate 5 multiple choice questions")
	assert.Contains(t, p, "exactly 4 answer options")
	assert.Contains(t, p, `"answers": ["Option 1", "Option 2", "Option 3", "Option 4"]`)
	assert.True(t, strings.HasSuffix(p, "Use IDs: q1, q2, q3, etc."))
	assert.Equal(t, p, BuildPrompt("best hiking boots", 5, 4))
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{}.Generate(context.Background(), "shoes", 3, 3)
	assert.ErrorIs(t, err, question.ErrNetwork)
}
