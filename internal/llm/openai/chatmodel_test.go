package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-3.5-turbo",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "logprobs": null,
    "message": {"role": "assistant", "content": "{\"questions\": []}", "refusal": null}
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`

func newServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if captured != nil {
			_ = json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestModel(srv *httptest.Server, optFns ...func(o *Options)) *ChatModel {
	base := func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL + "/"
	}
	return NewChatModel(append([]func(o *Options){base}, optFns...)...)
}

func TestGenerate(t *testing.T) {
	var req map[string]any
	srv := newServer(t, http.StatusOK, completionBody, &req)
	m := newTestModel(srv)

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("You generate survey questions. Always return valid JSON."),
		schema.UserMessage("recommend shoes"),
	})
	require.NoError(t, err)

	assert.Equal(t, schema.Assistant, msg.Role)
	assert.Equal(t, `{"questions": []}`, msg.Content)
	require.NotNil(t, msg.ResponseMeta)
	assert.Equal(t, "stop", msg.ResponseMeta.FinishReason)
	assert.Equal(t, 17, msg.ResponseMeta.Usage.TotalTokens)

	assert.Equal(t, DefaultModel, req["model"])
	assert.EqualValues(t, 500, req["max_completion_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])

	messages, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestGenerateHonoursCallOptions(t *testing.T) {
	var req map[string]any
	srv := newServer(t, http.StatusOK, completionBody, &req)
	m := newTestModel(srv, func(o *Options) { o.JSONMode = false })

	_, err := m.Generate(context.Background(),
		[]*schema.Message{schema.UserMessage("hi")},
		model.WithModel("gpt-4o-mini"), model.WithMaxTokens(64))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", req["model"])
	assert.EqualValues(t, 64, req["max_completion_tokens"])
	assert.NotContains(t, req, "response_format")
}

func TestGenerateUpstreamError(t *testing.T) {
	srv := newServer(t, http.StatusTooManyRequests, `{"error": {"message": "slow down", "type": "rate_limit"}}`, nil)

	_, err := newTestModel(srv).Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	assert.Error(t, err)
}

func TestGenerateNoChoices(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"id": "x", "object": "chat.completion", "choices": []}`, nil)

	_, err := newTestModel(srv).Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	assert.Error(t, err)
}

func TestStream(t *testing.T) {
	srv := newServer(t, http.StatusOK, completionBody, nil)

	sr, err := newTestModel(srv).Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	defer sr.Close()

	chunk, err := sr.Recv()
	require.NoError(t, err)
	assert.Equal(t, `{"questions": []}`, chunk.Content)
}
