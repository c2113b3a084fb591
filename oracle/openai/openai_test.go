package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstack/core"
)

var _ core.Oracle = (*Oracle)(nil)

func newTestOracle(t *testing.T, handler http.HandlerFunc) *Oracle {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(func(o *Options) {
		o.RequestOptions = []option.RequestOption{
			option.WithBaseURL(srv.URL + "/"),
			option.WithAPIKey("test"),
			option.WithMaxRetries(0),
		}
	})
}

func TestOracle_ToolCall(t *testing.T) {
	var body map[string]any

	o := newTestOracle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "c1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": null,
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"go\"}"}}]
			}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	})

	reply, err := o.Ask(context.Background(), core.OracleRequest{
		System: "be helpful",
		Messages: []core.Message{
			{Role: core.RoleUser, Content: "find go"},
			{Role: core.RoleAssistant, ToolCallID: "call_0", ToolName: "lookup", ToolArgs: map[string]any{"q": "rust"}},
			{Role: core.RoleTool, ToolCallID: "call_0", Content: "nothing"},
		},
		Tools: []core.ToolSpec{{Name: "lookup", Description: "Look up", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	require.NotNil(t, reply.ToolCall)
	assert.Equal(t, "call_1", reply.ToolCall.ID)
	assert.Equal(t, "lookup", reply.ToolCall.Name)
	assert.Equal(t, map[string]any{"q": "go"}, reply.ToolCall.Args)
	assert.Equal(t, 10, reply.Usage.InputTokens)
	assert.Equal(t, 5, reply.Usage.OutputTokens)

	messages := body["messages"].([]any)
	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "tool", messages[3].(map[string]any)["role"])
	assert.Equal(t, "call_0", messages[3].(map[string]any)["tool_call_id"])
	assert.Len(t, body["tools"], 1)
}

func TestOracle_Text(t *testing.T) {
	o := newTestOracle(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "c2", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "all done"}}]
		}`)
	})

	reply, err := o.Ask(context.Background(), core.OracleRequest{Messages: []core.Message{{Role: core.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "all done", reply.Content)
	assert.Nil(t, reply.ToolCall)
	assert.Equal(t, "gpt-4o-mini", reply.Model)
}

func TestOracle_APIError(t *testing.T) {
	o := newTestOracle(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": {"message": "bad", "type": "invalid_request_error"}}`)
	})

	_, err := o.Ask(context.Background(), core.OracleRequest{Messages: []core.Message{{Role: core.RoleUser, Content: "hi"}}})
	assert.Error(t, err)
}
