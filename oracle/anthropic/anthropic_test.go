package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstack/core"
)

var _ core.Oracle = (*Oracle)(nil)

func TestOracle_ToolUse(t *testing.T) {
	var body map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)

		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-sonnet-20241022",
			"content": [
				{"type": "text", "text": "Looking it up."},
				{"type": "tool_use", "id": "tu_1", "name": "lookup", "input": {"q": "go"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 12, "output_tokens": 7}
		}`)
	}))
	t.Cleanup(srv.Close)

	o := New(func(o *Options) {
		o.APIKey = "test"
		o.RequestOptions = []option.RequestOption{option.WithBaseURL(srv.URL + "/"), option.WithMaxRetries(0)}
	})

	reply, err := o.Ask(context.Background(), core.OracleRequest{
		System: "be helpful",
		Messages: []core.Message{
			{Role: core.RoleUser, Content: "find go"},
			{Role: core.RoleAssistant, ToolCallID: "tu_0", ToolName: "lookup", ToolArgs: map[string]any{"q": "rust"}},
			{Role: core.RoleTool, ToolCallID: "tu_0", Content: "nothing"},
			{Role: core.RoleUser, Content: "try again"},
		},
		Tools: []core.ToolSpec{{
			Name:        "lookup",
			Description: "Look up",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"q": map[string]any{"type": "string"}},
				"required":   []string{"q"},
			},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Looking it up.", reply.Content)
	require.NotNil(t, reply.ToolCall)
	assert.Equal(t, "tu_1", reply.ToolCall.ID)
	assert.Equal(t, map[string]any{"q": "go"}, reply.ToolCall.Args)
	assert.Equal(t, 12, reply.Usage.InputTokens)

	messages := body["messages"].([]any)
	require.Len(t, messages, 3)

	last := messages[2].(map[string]any)
	assert.Equal(t, "user", last["role"])
	assert.Len(t, last["content"], 2)
}

func TestBuildMessages_MergesUserTurns(t *testing.T) {
	msgs := buildMessages([]core.Message{
		{Role: core.RoleUser, Content: "a"},
		{Role: core.RoleUser, Content: "b"},
		{Role: core.RoleAssistant, Content: "c"},
	})

	require.Len(t, msgs, 2)
	assert.Len(t, msgs[0].Content, 2)
}
