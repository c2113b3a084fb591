package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstack/core"
)

var _ core.Oracle = (*Scripted)(nil)

func TestScripted_RepliesInOrder(t *testing.T) {
	s := NewScripted(Call("lookup", map[string]any{"q": "go"}), Text("done"))

	r1, err := s.Ask(context.Background(), core.OracleRequest{System: "one"})
	require.NoError(t, err)
	require.NotNil(t, r1.ToolCall)
	assert.Equal(t, "lookup", r1.ToolCall.Name)
	assert.NotEmpty(t, r1.ToolCall.ID)

	r2, err := s.Ask(context.Background(), core.OracleRequest{System: "two"})
	require.NoError(t, err)
	assert.Equal(t, "done", r2.Content)
	assert.Nil(t, r2.ToolCall)

	_, err = s.Ask(context.Background(), core.OracleRequest{})
	assert.ErrorIs(t, err, ErrScriptExhausted)

	assert.Equal(t, 3, s.Calls())
	assert.Equal(t, "two", s.Requests()[1].System)
	assert.Equal(t, 0, s.Remaining())
}

func TestScripted_Fallback(t *testing.T) {
	s := NewScripted().WithFallback(func(req core.OracleRequest) (*core.OracleReply, error) {
		return Text("echo " + req.System), nil
	})

	r, err := s.Ask(context.Background(), core.OracleRequest{System: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo hi", r.Content)
}

func TestScripted_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScripted(Text("x")).Ask(ctx, core.OracleRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}
