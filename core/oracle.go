package core

import "context"

// Message roles in an oracle transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one transcript entry handed to an oracle.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	// ToolCallID correlates an assistant tool call with its tool response.
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolArgs   map[string]any `json:"tool_args,omitempty"`
}

// ToolSpec advertises a tool to the oracle.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// OracleRequest is a single oracle query.
type OracleRequest struct {
	Model    string     `json:"model,omitempty"`
	System   string     `json:"system,omitempty"`
	Messages []Message  `json:"messages"`
	Tools    []ToolSpec `json:"tools,omitempty"`
}

// OracleToolCall is a tool selected by the oracle.
type OracleToolCall struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

// Usage reports token consumption of an oracle call.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// OracleReply is the oracle's answer: free text, a tool call, or both.
type OracleReply struct {
	Content  string          `json:"content,omitempty"`
	ToolCall *OracleToolCall `json:"tool_call,omitempty"`
	Model    string          `json:"model,omitempty"`
	Usage    Usage           `json:"usage"`
}

// Oracle is the LLM collaborator queried by AskOracle steps.
type Oracle interface {
	Ask(ctx context.Context, req OracleRequest) (*OracleReply, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, req OracleRequest) (*OracleReply, error)

// Ask calls f.
func (f OracleFunc) Ask(ctx context.Context, req OracleRequest) (*OracleReply, error) {
	return f(ctx, req)
}
