package core

// Tool is a capability an agent can invoke. Implementations live in the tool
// package; core only depends on this contract.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a JSON schema describing the accepted arguments.
	Parameters() map[string]any
	Call(tc *ToolContext, args map[string]any) (*ToolOutput, error)
}

// ToolOutput is what a tool hands back to the ToolCall step.
type ToolOutput struct {
	Result any
	// NextTool chains a deterministic call without consulting the oracle.
	NextTool     string
	NextToolArgs map[string]any
	// ExcludeFromContext hides the result from later oracle transcripts.
	ExcludeFromContext bool
	// Response replaces the default follow-up interaction.
	Response *ResponseInteraction
	// Spawn forks one child branch per entry and joins them before continuing.
	Spawn []BranchSpawn
}

// BranchSpawn describes a child branch started by a tool.
type BranchSpawn struct {
	Name string         `json:"name"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// Output wraps a plain result.
func Output(result any) *ToolOutput {
	return &ToolOutput{Result: result}
}

// ErrorCoder is implemented by tool errors carrying a machine readable code.
type ErrorCoder interface {
	ErrorCode() string
}

// Tool error codes produced by the ToolCall step itself.
const (
	CodeUnknownTool    = "UNKNOWN_TOOL"
	CodeToolNotAllowed = "TOOL_NOT_ALLOWED"
	CodeExecutionError = "EXECUTION_ERROR"
	CodePanic          = "PANIC"
)
