// Package tool implements the tools agents invoke from a ToolCall step:
// schema validated function adapters, the state and artifact tools, and the
// control tools (finish, wait, call_agent) that steer what follows a
// ToolResult.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentstack/core"
	"github.com/hupe1980/agentstack/internal/util"
)

// Tool is the contract every registered tool satisfies.
type Tool = core.Tool

// ValidationError describes the first argument rejected by a parameter schema.
type ValidationError = util.ValidationError

// Error codes reported in the result of a failed ToolCall.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeExecutionError  = core.CodeExecutionError
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}

	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// ErrorCode implements core.ErrorCoder so the code ends up in the ToolResult.
func (e *ToolError) ErrorCode() string { return e.Code }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

func stringArg(tool string, args map[string]any, name string, required bool) (string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		if required {
			return "", NewToolError(tool, fmt.Sprintf("missing required field '%s'", name), CodeInvalidArgument)
		}

		return "", nil
	}

	s, ok := raw.(string)
	if !ok || (required && s == "") {
		return "", NewToolError(tool, fmt.Sprintf("field '%s' must be a non-empty string", name), CodeInvalidArgument)
	}

	return s, nil
}
