package tool

import (
	"fmt"

	"github.com/hupe1980/agentstack/core"
)

// FinishTool ends the current task with a TaskResult.
type FinishTool struct{}

// NewFinishTool returns the finish tool.
func NewFinishTool() Tool { return &FinishTool{} }

func (t *FinishTool) Name() string { return "finish" }

func (t *FinishTool) Description() string {
	return "Finish the current task. Call with the final result once the task is done or cannot be completed."
}

func (t *FinishTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"finish_type": map[string]any{
				"type": "string",
				"enum": []string{core.FinishSuccess, core.FinishFailure},
			},
			"result": map[string]any{"description": "The task result"},
		},
		"required": []string{"result"},
	}
}

func (t *FinishTool) Call(_ *core.ToolContext, args map[string]any) (*core.ToolOutput, error) {
	finishType, err := stringArg(t.Name(), args, "finish_type", false)
	if err != nil {
		return nil, err
	}

	if finishType == "" {
		finishType = core.FinishSuccess
	}

	if finishType != core.FinishSuccess && finishType != core.FinishFailure {
		return nil, NewToolError(t.Name(), fmt.Sprintf("invalid finish_type %q", finishType), CodeInvalidArgument)
	}

	result := args["result"]

	return &core.ToolOutput{
		Result:   result,
		Response: core.Finish(finishType, result),
	}, nil
}

// WaitTool parks the branch on a condition and optionally schedules a tool
// to run once it resolves.
type WaitTool struct{}

// NewWaitTool returns the wait tool.
func NewWaitTool() Tool { return &WaitTool{} }

func (t *WaitTool) Name() string { return "wait" }

func (t *WaitTool) Description() string {
	return "Pause this branch until a condition holds, e.g. wait_for_ticks, wait_for_seconds or wait_for_state_key."
}

func (t *WaitTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"evaluator":      map[string]any{"type": "string", "description": "Registered condition name"},
			"parameters":     map[string]any{"type": "object", "description": "Condition parameters"},
			"next_tool":      map[string]any{"type": "string", "description": "Tool to call once the condition resolves"},
			"next_tool_args": map[string]any{"type": "object"},
		},
		"required": []string{"evaluator"},
	}
}

func (t *WaitTool) Call(tc *core.ToolContext, args map[string]any) (*core.ToolOutput, error) {
	evaluator, err := stringArg(t.Name(), args, "evaluator", true)
	if err != nil {
		return nil, err
	}

	if _, ok := tc.Registry().Condition(evaluator); !ok {
		return nil, NewToolError(t.Name(), fmt.Sprintf("unknown condition: %s", evaluator), CodeInvalidArgument)
	}

	params := map[string]any{"evaluator": evaluator}
	for _, k := range []string{"parameters", "next_tool", "next_tool_args"} {
		if v, ok := args[k]; ok {
			params[k] = v
		}
	}

	return &core.ToolOutput{
		Result:   map[string]any{"waiting": evaluator},
		Response: core.Named(core.ResponseWaiting, params),
	}, nil
}

// CallAgentTool delegates a registered task to a child agent and blocks the
// branch until the child finishes.
type CallAgentTool struct{}

// NewCallAgentTool returns the call_agent tool.
func NewCallAgentTool() Tool { return &CallAgentTool{} }

func (t *CallAgentTool) Name() string { return "call_agent" }

func (t *CallAgentTool) Description() string {
	return "Delegate a registered task to a sub-agent. The result is reported back when the sub-agent finishes."
}

func (t *CallAgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task":     map[string]any{"type": "string", "description": "Registered task name"},
			"config":   map[string]any{"type": "string", "description": "Config for the sub-agent"},
			"params":   map[string]any{"type": "object", "description": "Task parameter values"},
			"agent_id": map[string]any{"type": "string", "description": "Reuse an existing agent"},
		},
		"required": []string{"task"},
	}
}

func (t *CallAgentTool) Call(tc *core.ToolContext, args map[string]any) (*core.ToolOutput, error) {
	task, err := stringArg(t.Name(), args, "task", true)
	if err != nil {
		return nil, err
	}

	if _, ok := tc.Registry().Task(task); !ok {
		return nil, NewToolError(t.Name(), fmt.Sprintf("unknown task: %s", task), CodeInvalidArgument)
	}

	params := map[string]any{"task": task}
	for _, k := range []string{"config", "params", "agent_id"} {
		if v, ok := args[k]; ok {
			params[k] = v
		}
	}

	return &core.ToolOutput{
		Result:   map[string]any{"delegated": task},
		Response: core.Named(core.ResponseAgentCall, params),
	}, nil
}

// Builtins returns the control, state and artifact tools.
func Builtins() []Tool {
	return []Tool{
		NewFinishTool(),
		NewWaitTool(),
		NewCallAgentTool(),
		NewStateTool(),
		NewArtifactTool(),
	}
}
