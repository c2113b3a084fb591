package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentstack/core"
)

// StateTool reads and writes namespaced state. The stack scope is private to
// the invoking agent, the session scope is shared by all agents of the
// session.
type StateTool struct{}

// NewStateTool returns the state tool.
func NewStateTool() *StateTool { return &StateTool{} }

// Name returns the tool identifier.
func (t *StateTool) Name() string { return "state" }

// Description returns the tool description.
func (t *StateTool) Description() string {
	return "Manages namespaced agent and session state. " +
		"Supports operations: get, set, delete, list."
}

// Parameters returns the JSON schema for tool parameters.
func (t *StateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"get", "set", "delete", "list"},
				"description": "The state operation to perform",
			},
			"scope": map[string]any{
				"type":        "string",
				"enum":        []string{core.ScopeStack, core.ScopeSession},
				"description": "stack (agent private, default) or session (shared)",
			},
			"namespace": map[string]any{
				"type":        "string",
				"description": "State namespace (default: common)",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "State key for get/set/delete",
			},
			"value": map[string]any{
				"description": "Value for set (any type)",
			},
		},
		"required": []string{"operation"},
	}
}

// Call implements core.Tool.
func (t *StateTool) Call(tc *core.ToolContext, args map[string]any) (*core.ToolOutput, error) {
	operation, err := stringArg(t.Name(), args, "operation", true)
	if err != nil {
		return nil, err
	}

	scope, err := stringArg(t.Name(), args, "scope", false)
	if err != nil {
		return nil, err
	}

	ns, err := stringArg(t.Name(), args, "namespace", false)
	if err != nil {
		return nil, err
	}

	if ns == "" {
		ns = core.CommonNamespace
	}

	var state *core.State

	switch scope {
	case "", core.ScopeStack:
		state = tc.State()
	case core.ScopeSession:
		state = tc.SessionState()
	default:
		return nil, NewToolError(t.Name(), fmt.Sprintf("unknown scope: %s", scope), CodeInvalidArgument)
	}

	switch operation {
	case "get":
		return t.handleGet(state, ns, args)
	case "set":
		return t.handleSet(tc, state, ns, args)
	case "delete":
		return t.handleDelete(state, ns, args)
	case "list":
		return core.Output(map[string]any{
			"namespace": ns,
			"values":    state.Namespace(ns),
		}), nil
	default:
		return nil, NewToolError(t.Name(), fmt.Sprintf("unknown operation: %s", operation), CodeInvalidArgument)
	}
}

func (t *StateTool) handleGet(state *core.State, ns string, args map[string]any) (*core.ToolOutput, error) {
	key, err := stringArg(t.Name(), args, "key", true)
	if err != nil {
		return nil, err
	}

	value, exists := state.Lookup(ns, key)

	return core.Output(map[string]any{
		"namespace": ns,
		"key":       key,
		"exists":    exists,
		"value":     value,
	}), nil
}

func (t *StateTool) handleSet(tc *core.ToolContext, state *core.State, ns string, args map[string]any) (*core.ToolOutput, error) {
	key, err := stringArg(t.Name(), args, "key", true)
	if err != nil {
		return nil, err
	}

	value := args["value"]
	state.Set(ns, key, value)

	tc.Logger().Debug("tool.state.set", "namespace", ns, "key", key)

	return core.Output(map[string]any{
		"namespace": ns,
		"key":       key,
		"value":     value,
		"success":   true,
	}), nil
}

func (t *StateTool) handleDelete(state *core.State, ns string, args map[string]any) (*core.ToolOutput, error) {
	key, err := stringArg(t.Name(), args, "key", true)
	if err != nil {
		return nil, err
	}

	if err := state.Delete(ns, key); err != nil {
		if errors.Is(err, core.ErrKeyNotFound) {
			return nil, NewToolError(t.Name(), err.Error(), CodeNotFound)
		}
		return nil, err
	}

	return core.Output(map[string]any{
		"namespace": ns,
		"key":       key,
		"success":   true,
	}), nil
}
