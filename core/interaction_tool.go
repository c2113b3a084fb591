package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// ToolCall invokes a tool. An empty ToolCallID marks a deterministic call
// that did not originate from the oracle.
type ToolCall struct {
	InteractionBase
	Tool       string         `json:"tool"`
	Args       map[string]any `json:"args,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// Kind implements Interaction.
func (tc *ToolCall) Kind() string { return KindToolCall }

// Step executes the tool and records a ToolResult. Tool failures become
// error results so the oracle can react to them.
func (tc *ToolCall) Step(sc *StepContext) (bool, error) {
	result := &ToolResult{
		InteractionBase:  NewInteractionBase(),
		Tool:             tc.Tool,
		ToolCallID:       tc.ToolCallID,
		IncludeInContext: true,
	}

	start := time.Now()

	out, artifacts, err := tc.execute(sc, result.ID)
	if err != nil {
		code := CodeExecutionError

		var coder ErrorCoder
		if errors.As(err, &coder) && coder.ErrorCode() != "" {
			code = coder.ErrorCode()
		}

		result.IsError = true
		result.Result = map[string]any{"error": err.Error(), "code": code}

		sc.LogWarn("tool.call.error", "agent_id", sc.Agent.ID, "branch", BranchLabel(sc.Branch), "tool", tc.Tool, "code", code, "error", err.Error())
	} else {
		result.Result = out.Result
		result.NextTool = out.NextTool
		result.NextToolArgs = copyArgs(out.NextToolArgs)
		result.IncludeInContext = !out.ExcludeFromContext
		result.Response = out.Response
		result.Spawn = out.Spawn

		sc.LogInfo("tool.call.success", "agent_id", sc.Agent.ID, "branch", BranchLabel(sc.Branch), "tool", tc.Tool, "duration_ms", time.Since(start).Milliseconds())
	}

	result.Artifacts = artifacts

	sc.Emit(result)

	return true, nil
}

// execute looks up the tool, checks the config allows it and runs it with
// panic recovery.
func (tc *ToolCall) execute(sc *StepContext, resultID string) (out *ToolOutput, artifacts []string, err error) {
	impl, ok := sc.Registry().Tool(tc.Tool)
	if !ok {
		return nil, nil, &toolFailure{code: CodeUnknownTool, msg: fmt.Sprintf("unknown tool %q", tc.Tool)}
	}

	if cfg := sc.Config(); !cfg.Allows(tc.Tool) {
		return nil, nil, &toolFailure{code: CodeToolNotAllowed, msg: fmt.Sprintf("tool %q is not allowed by config %q", tc.Tool, cfg.Name)}
	}

	toolCtx := NewToolContext(sc, tc, resultID)

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &toolFailure{code: CodePanic, msg: fmt.Sprintf("panic: %v", r)}
				sc.LogError("tool.call.panic", "tool", tc.Tool, "recover", r, "stack", string(debug.Stack()))
			}
		}()

		out, err = impl.Call(toolCtx, copyArgs(tc.Args))
	}()

	if err == nil && out == nil {
		out = &ToolOutput{}
	}

	return out, toolCtx.artifacts, err
}

type toolFailure struct {
	code string
	msg  string
}

func (f *toolFailure) Error() string     { return f.msg }
func (f *toolFailure) ErrorCode() string { return f.code }

// ToolResult records the outcome of a ToolCall and decides what follows it.
type ToolResult struct {
	InteractionBase
	Tool             string               `json:"tool"`
	ToolCallID       string               `json:"tool_call_id,omitempty"`
	Result           any                  `json:"result,omitempty"`
	IsError          bool                 `json:"is_error,omitempty"`
	NextTool         string               `json:"next_tool,omitempty"`
	NextToolArgs     map[string]any       `json:"next_tool_args,omitempty"`
	IncludeInContext bool                 `json:"include_in_context"`
	Response         *ResponseInteraction `json:"response_interaction,omitempty"`
	Spawn            []BranchSpawn        `json:"spawn,omitempty"`
}

// Kind implements Interaction.
func (tr *ToolResult) Kind() string { return KindToolResult }

// Step continues after a tool. Precedence: spawned branches, then a
// deterministic next tool, then a response interaction, then the oracle.
func (tr *ToolResult) Step(sc *StepContext) (bool, error) {
	if len(tr.Spawn) > 0 {
		return tr.spawn(sc)
	}

	if tr.NextTool != "" {
		sc.Emit(&ToolCall{
			InteractionBase: NewInteractionBase(),
			Tool:            tr.NextTool,
			Args:            copyArgs(tr.NextToolArgs),
		})

		return true, nil
	}

	if tr.Response != nil {
		next, err := tr.Response.resolve(sc, tr)
		if err != nil {
			return false, err
		}

		sc.Emit(next)

		return true, nil
	}

	sc.Emit(&AskOracle{InteractionBase: NewInteractionBase()})

	return true, nil
}

// spawn forks a child branch per entry and parks this branch until they all
// complete.
func (tr *ToolResult) spawn(sc *StepContext) (bool, error) {
	st := sc.Stack()

	pos, ok := st.Position(tr.ID)
	if !ok {
		return false, fmt.Errorf("%w: interaction %s", ErrNotFound, tr.ID)
	}

	branches := make([]any, 0, len(tr.Spawn))
	for _, sp := range tr.Spawn {
		child := BuildBranchPath(sc.Branch, sp.Name)
		if err := st.ForkAt(child, sc.Branch, pos); err != nil {
			return false, err
		}

		call := &ToolCall{InteractionBase: NewInteractionBase(), Tool: sp.Tool, Args: copyArgs(sp.Args)}
		call.AgentID = sc.Agent.ID
		st.Add(call, child)

		branches = append(branches, child)
	}

	sc.LogInfo("branch.spawn", "agent_id", sc.Agent.ID, "branch", BranchLabel(sc.Branch), "children", branches)

	sc.Emit(&Waiting{
		InteractionBase: NewInteractionBase(),
		Condition:       &Condition{Evaluator: CondAllBranchesComplete, Parameters: map[string]any{"branches": branches}},
		NextTool:        tr.NextTool,
		NextToolArgs:    copyArgs(tr.NextToolArgs),
	})

	return true, nil
}

// ResponseInteraction overrides what follows a ToolResult. Name selects a
// registered response factory; Instance carries a ready interaction.
type ResponseInteraction struct {
	Name     string         `json:"name,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Instance Interaction    `json:"-"`

	record *Record
}

// Named returns a response resolved through a registered factory.
func Named(name string, params map[string]any) *ResponseInteraction {
	return &ResponseInteraction{Name: name, Params: params}
}

// Instance returns a response that emits it as-is.
func Instance(it Interaction) *ResponseInteraction {
	return &ResponseInteraction{Instance: it}
}

// Finish returns a response that finishes the current task.
func Finish(finishType string, result any) *ResponseInteraction {
	return Named(ResponseTaskResult, map[string]any{"finish_type": finishType, "result": result})
}

// Complete returns a response that ends the current branch.
func Complete() *ResponseInteraction {
	return Named(ResponseWaiting, nil)
}

type responseWire struct {
	Name     string         `json:"name,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Instance *Record        `json:"instance,omitempty"`
}

// MarshalJSON encodes an Instance as a nested record.
func (r ResponseInteraction) MarshalJSON() ([]byte, error) {
	w := responseWire{Name: r.Name, Params: r.Params, Instance: r.record}

	if r.Instance != nil {
		rec, err := EncodeInteraction(r.Instance)
		if err != nil {
			return nil, err
		}

		w.Instance = &rec
	}

	return json.Marshal(w)
}

// UnmarshalJSON keeps a nested instance record until it is resolved against
// the registry.
func (r *ResponseInteraction) UnmarshalJSON(b []byte) error {
	var w responseWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	r.Name = w.Name
	r.Params = w.Params
	r.Instance = nil
	r.record = w.Instance

	return nil
}

// resolve produces the follow-up interaction. Instances are emitted with a
// fresh identity so re-resolving never duplicates an id.
func (r *ResponseInteraction) resolve(sc *StepContext, tr *ToolResult) (Interaction, error) {
	if r.Instance == nil && r.record != nil {
		it, err := sc.Registry().DecodeInteraction(*r.record)
		if err != nil {
			return nil, err
		}

		r.Instance = it
	}

	if r.Instance != nil {
		rec, err := EncodeInteraction(r.Instance)
		if err != nil {
			return nil, err
		}

		it, err := sc.Registry().DecodeInteraction(rec)
		if err != nil {
			return nil, err
		}

		it.Base().Identified = NewIdentified()

		return it, nil
	}

	factory, ok := sc.Registry().ResponseFactory(r.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResponse, r.Name)
	}

	return factory(sc, tr, copyArgs(r.Params))
}
