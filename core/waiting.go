package core

import "fmt"

// Waiting parks a branch. Without a condition it waits for the child agent
// started by the preceding AgentCall, or marks the branch complete. With a
// condition it is re-evaluated once per tick until the condition is met and
// then continues with NextTool, if any.
type Waiting struct {
	InteractionBase
	Condition    *Condition     `json:"condition,omitempty"`
	NextTool     string         `json:"next_tool,omitempty"`
	NextToolArgs map[string]any `json:"next_tool_args,omitempty"`
	Resolved     bool           `json:"resolved,omitempty"`
}

// Kind implements Interaction.
func (w *Waiting) Kind() string { return KindWaiting }

// Step evaluates the wait exactly once.
func (w *Waiting) Step(sc *StepContext) (bool, error) {
	if w.Resolved {
		return false, nil
	}

	if w.Condition == nil {
		pending, err := w.childPending(sc)
		if err != nil || pending {
			return pending, err
		}

		return w.resolve(sc), nil
	}

	ec := EvalContext{
		Context:       sc.Context,
		Registry:      sc.Registry(),
		Session:       sc.Session,
		Stack:         sc.Stack(),
		Branch:        sc.Branch,
		InteractionID: w.ID,
		Now:           sc.Env.Now(),
		Logger:        sc.Logger(),
	}

	ev, err := w.Condition.Evaluate(ec)
	if err != nil {
		return false, err
	}

	if ev.Mutation != nil {
		ev.Mutation.Apply(ec.stateFor(ev.Mutation.Scope), sc.Logger())
	}

	if ev.Waiting {
		return true, nil
	}

	sc.LogDebug("waiting.resolved", "agent_id", sc.Agent.ID, "branch", BranchLabel(sc.Branch), "evaluator", w.Condition.Evaluator)

	return w.resolve(sc), nil
}

// childPending reports whether the agent started by the preceding AgentCall
// is still working.
func (w *Waiting) childPending(sc *StepContext) (bool, error) {
	call, ok := sc.Stack().Previous(w).(*AgentCall)
	if !ok || call.ChildAgentID == "" {
		return false, nil
	}

	child, ok := sc.Session.Agent(call.ChildAgentID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrAgentNotFound, call.ChildAgentID)
	}

	return !child.Stack().IsBranchComplete(MainBranch), nil
}

func (w *Waiting) resolve(sc *StepContext) bool {
	w.Resolved = true

	if w.NextTool == "" {
		return false
	}

	sc.Emit(&ToolCall{
		InteractionBase: NewInteractionBase(),
		Tool:            w.NextTool,
		Args:            copyArgs(w.NextToolArgs),
	})

	return true
}

// terminal reports whether the wait can never make further progress.
func (w *Waiting) terminal(st *Stack) bool {
	if w.Resolved {
		return true
	}

	if w.Condition != nil || w.NextTool != "" {
		return false
	}

	_, afterCall := st.Previous(w).(*AgentCall)

	return !afterCall
}
