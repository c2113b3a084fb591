package core

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentstack/logging"
)

// Builtin condition evaluators.
const (
	CondWaitForTicks        = "wait_for_ticks"
	CondWaitForSeconds      = "wait_for_seconds"
	CondAllBranchesComplete = "all_branches_complete"
	CondWaitForStateKey     = "wait_for_state_key"
	CondWaitForAgent        = "wait_for_agent"
)

// Condition names a registered evaluator and the parameters it is called with.
type Condition struct {
	Evaluator  string         `json:"evaluator"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// EvalContext is what an evaluator can observe.
type EvalContext struct {
	Context       context.Context
	Registry      *Registry
	Session       *Session
	Stack         *Stack
	Branch        string
	InteractionID string
	Now           time.Time
	Logger        logging.Logger
}

func (ec EvalContext) stateFor(scope string) *State {
	if scope == ScopeSession && ec.Session != nil {
		return ec.Session.State()
	}

	if ec.Stack == nil {
		return nil
	}

	return ec.Stack.State()
}

// Evaluation is an evaluator's verdict. Evaluators never write state; they
// return the single mutation the caller applies.
type Evaluation struct {
	Waiting  bool
	Mutation *StateMutation
}

// EvaluatorFunc decides whether a Waiting interaction keeps waiting.
type EvaluatorFunc func(ec EvalContext, params map[string]any) (Evaluation, error)

// Evaluate runs the condition's evaluator.
func (c *Condition) Evaluate(ec EvalContext) (Evaluation, error) {
	fn, ok := ec.Registry.Condition(c.Evaluator)
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: %s", ErrUnknownCondition, c.Evaluator)
	}

	return fn(ec, c.Parameters)
}

func builtinConditions() map[string]EvaluatorFunc {
	return map[string]EvaluatorFunc{
		CondWaitForTicks:        waitForTicks,
		CondWaitForSeconds:      waitForSeconds,
		CondAllBranchesComplete: allBranchesComplete,
		CondWaitForStateKey:     waitForStateKey,
		CondWaitForAgent:        waitForAgent,
	}
}

// waitForTicks keeps waiting for params.ticks evaluations. The counter lives
// in the branch namespace under wait_ticks:<interaction id>.
func waitForTicks(ec EvalContext, params map[string]any) (Evaluation, error) {
	ticks, ok := toInt(params["ticks"])
	if !ok {
		return Evaluation{}, fmt.Errorf("%s: ticks parameter is required", CondWaitForTicks)
	}

	ns := BranchNamespace(ec.Branch)
	key := "wait_ticks:" + ec.InteractionID

	count, _ := toInt(ec.Stack.State().Get(ns, key, 0))
	count++

	if count >= ticks {
		ev := Evaluation{}
		if count > 1 {
			ev.Mutation = &StateMutation{Namespace: ns, Key: key, Delete: true}
		}

		return ev, nil
	}

	return Evaluation{
		Waiting:  true,
		Mutation: &StateMutation{Namespace: ns, Key: key, Value: count},
	}, nil
}

// waitForSeconds keeps waiting until params.seconds elapsed since the first
// evaluation. The start time is stored as unix seconds.
func waitForSeconds(ec EvalContext, params map[string]any) (Evaluation, error) {
	seconds, ok := toFloat(params["seconds"])
	if !ok {
		return Evaluation{}, fmt.Errorf("%s: seconds parameter is required", CondWaitForSeconds)
	}

	if seconds <= 0 {
		return Evaluation{}, nil
	}

	ns := BranchNamespace(ec.Branch)
	key := "wait_seconds:" + ec.InteractionID
	now := float64(ec.Now.UnixNano()) / float64(time.Second)

	v, ok := ec.Stack.State().Lookup(ns, key)
	if !ok {
		return Evaluation{
			Waiting:  true,
			Mutation: &StateMutation{Namespace: ns, Key: key, Value: now},
		}, nil
	}

	start, _ := toFloat(v)
	if now-start >= seconds {
		return Evaluation{Mutation: &StateMutation{Namespace: ns, Key: key, Delete: true}}, nil
	}

	return Evaluation{Waiting: true}, nil
}

// allBranchesComplete waits until every branch in params.branches is complete.
func allBranchesComplete(ec EvalContext, params map[string]any) (Evaluation, error) {
	branches, err := stringList(params["branches"])
	if err != nil {
		return Evaluation{}, fmt.Errorf("%s: %w", CondAllBranchesComplete, err)
	}

	for _, b := range branches {
		if !ec.Stack.IsBranchComplete(b) {
			return Evaluation{Waiting: true}, nil
		}
	}

	return Evaluation{}, nil
}

// waitForStateKey waits until params.key exists in params.namespace of the
// stack state, or of the session state when params.scope is "session".
func waitForStateKey(ec EvalContext, params map[string]any) (Evaluation, error) {
	key, _ := params["key"].(string)
	if key == "" {
		return Evaluation{}, fmt.Errorf("%s: key parameter is required", CondWaitForStateKey)
	}

	ns, _ := params["namespace"].(string)
	if ns == "" {
		ns = CommonNamespace
	}

	scope, _ := params["scope"].(string)

	state := ec.stateFor(scope)
	if state == nil {
		return Evaluation{Waiting: true}, nil
	}

	_, ok := state.Lookup(ns, key)

	return Evaluation{Waiting: !ok}, nil
}

// waitForAgent waits until the main branch of params.agent_id is complete.
func waitForAgent(ec EvalContext, params map[string]any) (Evaluation, error) {
	id, _ := params["agent_id"].(string)
	if id == "" {
		return Evaluation{}, fmt.Errorf("%s: agent_id parameter is required", CondWaitForAgent)
	}

	a, ok := ec.Session.Agent(id)
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}

	return Evaluation{Waiting: !a.Stack().IsBranchComplete(MainBranch)}, nil
}

func stringList(v any) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected string list, got element %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", v)
	}
}
