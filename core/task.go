package core

import (
	"fmt"
	"regexp"
	"sort"
)

// Synthetic parameters carried by tasks that run inside a registered sequence.
const (
	ParamTaskSequence  = "_task_sequence"
	ParamSequenceIndex = "_sequence_index"
)

// Parameter describes a single task input and, once bound, its value.
type Parameter struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Value       any    `json:"value,omitempty"`
}

// Task is a reusable template describing a unit of agent work.
type Task struct {
	Name         string               `json:"name"`
	Description  string               `json:"description,omitempty"`
	Config       string               `json:"config,omitempty"`
	UserTemplate string               `json:"user_template,omitempty"`
	Parameters   map[string]Parameter `json:"parameters,omitempty"`

	// NextTask names a task started automatically after a successful finish.
	NextTask string `json:"next_task,omitempty"`
	// TaskSequence names a registered sequence this task belongs to.
	TaskSequence string `json:"task_sequence,omitempty"`
	// PassResultAs injects this task's result into the next task under the given parameter.
	PassResultAs string `json:"pass_result_as,omitempty"`
	// ChainConfig switches the agent's config when this task is reached through chaining.
	ChainConfig string `json:"chain_config,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	cp := *t
	if t.Parameters != nil {
		cp.Parameters = make(map[string]Parameter, len(t.Parameters))
		for k, p := range t.Parameters {
			p.Value = copyValue(p.Value)
			cp.Parameters[k] = p
		}
	}

	return &cp
}

// WithValues returns a copy of the task with the given parameter values bound.
// Values for undeclared parameters are added as untyped parameters.
func (t *Task) WithValues(values map[string]any) *Task {
	cp := t.Clone()
	if len(values) == 0 {
		return cp
	}

	if cp.Parameters == nil {
		cp.Parameters = map[string]Parameter{}
	}

	for k, v := range values {
		p := cp.Parameters[k]
		p.Value = copyValue(v)
		cp.Parameters[k] = p
	}

	return cp
}

// SetValue binds a single parameter value in place.
func (t *Task) SetValue(name string, value any) {
	if t.Parameters == nil {
		t.Parameters = map[string]Parameter{}
	}

	p := t.Parameters[name]
	p.Value = value
	t.Parameters[name] = p
}

// Value returns the bound value of a parameter.
func (t *Task) Value(name string) (any, bool) {
	p, ok := t.Parameters[name]
	if !ok || p.Value == nil {
		return nil, false
	}

	return p.Value, true
}

// Values returns all bound parameter values keyed by name.
func (t *Task) Values() map[string]any {
	out := make(map[string]any, len(t.Parameters))
	for k, p := range t.Parameters {
		if p.Value != nil {
			out[k] = p.Value
		}
	}

	return out
}

// Validate reports the first required parameter without a value.
func (t *Task) Validate() error {
	names := make([]string, 0, len(t.Parameters))
	for k := range t.Parameters {
		names = append(names, k)
	}

	sort.Strings(names)

	for _, k := range names {
		p := t.Parameters[k]
		if p.Required && p.Value == nil {
			return fmt.Errorf("%w: %s.%s", ErrMissingParameter, t.Name, k)
		}
	}

	return nil
}

// copyValue deep copies JSON shaped values.
func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(x))
		for k, e := range x {
			cp[k] = copyValue(e)
		}
		return cp
	case []any:
		cp := make([]any, len(x))
		for i, e := range x {
			cp[i] = copyValue(e)
		}
		return cp
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}

// copyArgs deep copies a tool argument map.
func copyArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	cp, _ := copyValue(args).(map[string]any)

	return cp
}

// Config selects the model, system prompt and tool set an agent runs with.
type Config struct {
	Name           string              `json:"name"`
	Model          string              `json:"model,omitempty"`
	SystemTemplate string              `json:"system_template,omitempty"`
	Tools          []string            `json:"tools,omitempty"`
	StateMachine   *ConfigStateMachine `json:"state_machine,omitempty"`
}

// Allows reports whether the config permits the named tool. A config without
// a tool list permits every registered tool.
func (c *Config) Allows(tool string) bool {
	if c == nil || len(c.Tools) == 0 {
		return true
	}

	for _, t := range c.Tools {
		if t == tool {
			return true
		}
	}

	return false
}

// Trigger types for config transitions.
const (
	TriggerToolCall     = "tool_call"
	TriggerStepCount    = "step_count"
	TriggerStatePattern = "state_pattern"
)

// ConfigStateMachine switches an agent between configs as it works.
type ConfigStateMachine struct {
	Transitions []ConfigTransition `json:"transitions"`
}

// ConfigTransition moves an agent from one config to another when Trigger fires.
// An empty From matches any current config.
type ConfigTransition struct {
	From    string            `json:"from,omitempty"`
	To      string            `json:"to"`
	Trigger TransitionTrigger `json:"trigger"`
}

// TransitionTrigger is the firing rule of a ConfigTransition.
type TransitionTrigger struct {
	Type      string `json:"type"`
	Tool      string `json:"tool,omitempty"`
	Steps     int    `json:"steps,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Key       string `json:"key,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

// fires reports whether the trigger matches the agent's latest step.
func (tr TransitionTrigger) fires(steps int, appended []Interaction, state *State) (bool, error) {
	switch tr.Type {
	case TriggerToolCall:
		for _, it := range appended {
			if call, ok := it.(*ToolCall); ok && call.Tool == tr.Tool {
				return true, nil
			}
		}
		return false, nil
	case TriggerStepCount:
		return tr.Steps > 0 && steps >= tr.Steps, nil
	case TriggerStatePattern:
		v, ok := state.Lookup(tr.Namespace, tr.Key)
		if !ok {
			return false, nil
		}
		re, err := regexp.Compile(tr.Pattern)
		if err != nil {
			return false, fmt.Errorf("invalid state pattern %q: %w", tr.Pattern, err)
		}
		return re.MatchString(fmt.Sprint(v)), nil
	default:
		return false, fmt.Errorf("unknown transition trigger %q", tr.Type)
	}
}
