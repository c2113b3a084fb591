package core

import (
	"errors"
	"fmt"
)

// Builtin response factories.
const (
	ResponseTaskResult = "task_result"
	ResponseWaiting    = "waiting"
	ResponseAgentCall  = "agent_call"
)

// ResponseFactory builds the interaction that follows a ToolResult carrying a
// named ResponseInteraction.
type ResponseFactory func(sc *StepContext, tr *ToolResult, params map[string]any) (Interaction, error)

// InteractionFactory returns a zero value of a custom interaction kind.
type InteractionFactory func() Interaction

// Registry is the frozen lookup of everything a session can refer to by name.
// It is built once through a RegistryBuilder and never mutated afterwards.
type Registry struct {
	tools        map[string]Tool
	toolOrder    []string
	tasks        map[string]*Task
	configs      map[string]*Config
	sequences    map[string][]string
	conditions   map[string]EvaluatorFunc
	responses    map[string]ResponseFactory
	interactions map[string]InteractionFactory
}

// Tool returns a registered tool.
func (r *Registry) Tool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns all tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		out = append(out, r.tools[name])
	}

	return out
}

// Task returns a registered task template. Callers must Clone before mutating.
func (r *Registry) Task(name string) (*Task, bool) {
	t, ok := r.tasks[name]
	return t, ok
}

// Config returns a registered config.
func (r *Registry) Config(name string) (*Config, bool) {
	c, ok := r.configs[name]
	return c, ok
}

// Sequence returns the task names of a registered sequence.
func (r *Registry) Sequence(name string) ([]string, bool) {
	s, ok := r.sequences[name]
	return s, ok
}

// Condition returns a registered evaluator.
func (r *Registry) Condition(name string) (EvaluatorFunc, bool) {
	if r == nil {
		fn, ok := builtinConditions()[name]
		return fn, ok
	}

	fn, ok := r.conditions[name]

	return fn, ok
}

// ResponseFactory returns a registered response factory.
func (r *Registry) ResponseFactory(name string) (ResponseFactory, bool) {
	f, ok := r.responses[name]
	return f, ok
}

// RegistryBuilder collects registrations and validates cross references on Build.
type RegistryBuilder struct {
	reg  *Registry
	errs []error
}

// NewRegistryBuilder returns a builder preloaded with the builtin conditions
// and response factories.
func NewRegistryBuilder() *RegistryBuilder {
	b := &RegistryBuilder{reg: &Registry{
		tools:        map[string]Tool{},
		tasks:        map[string]*Task{},
		configs:      map[string]*Config{},
		sequences:    map[string][]string{},
		conditions:   builtinConditions(),
		responses:    builtinResponses(),
		interactions: map[string]InteractionFactory{},
	}}

	return b
}

func (b *RegistryBuilder) check(kind, name string, exists bool) bool {
	if b.reg == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: %s %q", ErrRegistryFrozen, kind, name))
		return false
	}

	if name == "" {
		b.errs = append(b.errs, fmt.Errorf("%s name must not be empty", kind))
		return false
	}

	if exists {
		b.errs = append(b.errs, fmt.Errorf("%w: %s %q", ErrDuplicateRegistration, kind, name))
		return false
	}

	return true
}

// Tool registers a tool under its name.
func (b *RegistryBuilder) Tool(t Tool) *RegistryBuilder {
	var exists bool
	if b.reg != nil {
		_, exists = b.reg.tools[t.Name()]
	}

	if b.check("tool", t.Name(), exists) {
		b.reg.tools[t.Name()] = t
		b.reg.toolOrder = append(b.reg.toolOrder, t.Name())
	}

	return b
}

// Task registers a task template.
func (b *RegistryBuilder) Task(t *Task) *RegistryBuilder {
	var exists bool
	if b.reg != nil {
		_, exists = b.reg.tasks[t.Name]
	}

	if b.check("task", t.Name, exists) {
		b.reg.tasks[t.Name] = t.Clone()
	}

	return b
}

// Config registers an agent config.
func (b *RegistryBuilder) Config(c *Config) *RegistryBuilder {
	var exists bool
	if b.reg != nil {
		_, exists = b.reg.configs[c.Name]
	}

	if b.check("config", c.Name, exists) {
		cp := *c
		cp.Tools = append([]string(nil), c.Tools...)
		b.reg.configs[c.Name] = &cp
	}

	return b
}

// Sequence registers an ordered list of task names.
func (b *RegistryBuilder) Sequence(name string, tasks ...string) *RegistryBuilder {
	var exists bool
	if b.reg != nil {
		_, exists = b.reg.sequences[name]
	}

	if b.check("sequence", name, exists) {
		b.reg.sequences[name] = append([]string(nil), tasks...)
	}

	return b
}

// Condition registers a condition evaluator. Builtins cannot be replaced.
func (b *RegistryBuilder) Condition(name string, fn EvaluatorFunc) *RegistryBuilder {
	var exists bool
	if b.reg != nil {
		_, exists = b.reg.conditions[name]
	}

	if b.check("condition", name, exists) {
		b.reg.conditions[name] = fn
	}

	return b
}

// ResponseFactory registers a named response factory.
func (b *RegistryBuilder) ResponseFactory(name string, fn ResponseFactory) *RegistryBuilder {
	var exists bool
	if b.reg != nil {
		_, exists = b.reg.responses[name]
	}

	if b.check("response", name, exists) {
		b.reg.responses[name] = fn
	}

	return b
}

// Interaction registers a custom interaction kind.
func (b *RegistryBuilder) Interaction(kind string, ctor InteractionFactory) *RegistryBuilder {
	var exists bool
	if b.reg != nil {
		_, exists = b.reg.interactions[kind]
	}

	if _, builtin := newBuiltinInteraction(kind); builtin {
		exists = true
	}

	if b.check("interaction", kind, exists) {
		b.reg.interactions[kind] = ctor
	}

	return b
}

// Build validates cross references and freezes the registry. The builder
// rejects further registrations afterwards.
func (b *RegistryBuilder) Build() (*Registry, error) {
	reg := b.reg
	if reg == nil {
		return nil, ErrRegistryFrozen
	}

	errs := append([]error(nil), b.errs...)

	for name, c := range reg.configs {
		for _, t := range c.Tools {
			if _, ok := reg.tools[t]; !ok {
				errs = append(errs, fmt.Errorf("%w: %q in config %q", ErrUnknownTool, t, name))
			}
		}

		if c.StateMachine != nil {
			for _, tr := range c.StateMachine.Transitions {
				if _, ok := reg.configs[tr.To]; !ok {
					errs = append(errs, fmt.Errorf("%w: transition target %q in config %q", ErrUnknownConfig, tr.To, name))
				}
			}
		}
	}

	for name, t := range reg.tasks {
		if t.Config != "" {
			if _, ok := reg.configs[t.Config]; !ok {
				errs = append(errs, fmt.Errorf("%w: %q in task %q", ErrUnknownConfig, t.Config, name))
			}
		}

		if t.ChainConfig != "" {
			if _, ok := reg.configs[t.ChainConfig]; !ok {
				errs = append(errs, fmt.Errorf("%w: chain config %q in task %q", ErrUnknownConfig, t.ChainConfig, name))
			}
		}

		if t.NextTask != "" {
			if _, ok := reg.tasks[t.NextTask]; !ok {
				errs = append(errs, fmt.Errorf("%w: next task %q in task %q", ErrUnknownTask, t.NextTask, name))
			}
		}

		if t.TaskSequence != "" {
			if _, ok := reg.sequences[t.TaskSequence]; !ok {
				errs = append(errs, fmt.Errorf("%w: %q in task %q", ErrUnknownSequence, t.TaskSequence, name))
			}
		}
	}

	for name, seq := range reg.sequences {
		if len(seq) == 0 {
			errs = append(errs, fmt.Errorf("sequence %q is empty", name))
		}

		for _, t := range seq {
			if _, ok := reg.tasks[t]; !ok {
				errs = append(errs, fmt.Errorf("%w: %q in sequence %q", ErrUnknownTask, t, name))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	b.reg = nil

	return reg, nil
}

// MustBuild is like Build but panics on error.
func (b *RegistryBuilder) MustBuild() *Registry {
	reg, err := b.Build()
	if err != nil {
		panic(err)
	}

	return reg
}

func builtinResponses() map[string]ResponseFactory {
	return map[string]ResponseFactory{
		ResponseTaskResult: taskResultResponse,
		ResponseWaiting:    waitingResponse,
		ResponseAgentCall:  agentCallResponse,
	}
}

// taskResultResponse finishes the task. params: finish_type, result (defaults
// to the tool result).
func taskResultResponse(_ *StepContext, tr *ToolResult, params map[string]any) (Interaction, error) {
	finish, _ := params["finish_type"].(string)
	if finish == "" {
		finish = FinishSuccess
	}

	if finish != FinishSuccess && finish != FinishFailure {
		return nil, fmt.Errorf("invalid finish_type %q", finish)
	}

	result, ok := params["result"]
	if !ok || result == nil {
		result = tr.Result
	}

	return &TaskResult{InteractionBase: NewInteractionBase(), FinishType: finish, Result: result}, nil
}

// waitingResponse parks the branch. params: condition {evaluator, parameters}
// or evaluator/parameters at the top level, next_tool, next_tool_args.
func waitingResponse(sc *StepContext, _ *ToolResult, params map[string]any) (Interaction, error) {
	w := &Waiting{InteractionBase: NewInteractionBase()}

	src := params
	if c, ok := params["condition"].(map[string]any); ok {
		src = c
	}

	if ev, _ := src["evaluator"].(string); ev != "" {
		if _, ok := sc.Registry().Condition(ev); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCondition, ev)
		}

		p, _ := src["parameters"].(map[string]any)
		w.Condition = &Condition{Evaluator: ev, Parameters: p}
	}

	w.NextTool, _ = params["next_tool"].(string)
	w.NextToolArgs, _ = params["next_tool_args"].(map[string]any)

	return w, nil
}

// agentCallResponse delegates to a child agent. params: task, config, params,
// agent_id.
func agentCallResponse(_ *StepContext, _ *ToolResult, params map[string]any) (Interaction, error) {
	task, _ := params["task"].(string)
	if task == "" {
		return nil, fmt.Errorf("agent_call: task parameter is required")
	}

	ac := &AgentCall{InteractionBase: NewInteractionBase(), Task: task}
	ac.Config, _ = params["config"].(string)
	ac.Params, _ = params["params"].(map[string]any)
	ac.ChildAgentID, _ = params["agent_id"].(string)

	return ac, nil
}
