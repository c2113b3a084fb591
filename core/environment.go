package core

import (
	"context"
	"time"

	"github.com/hupe1980/agentstack/logging"
)

// EnvironmentOptions configures NewEnvironment.
type EnvironmentOptions struct {
	// Oracle answers AskOracle steps. Optional for purely deterministic runs.
	Oracle Oracle
	// Records persists sessions, agents, interactions and artifacts.
	Records RecordStore
	// Files stores artifact payloads. Optional.
	Files FileStore
	// Logger receives structured runtime logs.
	Logger logging.Logger
	// Clock returns the current time for time based conditions.
	Clock func() time.Time
	// MaxOracleCalls caps oracle calls; 0 means unlimited.
	MaxOracleCalls int
}

// Environment bundles the collaborators a running session needs: the frozen
// registry, the oracle, storage, the call limiter and the logger.
type Environment struct {
	registry *Registry
	oracle   Oracle
	storage  *Storage
	limiter  *OracleLimiter
	clock    func() time.Time

	*logScope
}

// NewEnvironment creates an environment around a built registry.
func NewEnvironment(reg *Registry, optFns ...func(o *EnvironmentOptions)) *Environment {
	opts := EnvironmentOptions{
		Logger: logging.NoOpLogger{},
		Clock:  time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	env := &Environment{
		registry: reg,
		oracle:   opts.Oracle,
		limiter:  NewOracleLimiter(opts.MaxOracleCalls),
		clock:    opts.Clock,
		logScope: newLogScope(opts.Logger),
	}

	if opts.Records != nil {
		env.storage = NewStorage(env, opts.Records, opts.Files)
	}

	return env
}

// Registry returns the frozen registry.
func (e *Environment) Registry() *Registry { return e.registry }

// Oracle returns the configured oracle (may be nil).
func (e *Environment) Oracle() Oracle { return e.oracle }

// Storage returns the typed storage facade or nil when no record store is configured.
func (e *Environment) Storage() *Storage { return e.storage }

// Limiter returns the oracle call limiter.
func (e *Environment) Limiter() *OracleLimiter { return e.limiter }

// Now returns the environment clock's current time.
func (e *Environment) Now() time.Time { return e.clock() }

// NewSession creates an empty session bound to this environment.
func (e *Environment) NewSession() *Session {
	return NewSession(e)
}

// StepContext is handed to Interaction.Step. It scopes a single transition to
// one agent and one branch.
type StepContext struct {
	Context context.Context
	Env     *Environment
	Session *Session
	Agent   *Agent
	Branch  string

	*logScope
}

// NewStepContext scopes a step to one agent branch.
func NewStepContext(ctx context.Context, s *Session, a *Agent, branch string) *StepContext {
	return &StepContext{
		Context:  ctx,
		Env:      s.env,
		Session:  s,
		Agent:    a,
		Branch:   branch,
		logScope: s.env.logScope.with("session_id", s.ID),
	}
}

// Stack returns the stepping agent's stack.
func (sc *StepContext) Stack() *Stack { return sc.Agent.Stack() }

// Registry returns the environment registry.
func (sc *StepContext) Registry() *Registry { return sc.Env.registry }

// Config returns the agent's current config or nil when none is set.
func (sc *StepContext) Config() *Config {
	name := sc.Agent.Config()
	if name == "" {
		return nil
	}

	cfg, _ := sc.Env.registry.Config(name)

	return cfg
}

// Emit appends an interaction to the stepping branch.
func (sc *StepContext) Emit(it Interaction) {
	it.Base().AgentID = sc.Agent.ID
	sc.Agent.Stack().Add(it, sc.Branch)
	sc.LogDebug("interaction.emit", "agent_id", sc.Agent.ID, "branch", BranchLabel(sc.Branch), "kind", it.Kind(), "id", it.Base().ID)
}

// History returns the interactions visible on the stepping branch.
func (sc *StepContext) History() []Interaction {
	return sc.Agent.Stack().BranchInteractions(sc.Branch)
}

// taskDefinition returns the nearest TaskDefinition visible on the branch.
func (sc *StepContext) taskDefinition() *TaskDefinition {
	history := sc.History()
	for i := len(history) - 1; i >= 0; i-- {
		if td, ok := history[i].(*TaskDefinition); ok {
			return td
		}
	}

	return nil
}
