// Package agentstack provides a high-level façade over the interaction stack
// runtime. Most applications interact with this package by:
//  1. Creating an AgentStack via New(), registering tasks, configs and tools
//     on the supplied RegistryBuilder
//  2. Running a task (Run) or a task sequence (RunSequence) to completion
//  3. Resuming a persisted session (Resume) after a restart
//
// All defaults are safe for local development and testing: records and files
// live in memory and logging is disabled. Production deployments supply a
// durable store (storage/sqlstore, storage/redisstore), a provider oracle
// (oracle/openai, oracle/anthropic) and a structured logger.
package agentstack

import (
	"context"
	"time"

	"github.com/hupe1980/agentstack/core"
	"github.com/hupe1980/agentstack/logging"
	"github.com/hupe1980/agentstack/runner"
	"github.com/hupe1980/agentstack/storage/memory"
	"github.com/hupe1980/agentstack/tool"
)

// Options configures the AgentStack instance.
type Options struct {
	// Oracle answers AskOracle steps.
	Oracle core.Oracle

	// Stores (default to a shared in-memory store if both are nil)
	Records core.RecordStore
	Files   core.FileStore

	// MaxOracleCalls caps oracle calls across all runs. 0 means unlimited.
	MaxOracleCalls int

	// MaxConcurrentRuns limits simultaneously executing runs.
	MaxConcurrentRuns int

	// MaxSteps caps the ticks of a single run. 0 means no limit.
	MaxSteps int

	// OnTick is invoked after every tick of every run.
	OnTick core.StepCallback

	// Clock overrides time.Now for time based conditions.
	Clock func() time.Time

	// SkipBuiltinTools leaves finish, wait, call_agent, state and artifact
	// unregistered.
	SkipBuiltinTools bool

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// AgentStack is the high-level façade aggregating the environment and runner.
type AgentStack struct {
	opts   Options
	env    *core.Environment
	runner *runner.Runner
}

// New builds the registry through register, freezes it and wires the
// environment. Any unset store is initialized with an in-memory implementation.
func New(register func(b *core.RegistryBuilder), optFns ...func(o *Options)) (*AgentStack, error) {
	opts := Options{
		MaxConcurrentRuns: 10,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Records == nil && opts.Files == nil {
		store := memory.New()
		opts.Records = store
		opts.Files = store
	}

	b := core.NewRegistryBuilder()

	if !opts.SkipBuiltinTools {
		for _, t := range tool.Builtins() {
			b.Tool(t)
		}
	}

	if register != nil {
		register(b)
	}

	reg, err := b.Build()
	if err != nil {
		return nil, err
	}

	env := core.NewEnvironment(reg, func(o *core.EnvironmentOptions) {
		o.Oracle = opts.Oracle
		o.Records = opts.Records
		o.Files = opts.Files
		o.Logger = opts.Logger
		o.Clock = opts.Clock
		o.MaxOracleCalls = opts.MaxOracleCalls
	})

	r := runner.New(env, func(o *runner.Options) {
		o.MaxConcurrentRuns = opts.MaxConcurrentRuns
		o.MaxSteps = opts.MaxSteps
		o.OnTick = opts.OnTick
		o.Logger = opts.Logger
	})

	return &AgentStack{opts: opts, env: env, runner: r}, nil
}

// Env returns the underlying environment.
func (s *AgentStack) Env() *core.Environment { return s.env }

// Runner returns the underlying runner.
func (s *AgentStack) Runner() *runner.Runner { return s.runner }

// Storage returns the typed storage facade.
func (s *AgentStack) Storage() *core.Storage { return s.env.Storage() }

// NewSession returns an empty session for manual stepping.
func (s *AgentStack) NewSession() *core.Session { return s.env.NewSession() }

// Run launches task in a new session and runs it until idle.
func (s *AgentStack) Run(ctx context.Context, task string, params map[string]any) (*runner.Result, error) {
	return s.runner.Start(ctx, task, params)
}

// RunSequence launches a registered task sequence in a new session.
func (s *AgentStack) RunSequence(ctx context.Context, sequence string, params map[string]any) (*runner.Result, error) {
	return s.runner.StartSequence(ctx, sequence, params)
}

// Resume continues a persisted session.
func (s *AgentStack) Resume(ctx context.Context, sessionID string) (*runner.Result, error) {
	return s.runner.Resume(ctx, sessionID)
}
