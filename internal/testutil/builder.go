package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstack/core"
	"github.com/hupe1980/agentstack/logging"
	"github.com/hupe1980/agentstack/storage/memory"
)

// EnvBuilder helps construct environments with fluent chaining for tests.
// Example:
//
//	env := NewEnvBuilder().Tool(stub).Task(&core.Task{Name: "t"}).Oracle(o).Build(t)
type EnvBuilder struct {
	reg      *core.RegistryBuilder
	oracle   core.Oracle
	logger   logging.Logger
	store    *memory.Store
	clock    func() time.Time
	maxCalls int
}

// NewEnvBuilder creates a builder around an empty registry.
func NewEnvBuilder() *EnvBuilder {
	return &EnvBuilder{reg: core.NewRegistryBuilder()}
}

// Tool registers tools (chainable).
func (b *EnvBuilder) Tool(tools ...core.Tool) *EnvBuilder {
	for _, t := range tools {
		b.reg.Tool(t)
	}

	return b
}

// Task registers tasks (chainable).
func (b *EnvBuilder) Task(tasks ...*core.Task) *EnvBuilder {
	for _, t := range tasks {
		b.reg.Task(t)
	}

	return b
}

// Config registers configs (chainable).
func (b *EnvBuilder) Config(configs ...*core.Config) *EnvBuilder {
	for _, c := range configs {
		b.reg.Config(c)
	}

	return b
}

// Sequence registers a task sequence (chainable).
func (b *EnvBuilder) Sequence(name string, tasks ...string) *EnvBuilder {
	b.reg.Sequence(name, tasks...)
	return b
}

// Condition registers a custom evaluator (chainable).
func (b *EnvBuilder) Condition(name string, fn core.EvaluatorFunc) *EnvBuilder {
	b.reg.Condition(name, fn)
	return b
}

// Registry exposes the underlying registry builder for less common registrations.
func (b *EnvBuilder) Registry() *core.RegistryBuilder { return b.reg }

// Oracle sets the oracle (chainable).
func (b *EnvBuilder) Oracle(o core.Oracle) *EnvBuilder { b.oracle = o; return b }

// Logger sets the logger (chainable).
func (b *EnvBuilder) Logger(l logging.Logger) *EnvBuilder { b.logger = l; return b }

// Clock overrides the environment clock (chainable).
func (b *EnvBuilder) Clock(fn func() time.Time) *EnvBuilder { b.clock = fn; return b }

// MaxOracleCalls caps oracle calls (chainable).
func (b *EnvBuilder) MaxOracleCalls(n int) *EnvBuilder { b.maxCalls = n; return b }

// Store enables persistence into s (chainable).
func (b *EnvBuilder) Store(s *memory.Store) *EnvBuilder { b.store = s; return b }

// Build freezes the registry and returns the environment. Registry errors
// fail the test.
func (b *EnvBuilder) Build(t testing.TB) *core.Environment {
	t.Helper()

	reg, err := b.reg.Build()
	require.NoError(t, err)

	return core.NewEnvironment(reg, func(o *core.EnvironmentOptions) {
		o.Oracle = b.oracle
		o.MaxOracleCalls = b.maxCalls

		if b.logger != nil {
			o.Logger = b.logger
		}

		if b.clock != nil {
			o.Clock = b.clock
		}

		if b.store != nil {
			o.Records = b.store
			o.Files = b.store
		}
	})
}
