package testutil

import (
	"sync"

	"github.com/hupe1980/agentstack/core"
)

// StubFunc implements a StubTool.
type StubFunc func(tc *core.ToolContext, args map[string]any) (*core.ToolOutput, error)

// StubTool is a core.Tool recording the arguments of every call.
type StubTool struct {
	name string
	fn   StubFunc

	mu    sync.Mutex
	calls []map[string]any
}

var _ core.Tool = (*StubTool)(nil)

// NewStubTool returns a tool backed by fn.
func NewStubTool(name string, fn StubFunc) *StubTool {
	return &StubTool{name: name, fn: fn}
}

// Returning returns a tool that always yields result.
func Returning(name string, result any) *StubTool {
	return NewStubTool(name, func(_ *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		return core.Output(result), nil
	})
}

// Name implements core.Tool.
func (s *StubTool) Name() string { return s.name }

// Description implements core.Tool.
func (s *StubTool) Description() string { return "stub " + s.name }

// Parameters implements core.Tool.
func (s *StubTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// Call implements core.Tool.
func (s *StubTool) Call(tc *core.ToolContext, args map[string]any) (*core.ToolOutput, error) {
	s.mu.Lock()
	s.calls = append(s.calls, args)
	s.mu.Unlock()

	return s.fn(tc, args)
}

// Calls returns how many times the tool ran.
func (s *StubTool) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.calls)
}

// Args returns the arguments of call i.
func (s *StubTool) Args(i int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[i]
}
