package core

import (
	"context"
	"fmt"
	"sync"
)

// Agent owns a Stack and steps the tail of each of its active branches once
// per tick.
type Agent struct {
	Identified
	SessionID string

	mu     sync.RWMutex
	config string
	steps  int
	stack  *Stack
}

// NewAgent returns an agent with an empty stack.
func NewAgent(sessionID, config string) *Agent {
	return &Agent{
		Identified: NewIdentified(),
		SessionID:  sessionID,
		config:     config,
		stack:      NewStack(),
	}
}

// Stack returns the agent's interaction log.
func (a *Agent) Stack() *Stack { return a.stack }

// Config returns the name of the agent's current config.
func (a *Agent) Config() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.config
}

// SetConfig switches the agent's config.
func (a *Agent) SetConfig(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.config = name
}

// Steps returns how many ticks made progress on this agent.
func (a *Agent) Steps() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.steps
}

// IsActive reports whether any branch can still step.
func (a *Agent) IsActive() bool {
	return len(a.stack.ActiveBranches()) > 0
}

// Step advances every branch active at the start of the call by exactly one
// interaction. Branches created during the call wait for the next tick. It
// reports whether any branch made progress.
func (a *Agent) Step(ctx context.Context, s *Session) (bool, error) {
	branches := a.stack.ActiveBranches()
	if len(branches) == 0 {
		return false, nil
	}

	before := a.stack.Len()
	progressed := false

	for _, b := range branches {
		if err := ctx.Err(); err != nil {
			return progressed, err
		}

		if a.stack.IsBranchComplete(b) {
			continue
		}

		tail := a.stack.LastForBranch(b)
		if tail == nil {
			continue
		}

		sc := NewStepContext(ctx, s, a, b)

		more, err := tail.Step(sc)
		if err != nil {
			sc.LogError("agent.step.error", "agent_id", a.ID, "branch", BranchLabel(b), "kind", tail.Kind(), "error", err.Error())
			return progressed, fmt.Errorf("agent %s branch %s step %s: %w", a.ID, BranchLabel(b), tail.Kind(), err)
		}

		grew := a.stack.LastForBranch(b) != tail
		if !more && !grew {
			tail.Base().Completed = true
		}

		if more || grew {
			progressed = true
		}
	}

	if a.stack.Len() > before {
		progressed = true
	}

	if !progressed {
		return false, nil
	}

	a.mu.Lock()
	a.steps++
	a.mu.Unlock()

	if err := a.transition(s, a.stack.Since(before)); err != nil {
		return true, err
	}

	return true, nil
}

// transition applies the first matching transition of the current config's
// state machine.
func (a *Agent) transition(s *Session, appended []Interaction) error {
	reg := s.env.registry

	current := a.Config()

	cfg, ok := reg.Config(current)
	if !ok || cfg.StateMachine == nil {
		return nil
	}

	for _, tr := range cfg.StateMachine.Transitions {
		if tr.From != "" && tr.From != current {
			continue
		}

		fired, err := tr.Trigger.fires(a.Steps(), appended, a.stack.State())
		if err != nil {
			return fmt.Errorf("config %s transition: %w", current, err)
		}

		if !fired {
			continue
		}

		if _, ok := reg.Config(tr.To); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownConfig, tr.To)
		}

		a.SetConfig(tr.To)
		s.env.LogInfo("agent.config.transition", "agent_id", a.ID, "from", current, "to", tr.To, "trigger", tr.Trigger.Type)

		return nil
	}

	return nil
}
