package core

import (
	"context"
	"fmt"
	"sync"
)

// StepCallback is invoked by Run after every tick. Returning an error stops
// the run and is returned to the caller.
type StepCallback func(s *Session, tick int) error

// Session groups the agents working together plus the state they share. It
// steps agents in registration order, one tick at a time.
type Session struct {
	Identified

	env   *Environment
	state *State

	mu     sync.RWMutex
	agents []*Agent
	index  map[string]*Agent
}

// NewSession returns an empty session bound to env.
func NewSession(env *Environment) *Session {
	s := newSession(env, NewIdentified())

	if st := env.Storage(); st != nil {
		st.track(s)
	}

	return s
}

func newSession(env *Environment, id Identified) *Session {
	return &Session{
		Identified: id,
		env:        env,
		state:      NewState(),
		index:      map[string]*Agent{},
	}
}

// Env returns the session's environment.
func (s *Session) Env() *Environment { return s.env }

// State returns the state shared by all agents of the session.
func (s *Session) State() *State { return s.state }

// NewAgent creates and registers an agent running config.
func (s *Session) NewAgent(config string) *Agent {
	a := NewAgent(s.ID, config)
	s.AddAgent(a)

	return a
}

// AddAgent registers an existing agent. Registering the same id twice is a no-op.
func (s *Session) AddAgent(a *Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[a.ID]; ok {
		return
	}

	a.SessionID = s.ID
	s.agents = append(s.agents, a)
	s.index[a.ID] = a
}

// Agent looks up an agent by id.
func (s *Session) Agent(id string) (*Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.index[id]

	return a, ok
}

// Agents returns the agents in registration order.
func (s *Session) Agents() []*Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*Agent(nil), s.agents...)
}

// RemoveAgent unregisters an agent.
func (s *Session) RemoveAgent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}

	delete(s.index, id)

	for i, a := range s.agents {
		if a.ID == id {
			s.agents = append(s.agents[:i], s.agents[i+1:]...)
			break
		}
	}

	return nil
}

// Launch starts a registered task on a new agent. An empty config falls back
// to the task's config.
func (s *Session) Launch(task string, params map[string]any, config string) (*Agent, error) {
	def, ok := s.env.registry.Task(task)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}

	t := def.WithValues(params)

	return s.launch(t, config)
}

// LaunchSequence starts the first task of a registered sequence.
func (s *Session) LaunchSequence(sequence string, params map[string]any, config string) (*Agent, error) {
	seq, ok := s.env.registry.Sequence(sequence)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSequence, sequence)
	}

	def, ok := s.env.registry.Task(seq[0])
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, seq[0])
	}

	t := def.WithValues(params)
	t.SetValue(ParamTaskSequence, sequence)
	t.SetValue(ParamSequenceIndex, 0)

	return s.launch(t, config)
}

func (s *Session) launch(t *Task, config string) (*Agent, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if config == "" {
		config = t.Config
	}

	if config != "" {
		if _, ok := s.env.registry.Config(config); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownConfig, config)
		}
	}

	a := s.NewAgent(config)

	td := NewTaskDefinition(t)
	td.AgentID = a.ID
	a.Stack().Add(td, MainBranch)

	s.env.LogInfo("session.launch", "session_id", s.ID, "agent_id", a.ID, "task", t.Name, "config", config)

	return a, nil
}

// IsActive reports whether any agent can still step.
func (s *Session) IsActive() bool {
	for _, a := range s.Agents() {
		if a.IsActive() {
			return true
		}
	}

	return false
}

// Step runs one tick: every agent registered at the start of the tick steps
// once, in registration order. It reports whether any agent made progress.
func (s *Session) Step(ctx context.Context) (bool, error) {
	active := false

	for _, a := range s.Agents() {
		progressed, err := a.Step(ctx, s)
		if err != nil {
			return active, err
		}

		active = active || progressed
	}

	return active, nil
}

// Run ticks until no agent makes progress, maxSteps ticks elapsed (0 means no
// limit) or ctx is done. The session is persisted after every tick when the
// environment has storage. It returns the number of ticks run.
func (s *Session) Run(ctx context.Context, maxSteps int, cb StepCallback) (int, error) {
	ticks := 0

	for maxSteps <= 0 || ticks < maxSteps {
		if err := ctx.Err(); err != nil {
			return ticks, err
		}

		active, stepErr := s.Step(ctx)
		ticks++

		if storage := s.env.Storage(); storage != nil {
			if err := storage.SaveSession(ctx, s); err != nil {
				return ticks, fmt.Errorf("persist session %s: %w", s.ID, err)
			}
		}

		if stepErr != nil {
			return ticks, stepErr
		}

		if cb != nil {
			if err := cb(s, ticks); err != nil {
				return ticks, err
			}
		}

		if !active {
			break
		}
	}

	s.env.LogDebug("session.run.done", "session_id", s.ID, "ticks", ticks)

	return ticks, nil
}
