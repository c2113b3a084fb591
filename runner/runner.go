package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentstack/core"
	"github.com/hupe1980/agentstack/logging"
)

// ErrNoStorage is returned by Resume when the environment has no storage.
var ErrNoStorage = errors.New("runner: environment has no storage")

// Options holds configuration overrides passed to New().
type Options struct {
	// MaxConcurrentRuns limits concurrently executing runs. 0 means unlimited.
	MaxConcurrentRuns int
	// MaxSteps caps the ticks of a single run. 0 means no limit.
	MaxSteps int
	// OnTick is invoked after every tick.
	OnTick core.StepCallback
	// Logger defaults to the no-op logger.
	Logger logging.Logger
}

// Result describes the outcome of a run.
type Result struct {
	Session *core.Session
	// Agent is the root agent: the one launched with the task.
	Agent *core.Agent
	Ticks int
	// TaskResult is the last TaskResult on the root agent's main branch; nil
	// if the run stopped before the task finished.
	TaskResult *core.TaskResult
	Duration   time.Duration
}

// Done reports whether the root agent has no more work.
func (r *Result) Done() bool {
	return r.Agent != nil && !r.Agent.IsActive()
}

// Succeeded reports whether the run finished with a successful TaskResult.
func (r *Result) Succeeded() bool {
	return r.TaskResult != nil && r.TaskResult.FinishType == core.FinishSuccess
}

// Runner coordinates session execution. Public methods are safe for
// concurrent use.
type Runner struct {
	env    *core.Environment
	opts   Options
	sem    chan struct{}
	logger logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs a Runner with optional overrides.
func New(env *core.Environment, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentRuns: 10,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var sem chan struct{}
	if opts.MaxConcurrentRuns > 0 {
		sem = make(chan struct{}, opts.MaxConcurrentRuns)
	}

	return &Runner{
		env:        env,
		opts:       opts,
		sem:        sem,
		logger:     opts.Logger,
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Env returns the environment runs execute in.
func (r *Runner) Env() *core.Environment { return r.env }

// Start launches task in a new session and runs it.
func (r *Runner) Start(ctx context.Context, task string, params map[string]any) (*Result, error) {
	s := r.env.NewSession()

	a, err := s.Launch(task, params, "")
	if err != nil {
		return nil, fmt.Errorf("launch task %s: %w", task, err)
	}

	return r.Run(ctx, s, a)
}

// StartSequence launches the first task of a sequence in a new session and
// runs the whole sequence.
func (r *Runner) StartSequence(ctx context.Context, sequence string, params map[string]any) (*Result, error) {
	s := r.env.NewSession()

	a, err := s.LaunchSequence(sequence, params, "")
	if err != nil {
		return nil, fmt.Errorf("launch sequence %s: %w", sequence, err)
	}

	return r.Run(ctx, s, a)
}

// Resume loads a persisted session and continues it. The first registered
// agent is treated as the root.
func (r *Runner) Resume(ctx context.Context, sessionID string) (*Result, error) {
	storage := r.env.Storage()
	if storage == nil {
		return nil, ErrNoStorage
	}

	s, err := storage.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	agents := s.Agents()
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w: session %s has no agents", core.ErrAgentNotFound, sessionID)
	}

	r.logger.Info("runner.resume", "session_id", sessionID, "agents", len(agents))

	return r.Run(ctx, s, agents[0])
}

// Run ticks s until it is idle, the step budget is used up or ctx is done.
func (r *Runner) Run(ctx context.Context, s *core.Session, root *core.Agent) (*Result, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if _, exists := r.activeRuns[s.ID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("session %s is already running", s.ID)
	}
	r.activeRuns[s.ID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.activeRuns, s.ID)
		r.mu.Unlock()
	}()

	start := time.Now()

	r.logger.Debug("runner.run.start", "session_id", s.ID, "agent_id", root.ID)

	ticks, err := s.Run(ctx, r.opts.MaxSteps, r.opts.OnTick)

	res := &Result{
		Session:    s,
		Agent:      root,
		Ticks:      ticks,
		TaskResult: LastTaskResult(root),
		Duration:   time.Since(start),
	}

	if err != nil {
		r.logger.Error("runner.run.error", "session_id", s.ID, "ticks", ticks, "error", err.Error())
		return res, err
	}

	r.logger.Info("runner.run.done", "session_id", s.ID, "ticks", ticks, "done", res.Done(), "duration_ms", res.Duration.Milliseconds())

	return res, nil
}

// Cancel cancels a running session by id.
func (r *Runner) Cancel(sessionID string) error {
	r.mu.RLock()
	cancel, exists := r.activeRuns[sessionID]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("run %s not found", sessionID)
	}

	cancel()

	return nil
}

// Active returns the ids of sessions currently running.
func (r *Runner) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.activeRuns))
	for id := range r.activeRuns {
		ids = append(ids, id)
	}

	return ids
}

func (r *Runner) acquire(ctx context.Context) error {
	if r.sem == nil {
		return nil
	}

	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) release() {
	if r.sem != nil {
		<-r.sem
	}
}

// LastTaskResult returns the most recent TaskResult on a's main branch.
func LastTaskResult(a *core.Agent) *core.TaskResult {
	items := a.Stack().BranchInteractions(core.MainBranch)
	for i := len(items) - 1; i >= 0; i-- {
		if tr, ok := items[i].(*core.TaskResult); ok {
			return tr
		}
	}

	return nil
}
