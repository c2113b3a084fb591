package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstack/core"
	"github.com/hupe1980/agentstack/internal/testutil"
	"github.com/hupe1980/agentstack/logging"
)

// parked returns a session whose single agent has w as the tail of main.
func parked(t *testing.T, env *core.Environment, w *core.Waiting) (*core.Session, *core.Agent) {
	t.Helper()

	s := env.NewSession()
	a := s.NewAgent("")
	a.Stack().Add(w, core.MainBranch)

	return s, a
}

func stepWaiting(t *testing.T, s *core.Session, a *core.Agent, w *core.Waiting) bool {
	t.Helper()

	more, err := w.Step(core.NewStepContext(context.Background(), s, a, core.MainBranch))
	require.NoError(t, err)

	return more
}

func TestWaitForTicks(t *testing.T) {
	env := testutil.NewEnvBuilder().Build(t)

	w := &core.Waiting{
		InteractionBase: core.NewInteractionBase(),
		Condition:       &core.Condition{Evaluator: core.CondWaitForTicks, Parameters: map[string]any{"ticks": 3}},
	}
	s, a := parked(t, env, w)
	key := "wait_ticks:" + w.ID

	assert.True(t, stepWaiting(t, s, a, w))
	assert.Equal(t, 1, a.Stack().State().Get(core.CommonNamespace, key, nil))

	assert.True(t, stepWaiting(t, s, a, w))
	assert.Equal(t, 2, a.Stack().State().Get(core.CommonNamespace, key, nil))

	assert.False(t, stepWaiting(t, s, a, w))
	_, ok := a.Stack().State().Lookup(core.CommonNamespace, key)
	assert.False(t, ok, "bookkeeping removed once resolved")
	assert.True(t, w.Resolved)
	assert.True(t, a.Stack().IsBranchComplete(core.MainBranch))
}

func TestWaitForTicks_StaleBookkeepingWarns(t *testing.T) {
	logger := testutil.NewRecordingLogger()
	env := testutil.NewEnvBuilder().Logger(logger).Build(t)

	w := &core.Waiting{
		InteractionBase: core.NewInteractionBase(),
		Condition:       &core.Condition{Evaluator: core.CondWaitForTicks, Parameters: map[string]any{"ticks": 2}},
	}
	s, a := parked(t, env, w)

	assert.True(t, stepWaiting(t, s, a, w))
	assert.False(t, stepWaiting(t, s, a, w))
	assert.Equal(t, 0, logger.Count(logging.LogLevelWarn, "condition.bookkeeping.missing"))

	// Replaying the cleanup finds nothing left to delete.
	m := &core.StateMutation{Namespace: core.CommonNamespace, Key: "wait_ticks:" + w.ID, Delete: true}
	m.Apply(a.Stack().State(), logger)
	assert.Equal(t, 1, logger.Count(logging.LogLevelWarn, "condition.bookkeeping.missing"))
}

func TestWaitForTicks_ResolvesWithNextTool(t *testing.T) {
	report := testutil.Returning("report", "ok")
	env := testutil.NewEnvBuilder().Tool(report).Build(t)

	w := &core.Waiting{
		InteractionBase: core.NewInteractionBase(),
		Condition:       &core.Condition{Evaluator: core.CondWaitForTicks, Parameters: map[string]any{"ticks": 1}},
		NextTool:        "report",
		NextToolArgs:    map[string]any{"n": 1},
	}
	s, a := parked(t, env, w)

	assert.True(t, stepWaiting(t, s, a, w))

	call, ok := a.Stack().LastForBranch(core.MainBranch).(*core.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "report", call.Tool)
	assert.Equal(t, map[string]any{"n": 1}, call.Args)
	assert.Empty(t, call.ToolCallID)
}

func TestWaitForSeconds(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	env := testutil.NewEnvBuilder().Clock(func() time.Time { return now }).Build(t)

	w := &core.Waiting{
		InteractionBase: core.NewInteractionBase(),
		Condition:       &core.Condition{Evaluator: core.CondWaitForSeconds, Parameters: map[string]any{"seconds": 5.0}},
	}
	s, a := parked(t, env, w)

	assert.True(t, stepWaiting(t, s, a, w))
	now = now.Add(2 * time.Second)
	assert.True(t, stepWaiting(t, s, a, w))
	now = now.Add(3 * time.Second)
	assert.False(t, stepWaiting(t, s, a, w))

	_, ok := a.Stack().State().Lookup(core.CommonNamespace, "wait_seconds:"+w.ID)
	assert.False(t, ok)
}

func TestWaitForStateKey(t *testing.T) {
	env := testutil.NewEnvBuilder().Build(t)

	w := &core.Waiting{
		InteractionBase: core.NewInteractionBase(),
		Condition: &core.Condition{Evaluator: core.CondWaitForStateKey, Parameters: map[string]any{
			"key": "ready", "namespace": "jobs", "scope": core.ScopeSession,
		}},
	}
	s, a := parked(t, env, w)

	assert.True(t, stepWaiting(t, s, a, w))

	a.Stack().State().Set("jobs", "ready", true)
	assert.True(t, stepWaiting(t, s, a, w), "stack scope does not satisfy a session wait")

	s.State().Set("jobs", "ready", true)
	assert.False(t, stepWaiting(t, s, a, w))
}

func TestWaitForAgent(t *testing.T) {
	env := testutil.NewEnvBuilder().Build(t)
	s := env.NewSession()

	other := s.NewAgent("")
	other.Stack().Add(ask(), core.MainBranch)

	w := &core.Waiting{
		InteractionBase: core.NewInteractionBase(),
		Condition:       &core.Condition{Evaluator: core.CondWaitForAgent, Parameters: map[string]any{"agent_id": other.ID}},
	}
	a := s.NewAgent("")
	a.Stack().Add(w, core.MainBranch)

	assert.True(t, stepWaiting(t, s, a, w))

	other.Stack().Add(&core.Waiting{InteractionBase: core.NewInteractionBase()}, core.MainBranch)
	assert.False(t, stepWaiting(t, s, a, w))
}

func TestCustomCondition(t *testing.T) {
	calls := 0
	env := testutil.NewEnvBuilder().
		Condition("twice", func(_ core.EvalContext, _ map[string]any) (core.Evaluation, error) {
			calls++
			return core.Evaluation{Waiting: calls < 2}, nil
		}).
		Build(t)

	w := &core.Waiting{InteractionBase: core.NewInteractionBase(), Condition: &core.Condition{Evaluator: "twice"}}
	s, a := parked(t, env, w)

	assert.True(t, stepWaiting(t, s, a, w))
	assert.False(t, stepWaiting(t, s, a, w))
	assert.Equal(t, 2, calls)
}

func TestUnknownCondition(t *testing.T) {
	env := testutil.NewEnvBuilder().Build(t)

	w := &core.Waiting{InteractionBase: core.NewInteractionBase(), Condition: &core.Condition{Evaluator: "nope"}}
	s, a := parked(t, env, w)

	_, err := w.Step(core.NewStepContext(context.Background(), s, a, core.MainBranch))
	assert.ErrorIs(t, err, core.ErrUnknownCondition)
}
