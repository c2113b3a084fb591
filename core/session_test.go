package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstack/core"
	"github.com/hupe1980/agentstack/internal/testutil"
	"github.com/hupe1980/agentstack/oracle"
	"github.com/hupe1980/agentstack/storage/memory"
)

func kinds(items []core.Interaction) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Kind()
	}

	return out
}

func lastOf[T core.Interaction](items []core.Interaction) T {
	var zero T

	for i := len(items) - 1; i >= 0; i-- {
		if v, ok := items[i].(T); ok {
			return v
		}
	}

	return zero
}

func allOf[T core.Interaction](items []core.Interaction) []T {
	var out []T

	for _, it := range items {
		if v, ok := it.(T); ok {
			out = append(out, v)
		}
	}

	return out
}

func TestSession_DeterministicPipeline(t *testing.T) {
	validate := testutil.NewStubTool("validate", func(_ *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		return &core.ToolOutput{Result: "valid", NextTool: "transform", NextToolArgs: map[string]any{"x": 1}}, nil
	})
	transform := testutil.Returning("transform", "transformed")

	o := oracle.NewScripted(oracle.Call("validate", map[string]any{"doc": "d"}), oracle.Text("done"))
	env := testutil.NewEnvBuilder().
		Tool(validate, transform).
		Task(&core.Task{Name: "pipe", UserTemplate: "process the document"}).
		Oracle(o).
		Build(t)

	s := env.NewSession()
	a, err := s.Launch("pipe", nil, "")
	require.NoError(t, err)

	callsDuringChain := -1

	_, err = s.Run(context.Background(), 0, func(_ *core.Session, _ int) error {
		if tr, ok := a.Stack().LastForBranch(core.MainBranch).(*core.ToolResult); ok && tr.Tool == "transform" {
			callsDuringChain = env.Limiter().Count()
		}

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		core.KindTaskDefinition,
		core.KindAskOracle,
		core.KindOracleResponse,
		core.KindToolCall,
		core.KindToolResult,
		core.KindToolCall,
		core.KindToolResult,
		core.KindAskOracle,
		core.KindOracleResponse,
		core.KindTaskResult,
		core.KindWaiting,
	}, kinds(a.Stack().BranchInteractions(core.MainBranch)))

	assert.Equal(t, 1, callsDuringChain, "deterministic chaining must not consult the oracle")
	assert.Equal(t, 2, o.Calls())
	assert.Equal(t, 2, env.Limiter().Count())
	assert.Equal(t, 2, env.Limiter().CountFor(a.ID))

	calls := allOf[*core.ToolCall](a.Stack().Interactions())
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].ToolCallID)
	assert.Empty(t, calls[1].ToolCallID)
	assert.Equal(t, map[string]any{"x": 1}, transform.Args(0))

	result := lastOf[*core.TaskResult](a.Stack().Interactions())
	require.NotNil(t, result)
	assert.Equal(t, core.FinishSuccess, result.FinishType)
	assert.Equal(t, "done", result.Result)
	assert.Equal(t, "pipe", result.TaskName)

	second := o.Requests()[1]
	assert.Equal(t, core.RoleUser, second.Messages[0].Role)
	assert.Equal(t, "process the document", second.Messages[0].Content)
	assert.Equal(t, core.RoleAssistant, second.Messages[1].Role)
	assert.Equal(t, "validate", second.Messages[1].ToolName)
	assert.Equal(t, core.RoleTool, second.Messages[2].Role)
	assert.Equal(t, second.Messages[1].ToolCallID, second.Messages[2].ToolCallID)
	assert.Equal(t, "valid", second.Messages[2].Content)
	assert.Equal(t, "Tool transform returned: transformed", second.Messages[3].Content)

	assert.False(t, s.IsActive())
}

func TestSession_PassResultAsAndChainConfig(t *testing.T) {
	o := oracle.NewScripted(oracle.Text("v1"), oracle.Text("final"))
	env := testutil.NewEnvBuilder().
		Config(&core.Config{Name: "draft"}, &core.Config{Name: "polish", Model: "m-polish"}).
		Task(
			&core.Task{Name: "first", Config: "draft", NextTask: "second", PassResultAs: "draft"},
			&core.Task{
				Name:         "second",
				UserTemplate: "Polish {{.draft}}",
				ChainConfig:  "polish",
				Parameters:   map[string]core.Parameter{"draft": {Type: "string", Required: true}},
			},
		).
		Oracle(o).
		Build(t)

	s := env.NewSession()
	a, err := s.Launch("first", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "draft", a.Config())

	_, err = s.Run(context.Background(), 0, nil)
	require.NoError(t, err)

	chain := lastOf[*core.TaskChain](a.Stack().Interactions())
	require.NotNil(t, chain)
	assert.Equal(t, "first", chain.PreviousTask)
	assert.Equal(t, "second", chain.NextTask)

	tds := allOf[*core.TaskDefinition](a.Stack().Interactions())
	require.Len(t, tds, 2)

	v, ok := tds[1].Task.Value("draft")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	assert.Equal(t, "polish", a.Config())

	req := o.Requests()[1]
	assert.Equal(t, "m-polish", req.Model)
	assert.Equal(t, "Polish v1", req.Messages[len(req.Messages)-1].Content)

	assert.Equal(t, "final", lastOf[*core.TaskResult](a.Stack().Interactions()).Result)
}

func TestSession_ChainingSkippedOnFailure(t *testing.T) {
	fail := testutil.NewStubTool("give_up", func(_ *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		return &core.ToolOutput{Result: "nope", Response: core.Finish(core.FinishFailure, "blocked")}, nil
	})

	env := testutil.NewEnvBuilder().
		Tool(fail).
		Task(&core.Task{Name: "first", NextTask: "second"}, &core.Task{Name: "second"}).
		Oracle(oracle.NewScripted(oracle.Call("give_up", nil))).
		Build(t)

	s := env.NewSession()
	a, err := s.Launch("first", nil, "")
	require.NoError(t, err)

	_, err = s.Run(context.Background(), 0, nil)
	require.NoError(t, err)

	assert.Nil(t, lastOf[*core.TaskChain](a.Stack().Interactions()))

	result := lastOf[*core.TaskResult](a.Stack().Interactions())
	require.NotNil(t, result)
	assert.Equal(t, core.FinishFailure, result.FinishType)
	assert.Equal(t, "blocked", result.Result)
}

func TestSession_SequenceResumesAfterReload(t *testing.T) {
	store := memory.New()
	o := oracle.NewScripted(oracle.Text("ra"), oracle.Text("rb"), oracle.Text("rc"))

	build := func() *core.Environment {
		return testutil.NewEnvBuilder().
			Task(&core.Task{Name: "a"}, &core.Task{Name: "b"}, &core.Task{Name: "c"}).
			Sequence("abc", "a", "b", "c").
			Oracle(o).
			Store(store).
			Build(t)
	}

	ctx := context.Background()

	first := build()
	s := first.NewSession()
	_, err := s.LaunchSequence("abc", nil, "")
	require.NoError(t, err)

	// TaskDefinition, AskOracle, OracleResponse, TaskResult, TaskChain.
	ticks, err := s.Run(ctx, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, ticks)
	assert.Equal(t, 1, o.Calls())

	second := build()
	restored, err := second.Storage().LoadSession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, restored.Agents(), 1)

	_, err = restored.Run(ctx, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, o.Calls())

	a := restored.Agents()[0]
	tds := allOf[*core.TaskDefinition](a.Stack().Interactions())
	require.Len(t, tds, 3)

	for i, name := range []string{"a", "b", "c"} {
		assert.Equal(t, name, tds[i].Task.Name)

		seq, _ := tds[i].Task.Value(core.ParamTaskSequence)
		assert.Equal(t, "abc", seq)

		idx, _ := tds[i].Task.Value(core.ParamSequenceIndex)
		assert.EqualValues(t, i, idx)
	}

	assert.Equal(t, "rc", lastOf[*core.TaskResult](a.Stack().Interactions()).Result)
}

func TestSession_SubAgentBlocksCaller(t *testing.T) {
	delegate := testutil.NewStubTool("delegate", func(_ *core.ToolContext, args map[string]any) (*core.ToolOutput, error) {
		return &core.ToolOutput{
			Result:   "delegated",
			Response: core.Named(core.ResponseAgentCall, map[string]any{"task": "child", "params": map[string]any{"topic": args["topic"]}}),
		}, nil
	})

	o := oracle.NewScripted(
		oracle.Call("delegate", map[string]any{"topic": "go"}),
		oracle.Text("child done"),
		oracle.Text("parent done"),
	)

	env := testutil.NewEnvBuilder().
		Tool(delegate).
		Task(
			&core.Task{Name: "parent"},
			&core.Task{Name: "child", UserTemplate: "research {{.topic}}"},
		).
		Oracle(o).
		Build(t)

	s := env.NewSession()
	parent, err := s.Launch("parent", nil, "")
	require.NoError(t, err)

	callsWhileBlocked := map[int]int{}

	_, err = s.Run(context.Background(), 0, func(_ *core.Session, tick int) error {
		w, ok := parent.Stack().LastForBranch(core.MainBranch).(*core.Waiting)
		if !ok {
			return nil
		}

		if _, afterCall := parent.Stack().Previous(w).(*core.AgentCall); afterCall {
			callsWhileBlocked[tick] = o.Calls()
		}

		return nil
	})
	require.NoError(t, err)

	require.Len(t, s.Agents(), 2)
	child := s.Agents()[1]

	call := lastOf[*core.AgentCall](parent.Stack().Interactions())
	require.NotNil(t, call)
	assert.Equal(t, child.ID, call.ChildAgentID)

	td := allOf[*core.TaskDefinition](child.Stack().Interactions())[0]
	assert.Equal(t, parent.ID, td.CallerAgentID)
	assert.Equal(t, call.ID, td.CallerInteractionID)

	ar := lastOf[*core.AgentResult](parent.Stack().Interactions())
	require.NotNil(t, ar)
	assert.Equal(t, child.ID, ar.ChildAgentID)
	assert.Equal(t, "child", ar.TaskName)
	assert.Equal(t, core.FinishSuccess, ar.FinishType)
	assert.Equal(t, "child done", ar.Result)

	require.NotEmpty(t, callsWhileBlocked)
	for tick, calls := range callsWhileBlocked {
		assert.LessOrEqual(t, calls, 2, "parent asked the oracle while blocked at tick %d", tick)
	}

	reqs := o.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "research go", reqs[1].Messages[0].Content)

	last := reqs[2].Messages[len(reqs[2].Messages)-1]
	assert.Contains(t, last.Content, "child done")
	assert.Contains(t, last.Content, child.ID)

	assert.Equal(t, "parent done", lastOf[*core.TaskResult](parent.Stack().Interactions()).Result)
	assert.False(t, s.IsActive())
}

func TestSession_SpawnAndJoin(t *testing.T) {
	fanout := testutil.NewStubTool("fanout", func(_ *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		return &core.ToolOutput{
			Result: "spawned",
			Spawn: []core.BranchSpawn{
				{Name: "x", Tool: "work", Args: map[string]any{"n": 1}},
				{Name: "y", Tool: "work", Args: map[string]any{"n": 2}},
			},
			NextTool: "join",
		}, nil
	})
	work := testutil.NewStubTool("work", func(_ *core.ToolContext, args map[string]any) (*core.ToolOutput, error) {
		n, _ := args["n"].(int)
		return &core.ToolOutput{Result: n * 10, Response: core.Complete()}, nil
	})
	join := testutil.NewStubTool("join", func(tc *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		results := tc.BranchResults("x", "y")
		return &core.ToolOutput{Result: results, Response: core.Finish(core.FinishSuccess, results)}, nil
	})

	o := oracle.NewScripted(oracle.Call("fanout", nil))
	env := testutil.NewEnvBuilder().
		Tool(fanout, work, join).
		Task(&core.Task{Name: "parallel"}).
		Oracle(o).
		Build(t)

	s := env.NewSession()
	a, err := s.Launch("parallel", nil, "")
	require.NoError(t, err)

	_, err = s.Run(context.Background(), 0, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, o.Calls())
	assert.Equal(t, 2, work.Calls())
	assert.Equal(t, 1, join.Calls())

	assert.Equal(t, []string{core.MainBranch, "x", "y"}, a.Stack().Branches())
	assert.True(t, a.Stack().IsBranchComplete("x"))
	assert.True(t, a.Stack().IsBranchComplete("y"))

	result := lastOf[*core.TaskResult](a.Stack().BranchInteractions(core.MainBranch))
	require.NotNil(t, result)
	assert.Equal(t, map[string]any{"x": 10, "y": 20}, result.Result)

	// Worker branches see the parent history up to the spawning result only.
	xs := a.Stack().BranchInteractions("x")
	require.Len(t, xs, 8)
	assert.Equal(t, "fanout", xs[4].(*core.ToolResult).Tool)
	assert.Equal(t, "work", xs[5].(*core.ToolCall).Tool)
}

func TestSession_SpawnedBranchFinishStaysLocal(t *testing.T) {
	delegate := testutil.NewStubTool("delegate", func(_ *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		return &core.ToolOutput{Result: "delegated", Response: core.Named(core.ResponseAgentCall, map[string]any{"task": "child"})}, nil
	})
	fanout := testutil.NewStubTool("fanout", func(_ *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		return &core.ToolOutput{
			Result:   "spawned",
			Spawn:    []core.BranchSpawn{{Name: "x", Tool: "work"}},
			NextTool: "join",
		}, nil
	})
	work := testutil.NewStubTool("work", func(_ *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		return &core.ToolOutput{Result: "worked", Response: core.Finish(core.FinishSuccess, "worker")}, nil
	})
	join := testutil.NewStubTool("join", func(tc *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		return &core.ToolOutput{Result: tc.BranchResults("x"), Response: core.Finish(core.FinishSuccess, "joined")}, nil
	})

	o := oracle.NewScripted(
		oracle.Call("delegate", nil),
		oracle.Call("fanout", nil),
		oracle.Text("parent done"),
	)

	env := testutil.NewEnvBuilder().
		Tool(delegate, fanout, work, join).
		Task(
			&core.Task{Name: "parent"},
			&core.Task{Name: "child"},
		).
		Oracle(o).
		Build(t)

	s := env.NewSession()
	parent, err := s.Launch("parent", nil, "")
	require.NoError(t, err)

	_, err = s.Run(context.Background(), 0, nil)
	require.NoError(t, err)

	require.Len(t, s.Agents(), 2)
	child := s.Agents()[1]

	results := allOf[*core.AgentResult](parent.Stack().Interactions())
	require.Len(t, results, 1, "caller must hear from the child exactly once")
	assert.Equal(t, "joined", results[0].Result)

	assert.Equal(t, 3, o.Calls())
	assert.Len(t, allOf[*core.TaskResult](parent.Stack().Interactions()), 1)

	// The worker's finish ends its own branch only.
	worker := lastOf[*core.TaskResult](child.Stack().BranchInteractions("x"))
	require.NotNil(t, worker)
	assert.Equal(t, "x", worker.Branch)
	assert.True(t, child.Stack().IsBranchComplete("x"))

	joined := lastOf[*core.ToolResult](child.Stack().BranchInteractions(core.MainBranch))
	require.NotNil(t, joined)
	assert.Equal(t, map[string]any{"x": "worker"}, joined.Result)

	assert.False(t, s.IsActive())
}

func TestSession_SpawnedBranchFinishDoesNotChain(t *testing.T) {
	fanout := testutil.NewStubTool("fanout", func(_ *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		return &core.ToolOutput{Result: "spawned", Spawn: []core.BranchSpawn{{Name: "x", Tool: "work"}}, NextTool: "join"}, nil
	})
	work := testutil.NewStubTool("work", func(_ *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		return &core.ToolOutput{Result: "worked", Response: core.Finish(core.FinishSuccess, "worker")}, nil
	})
	join := testutil.NewStubTool("join", func(_ *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		return &core.ToolOutput{Result: "joined", Response: core.Finish(core.FinishSuccess, "joined")}, nil
	})

	o := oracle.NewScripted(oracle.Call("fanout", nil), oracle.Text("after done"))
	env := testutil.NewEnvBuilder().
		Tool(fanout, work, join).
		Task(
			&core.Task{Name: "fan", NextTask: "after", PassResultAs: "prior"},
			&core.Task{Name: "after"},
		).
		Oracle(o).
		Build(t)

	s := env.NewSession()
	a, err := s.Launch("fan", nil, "")
	require.NoError(t, err)

	_, err = s.Run(context.Background(), 0, nil)
	require.NoError(t, err)

	chains := allOf[*core.TaskChain](a.Stack().Interactions())
	require.Len(t, chains, 1)
	assert.Equal(t, core.MainBranch, chains[0].Branch)
	assert.Equal(t, "joined", chains[0].PreviousResult)

	assert.Len(t, allOf[*core.TaskDefinition](a.Stack().Interactions()), 2)
	assert.Equal(t, 2, o.Calls())
}

func TestSession_OneStepPerBranchPerTick(t *testing.T) {
	work := testutil.NewStubTool("work", func(_ *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		return &core.ToolOutput{Result: "ok", Response: core.Complete()}, nil
	})
	env := testutil.NewEnvBuilder().Tool(work).Build(t)

	s := env.NewSession()
	a := s.NewAgent("")
	a.Stack().Add(&core.ToolCall{InteractionBase: core.NewInteractionBase(), Tool: "work"}, core.MainBranch)
	require.NoError(t, a.Stack().Fork("side", core.MainBranch))
	a.Stack().Add(&core.ToolCall{InteractionBase: core.NewInteractionBase(), Tool: "work"}, "side")

	ctx := context.Background()

	progressed, err := s.Step(ctx)
	require.NoError(t, err)
	assert.True(t, progressed)
	assert.Equal(t, 4, a.Stack().Len())
	assert.Equal(t, 2, work.Calls())

	progressed, err = s.Step(ctx)
	require.NoError(t, err)
	assert.True(t, progressed)
	assert.Equal(t, 6, a.Stack().Len())

	progressed, err = s.Step(ctx)
	require.NoError(t, err)
	assert.False(t, progressed)
	assert.Equal(t, 2, a.Steps())
}

func TestSession_ConfigTransitionOnToolCall(t *testing.T) {
	o := oracle.NewScripted(oracle.Call("search", nil), oracle.Text("done"))
	env := testutil.NewEnvBuilder().
		Tool(testutil.Returning("search", "hits"), testutil.Returning("commit", "ok")).
		Config(
			&core.Config{
				Name:           "explore",
				Model:          "m-explore",
				SystemTemplate: "explore {{.topic}}",
				Tools:          []string{"search"},
				StateMachine: &core.ConfigStateMachine{Transitions: []core.ConfigTransition{
					{From: "explore", To: "act", Trigger: core.TransitionTrigger{Type: core.TriggerToolCall, Tool: "search"}},
				}},
			},
			&core.Config{Name: "act", Model: "m-act"},
		).
		Task(&core.Task{Name: "job", Config: "explore"}).
		Oracle(o).
		Build(t)

	s := env.NewSession()
	a, err := s.Launch("job", map[string]any{"topic": "stacks"}, "")
	require.NoError(t, err)

	_, err = s.Run(context.Background(), 0, nil)
	require.NoError(t, err)

	assert.Equal(t, "act", a.Config())

	reqs := o.Requests()
	require.Len(t, reqs, 2)

	assert.Equal(t, "m-explore", reqs[0].Model)
	assert.Equal(t, "explore stacks", reqs[0].System)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "search", reqs[0].Tools[0].Name)

	assert.Equal(t, "m-act", reqs[1].Model)
	assert.Len(t, reqs[1].Tools, 2)
}

func TestSession_StepCountTransition(t *testing.T) {
	o := oracle.NewScripted(oracle.Text("done"))
	env := testutil.NewEnvBuilder().
		Config(
			&core.Config{Name: "warmup", StateMachine: &core.ConfigStateMachine{Transitions: []core.ConfigTransition{
				{To: "steady", Trigger: core.TransitionTrigger{Type: core.TriggerStepCount, Steps: 2}},
			}}},
			&core.Config{Name: "steady"},
		).
		Task(&core.Task{Name: "job", Config: "warmup"}).
		Oracle(o).
		Build(t)

	s := env.NewSession()
	a, err := s.Launch("job", nil, "")
	require.NoError(t, err)

	_, err = s.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "warmup", a.Config())

	_, err = s.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "steady", a.Config())
}

func TestSession_UnknownToolBecomesErrorResult(t *testing.T) {
	o := oracle.NewScripted(oracle.Call("nope", nil), oracle.Text("recovered"))
	env := testutil.NewEnvBuilder().
		Task(&core.Task{Name: "job"}).
		Oracle(o).
		Build(t)

	s := env.NewSession()
	a, err := s.Launch("job", nil, "")
	require.NoError(t, err)

	_, err = s.Run(context.Background(), 0, nil)
	require.NoError(t, err)

	tr := lastOf[*core.ToolResult](a.Stack().Interactions())
	require.NotNil(t, tr)
	assert.True(t, tr.IsError)

	res, ok := tr.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, core.CodeUnknownTool, res["code"])

	msgs := o.Requests()[1].Messages
	assert.Equal(t, core.RoleTool, msgs[len(msgs)-1].Role)
	assert.Contains(t, msgs[len(msgs)-1].Content, core.CodeUnknownTool)

	assert.Equal(t, "recovered", lastOf[*core.TaskResult](a.Stack().Interactions()).Result)
}

func TestSession_ToolNotAllowedByConfig(t *testing.T) {
	o := oracle.NewScripted(oracle.Call("secret", nil), oracle.Text("ok"))
	env := testutil.NewEnvBuilder().
		Tool(testutil.Returning("public", 1), testutil.Returning("secret", 2)).
		Config(&core.Config{Name: "restricted", Tools: []string{"public"}}).
		Task(&core.Task{Name: "job", Config: "restricted"}).
		Oracle(o).
		Build(t)

	s := env.NewSession()
	a, err := s.Launch("job", nil, "")
	require.NoError(t, err)

	_, err = s.Run(context.Background(), 0, nil)
	require.NoError(t, err)

	tr := lastOf[*core.ToolResult](a.Stack().Interactions())
	require.NotNil(t, tr)
	assert.True(t, tr.IsError)
	assert.Equal(t, core.CodeToolNotAllowed, tr.Result.(map[string]any)["code"])
}

func TestSession_ToolPanicIsRecovered(t *testing.T) {
	boom := testutil.NewStubTool("boom", func(_ *core.ToolContext, _ map[string]any) (*core.ToolOutput, error) {
		panic("kaboom")
	})

	env := testutil.NewEnvBuilder().
		Tool(boom).
		Task(&core.Task{Name: "job"}).
		Oracle(oracle.NewScripted(oracle.Call("boom", nil), oracle.Text("ok"))).
		Build(t)

	s := env.NewSession()
	a, err := s.Launch("job", nil, "")
	require.NoError(t, err)

	_, err = s.Run(context.Background(), 0, nil)
	require.NoError(t, err)

	tr := lastOf[*core.ToolResult](a.Stack().Interactions())
	require.NotNil(t, tr)
	assert.True(t, tr.IsError)
	assert.Equal(t, core.CodePanic, tr.Result.(map[string]any)["code"])
}

func TestSession_OracleLimit(t *testing.T) {
	o := oracle.NewScripted(oracle.Call("echo", nil), oracle.Text("never"))
	env := testutil.NewEnvBuilder().
		Tool(testutil.Returning("echo", "hi")).
		Task(&core.Task{Name: "job"}).
		Oracle(o).
		MaxOracleCalls(1).
		Build(t)

	s := env.NewSession()
	a, err := s.Launch("job", nil, "")
	require.NoError(t, err)

	_, err = s.Run(context.Background(), 0, nil)
	require.ErrorIs(t, err, core.ErrOracleLimit)

	assert.Equal(t, 1, o.Calls())
	assert.Equal(t, 0, env.Limiter().Remaining())
	assert.Equal(t, core.KindAskOracle, a.Stack().LastForBranch(core.MainBranch).Kind())
}

func TestSession_OracleErrorIsResumable(t *testing.T) {
	o := oracle.NewScripted()
	env := testutil.NewEnvBuilder().
		Task(&core.Task{Name: "job"}).
		Oracle(o).
		MaxOracleCalls(1).
		Build(t)

	s := env.NewSession()
	a, err := s.Launch("job", nil, "")
	require.NoError(t, err)

	for range 2 {
		_, err = s.Run(context.Background(), 0, nil)
		require.ErrorIs(t, err, oracle.ErrScriptExhausted)
		assert.Equal(t, core.KindAskOracle, a.Stack().LastForBranch(core.MainBranch).Kind())
		assert.Equal(t, 0, env.Limiter().Count(), "failed asks do not spend the budget")
	}

	o.Push(oracle.Text("late"))

	_, err = s.Run(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "late", lastOf[*core.TaskResult](a.Stack().Interactions()).Result)
	assert.Equal(t, 1, env.Limiter().Count())
	assert.Equal(t, 1, env.Limiter().CountFor(a.ID))
}

func TestSession_EmptyOracleReply(t *testing.T) {
	env := testutil.NewEnvBuilder().
		Task(&core.Task{Name: "job"}).
		Oracle(core.OracleFunc(func(context.Context, core.OracleRequest) (*core.OracleReply, error) {
			return nil, nil
		})).
		Build(t)

	s := env.NewSession()
	a, err := s.Launch("job", nil, "")
	require.NoError(t, err)

	_, err = s.Run(context.Background(), 0, nil)
	require.ErrorIs(t, err, core.ErrEmptyReply)
	assert.Equal(t, core.KindAskOracle, a.Stack().LastForBranch(core.MainBranch).Kind())
	assert.Equal(t, 0, env.Limiter().Count())
}

func TestSession_NoOracle(t *testing.T) {
	env := testutil.NewEnvBuilder().Task(&core.Task{Name: "job"}).Build(t)

	s := env.NewSession()
	_, err := s.Launch("job", nil, "")
	require.NoError(t, err)

	_, err = s.Run(context.Background(), 0, nil)
	assert.ErrorIs(t, err, core.ErrNoOracle)
}

func TestSession_LaunchErrors(t *testing.T) {
	env := testutil.NewEnvBuilder().
		Task(&core.Task{Name: "needs", Parameters: map[string]core.Parameter{"q": {Required: true}}}).
		Build(t)

	s := env.NewSession()

	_, err := s.Launch("missing", nil, "")
	assert.ErrorIs(t, err, core.ErrUnknownTask)

	_, err = s.Launch("needs", nil, "")
	assert.ErrorIs(t, err, core.ErrMissingParameter)

	_, err = s.Launch("needs", map[string]any{"q": "x"}, "ghost")
	assert.ErrorIs(t, err, core.ErrUnknownConfig)

	_, err = s.LaunchSequence("missing", nil, "")
	assert.ErrorIs(t, err, core.ErrUnknownSequence)

	assert.Empty(t, s.Agents())
}

func TestSession_RunHonoursMaxStepsAndCallback(t *testing.T) {
	env := testutil.NewEnvBuilder().
		Task(&core.Task{Name: "job"}).
		Oracle(oracle.NewScripted(oracle.Text("done"))).
		Build(t)

	s := env.NewSession()
	_, err := s.Launch("job", nil, "")
	require.NoError(t, err)

	ticks, err := s.Run(context.Background(), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, ticks)
	assert.True(t, s.IsActive())

	stop := assert.AnError
	ticks, err = s.Run(context.Background(), 0, func(_ *core.Session, _ int) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, ticks)
}
