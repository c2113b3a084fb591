package core

import (
	"fmt"
)

// Finish types recorded on TaskResult and AgentResult.
const (
	FinishSuccess = "success"
	FinishFailure = "failure"
)

// TaskDefinition starts work on a task. When the task was delegated by
// another agent the caller linkage routes the final result back.
type TaskDefinition struct {
	InteractionBase
	Task                *Task  `json:"task"`
	CallerAgentID       string `json:"caller_agent_id,omitempty"`
	CallerBranch        string `json:"caller_branch,omitempty"`
	CallerInteractionID string `json:"caller_interaction_id,omitempty"`
}

// NewTaskDefinition returns a TaskDefinition for task.
func NewTaskDefinition(task *Task) *TaskDefinition {
	return &TaskDefinition{InteractionBase: NewInteractionBase(), Task: task}
}

// Kind implements Interaction.
func (td *TaskDefinition) Kind() string { return KindTaskDefinition }

// Step asks the oracle to start working on the task.
func (td *TaskDefinition) Step(sc *StepContext) (bool, error) {
	sc.LogInfo("task.start", "agent_id", sc.Agent.ID, "branch", BranchLabel(sc.Branch), "task", td.Task.Name)
	sc.Emit(&AskOracle{InteractionBase: NewInteractionBase()})

	return true, nil
}

// TaskResult records how a task finished.
type TaskResult struct {
	InteractionBase
	FinishType string `json:"finish_type"`
	Result     any    `json:"result,omitempty"`
	TaskName   string `json:"task_name,omitempty"`
}

// Kind implements Interaction.
func (tr *TaskResult) Kind() string { return KindTaskResult }

// Step chains to the next task on success, otherwise reports to the caller
// agent (if any) and parks the branch on a terminal Waiting. Only the branch
// that owns the TaskDefinition chains or reports.
func (tr *TaskResult) Step(sc *StepContext) (bool, error) {
	td := sc.taskDefinition()
	if td == nil {
		return false, fmt.Errorf("%w: task result %s", ErrTaskDefinitionNotFound, tr.ID)
	}

	tr.TaskName = td.Task.Name
	if tr.FinishType == "" {
		tr.FinishType = FinishSuccess
	}

	// A spawned branch inherits the TaskDefinition of its ancestor but does
	// not own the task: finishing there only ends the branch.
	if td.Branch != sc.Branch {
		sc.LogInfo("task.branch.finish", "agent_id", sc.Agent.ID, "branch", BranchLabel(sc.Branch), "task", td.Task.Name, "finish_type", tr.FinishType)
		sc.Emit(&Waiting{InteractionBase: NewInteractionBase()})

		return false, nil
	}

	sc.LogInfo("task.finish", "agent_id", sc.Agent.ID, "branch", BranchLabel(sc.Branch), "task", td.Task.Name, "finish_type", tr.FinishType)

	if tr.FinishType == FinishSuccess {
		chain, err := tr.chainFor(sc, td)
		if err != nil {
			return false, err
		}

		if chain != nil {
			sc.Emit(chain)
			return true, nil
		}
	}

	if td.CallerAgentID != "" {
		caller, ok := sc.Session.Agent(td.CallerAgentID)
		if !ok {
			return false, fmt.Errorf("%w: caller %s", ErrAgentNotFound, td.CallerAgentID)
		}

		result := &AgentResult{
			InteractionBase: NewInteractionBase(),
			ChildAgentID:    sc.Agent.ID,
			TaskName:        td.Task.Name,
			FinishType:      tr.FinishType,
			Result:          tr.Result,
		}
		result.AgentID = caller.ID
		caller.Stack().Add(result, td.CallerBranch)

		sc.LogInfo("agent.result.delivered", "agent_id", sc.Agent.ID, "caller_agent_id", caller.ID, "caller_branch", BranchLabel(td.CallerBranch))
	}

	sc.Emit(&Waiting{InteractionBase: NewInteractionBase()})

	return false, nil
}

// chainFor builds the TaskChain that follows td, or nil when the task has no
// successor. A registered sequence takes precedence over next_task.
func (tr *TaskResult) chainFor(sc *StepContext, td *TaskDefinition) (*TaskChain, error) {
	task := td.Task

	seqName := task.TaskSequence
	if v, ok := task.Value(ParamTaskSequence); ok {
		if s, ok := v.(string); ok && s != "" {
			seqName = s
		}
	}

	chain := &TaskChain{
		InteractionBase:     NewInteractionBase(),
		PreviousTask:        task.Name,
		PreviousResult:      tr.Result,
		PassResultAs:        task.PassResultAs,
		CallerAgentID:       td.CallerAgentID,
		CallerBranch:        td.CallerBranch,
		CallerInteractionID: td.CallerInteractionID,
	}

	if seqName != "" {
		seq, ok := sc.Registry().Sequence(seqName)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSequence, seqName)
		}

		idx := -1
		if v, ok := task.Value(ParamSequenceIndex); ok {
			if i, ok := toInt(v); ok {
				idx = i
			}
		}

		if idx < 0 {
			for i, name := range seq {
				if name == task.Name {
					idx = i
					break
				}
			}
		}

		if idx >= 0 {
			if idx+1 >= len(seq) {
				return nil, nil
			}

			chain.NextTask = seq[idx+1]
			chain.Sequence = seqName
			chain.SequenceIndex = idx + 1

			return chain, nil
		}
	}

	if task.NextTask == "" {
		return nil, nil
	}

	chain.NextTask = task.NextTask

	return chain, nil
}

// TaskChain links a finished task to its successor.
type TaskChain struct {
	InteractionBase
	PreviousTask        string `json:"previous_task"`
	PreviousResult      any    `json:"previous_result,omitempty"`
	NextTask            string `json:"next_task"`
	Sequence            string `json:"sequence,omitempty"`
	SequenceIndex       int    `json:"sequence_index,omitempty"`
	PassResultAs        string `json:"pass_result_as,omitempty"`
	CallerAgentID       string `json:"caller_agent_id,omitempty"`
	CallerBranch        string `json:"caller_branch,omitempty"`
	CallerInteractionID string `json:"caller_interaction_id,omitempty"`
}

// Kind implements Interaction.
func (tc *TaskChain) Kind() string { return KindTaskChain }

// Step resolves the next task, binds the previous result and sequence
// position, switches config when requested and emits its TaskDefinition.
func (tc *TaskChain) Step(sc *StepContext) (bool, error) {
	reg := sc.Registry()

	next, ok := reg.Task(tc.NextTask)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTask, tc.NextTask)
	}

	task := next.Clone()

	if tc.PassResultAs != "" {
		task.SetValue(tc.PassResultAs, copyValue(tc.PreviousResult))
	}

	if tc.Sequence != "" {
		task.SetValue(ParamTaskSequence, tc.Sequence)
		task.SetValue(ParamSequenceIndex, tc.SequenceIndex)
	}

	if task.ChainConfig != "" {
		if _, ok := reg.Config(task.ChainConfig); !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownConfig, task.ChainConfig)
		}

		sc.Agent.SetConfig(task.ChainConfig)
	}

	sc.LogInfo("task.chain", "agent_id", sc.Agent.ID, "from", tc.PreviousTask, "to", task.Name, "sequence", tc.Sequence)

	sc.Emit(&TaskDefinition{
		InteractionBase:     NewInteractionBase(),
		Task:                task,
		CallerAgentID:       tc.CallerAgentID,
		CallerBranch:        tc.CallerBranch,
		CallerInteractionID: tc.CallerInteractionID,
	})

	return true, nil
}
