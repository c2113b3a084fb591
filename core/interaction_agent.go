package core

import "fmt"

// AgentCall delegates a task to a child agent of the same session. When
// ChildAgentID is empty a new agent is created and its id recorded here.
type AgentCall struct {
	InteractionBase
	Config       string         `json:"config,omitempty"`
	Task         string         `json:"task"`
	Params       map[string]any `json:"params,omitempty"`
	ChildAgentID string         `json:"child_agent_id,omitempty"`
}

// Kind implements Interaction.
func (ac *AgentCall) Kind() string { return KindAgentCall }

// Step hands the task to the child's main branch and parks this branch until
// the child reports back.
func (ac *AgentCall) Step(sc *StepContext) (bool, error) {
	def, ok := sc.Registry().Task(ac.Task)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTask, ac.Task)
	}

	task := def.WithValues(ac.Params)
	if err := task.Validate(); err != nil {
		return false, err
	}

	var child *Agent

	if ac.ChildAgentID == "" {
		config := ac.Config
		if config == "" {
			config = task.Config
		}

		if config == "" {
			config = sc.Agent.Config()
		}

		if config != "" {
			if _, ok := sc.Registry().Config(config); !ok {
				return false, fmt.Errorf("%w: %s", ErrUnknownConfig, config)
			}
		}

		child = sc.Session.NewAgent(config)
		ac.ChildAgentID = child.ID
	} else {
		child, ok = sc.Session.Agent(ac.ChildAgentID)
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrAgentNotFound, ac.ChildAgentID)
		}
	}

	td := &TaskDefinition{
		InteractionBase:     NewInteractionBase(),
		Task:                task,
		CallerAgentID:       sc.Agent.ID,
		CallerBranch:        sc.Branch,
		CallerInteractionID: ac.ID,
	}
	td.AgentID = child.ID
	child.Stack().Add(td, MainBranch)

	sc.LogInfo("agent.call", "agent_id", sc.Agent.ID, "branch", BranchLabel(sc.Branch), "child_agent_id", child.ID, "task", task.Name)

	sc.Emit(&Waiting{InteractionBase: NewInteractionBase()})

	return true, nil
}

// AgentResult delivers a child agent's final result into the caller's branch.
type AgentResult struct {
	InteractionBase
	ChildAgentID string `json:"child_agent_id"`
	TaskName     string `json:"task_name,omitempty"`
	FinishType   string `json:"finish_type"`
	Result       any    `json:"result,omitempty"`
}

// Kind implements Interaction.
func (ar *AgentResult) Kind() string { return KindAgentResult }

// Step lets the oracle continue with the child's result in context.
func (ar *AgentResult) Step(sc *StepContext) (bool, error) {
	sc.Emit(&AskOracle{InteractionBase: NewInteractionBase()})

	return true, nil
}
