package core

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentstack/internal/util"
)

// AskOracle queries the oracle with the branch's visible transcript.
type AskOracle struct {
	InteractionBase
}

// Kind implements Interaction.
func (ao *AskOracle) Kind() string { return KindAskOracle }

// Step builds the request, spends one oracle call and records the reply. A
// failed ask gives the call back so a resumed run can retry it.
func (ao *AskOracle) Step(sc *StepContext) (bool, error) {
	oracle := sc.Env.Oracle()
	if oracle == nil {
		return false, ErrNoOracle
	}

	req, err := buildOracleRequest(sc)
	if err != nil {
		return false, err
	}

	if err := sc.Env.Limiter().Acquire(sc.Agent.ID); err != nil {
		return false, err
	}

	start := time.Now()

	reply, err := oracle.Ask(sc.Context, req)
	if err == nil && reply == nil {
		err = ErrEmptyReply
	}

	if err != nil {
		sc.Env.Limiter().Release(sc.Agent.ID)
		sc.LogError("oracle.ask.error", "agent_id", sc.Agent.ID, "branch", BranchLabel(sc.Branch), "error", err.Error())

		return false, fmt.Errorf("oracle ask: %w", err)
	}

	sc.LogInfo("oracle.ask.success", "agent_id", sc.Agent.ID, "branch", BranchLabel(sc.Branch), "model", reply.Model, "tool_call", reply.ToolCall != nil, "duration_ms", time.Since(start).Milliseconds())

	sc.Emit(&OracleResponse{
		InteractionBase: NewInteractionBase(),
		Content:         reply.Content,
		ToolCall:        reply.ToolCall,
		Model:           reply.Model,
		Usage:           reply.Usage,
	})

	return true, nil
}

// buildOracleRequest assembles transcript, system prompt and tool specs.
func buildOracleRequest(sc *StepContext) (OracleRequest, error) {
	messages, err := BuildTranscript(sc.History())
	if err != nil {
		return OracleRequest{}, err
	}

	req := OracleRequest{Messages: messages}

	cfg := sc.Config()
	if cfg != nil {
		req.Model = cfg.Model

		values := map[string]any{}
		if td := sc.taskDefinition(); td != nil {
			values = td.Task.Values()
		}

		system, err := util.RenderTemplate(cfg.SystemTemplate, values)
		if err != nil {
			return OracleRequest{}, fmt.Errorf("render system template of %s: %w", cfg.Name, err)
		}

		req.System = system
	}

	for _, t := range sc.Registry().Tools() {
		if !cfg.Allows(t.Name()) {
			continue
		}

		req.Tools = append(req.Tools, ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}

	return req, nil
}

// OracleResponse records an oracle reply.
type OracleResponse struct {
	InteractionBase
	Content  string          `json:"content,omitempty"`
	ToolCall *OracleToolCall `json:"tool_call,omitempty"`
	Model    string          `json:"model,omitempty"`
	Usage    Usage           `json:"usage"`
}

// Kind implements Interaction.
func (r *OracleResponse) Kind() string { return KindOracleResponse }

// Step turns a tool selection into a ToolCall, or finishes the task with the
// reply content.
func (r *OracleResponse) Step(sc *StepContext) (bool, error) {
	if r.ToolCall != nil {
		sc.Emit(&ToolCall{
			InteractionBase: NewInteractionBase(),
			Tool:            r.ToolCall.Name,
			Args:            copyArgs(r.ToolCall.Args),
			ToolCallID:      r.ToolCall.ID,
			Reason:          r.ToolCall.Reason,
		})

		return true, nil
	}

	sc.Emit(&TaskResult{
		InteractionBase: NewInteractionBase(),
		FinishType:      FinishSuccess,
		Result:          r.Content,
	})

	return false, nil
}
