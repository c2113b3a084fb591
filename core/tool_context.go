package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentstack/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// by a ToolCall step. It exposes the agent's namespaced state, the session
// state, artifact helpers and the branch-visible history. Artifacts saved
// through the context are attached to the resulting ToolResult.
type ToolContext struct {
	sc        *StepContext
	call      *ToolCall
	resultID  string
	artifacts []string

	*logScope
}

// NewToolContext binds a tool invocation to the step that runs it. resultID is
// the id the ToolResult will carry.
func NewToolContext(sc *StepContext, call *ToolCall, resultID string) *ToolContext {
	return &ToolContext{
		sc:       sc,
		call:     call,
		resultID: resultID,
		logScope: sc.logScope,
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.sc.Context }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logScope.Logger() }

// SessionID returns the id of the running session.
func (tc *ToolContext) SessionID() string { return tc.sc.Session.ID }

// AgentID returns the id of the invoking agent.
func (tc *ToolContext) AgentID() string { return tc.sc.Agent.ID }

// Branch returns the branch the tool runs on.
func (tc *ToolContext) Branch() string { return tc.sc.Branch }

// ToolCallID returns the oracle tool call id; empty for deterministic calls.
func (tc *ToolContext) ToolCallID() string { return tc.call.ToolCallID }

// ToolName returns the invoked tool's name.
func (tc *ToolContext) ToolName() string { return tc.call.Tool }

// Registry returns the frozen registry of the running environment.
func (tc *ToolContext) Registry() *Registry { return tc.sc.Registry() }

// State returns the agent's namespaced state.
func (tc *ToolContext) State() *State { return tc.sc.Stack().State() }

// SessionState returns the state shared by all agents of the session.
func (tc *ToolContext) SessionState() *State { return tc.sc.Session.State() }

// GetState reads key from the common namespace of the agent state.
func (tc *ToolContext) GetState(key string) (any, bool) {
	return tc.State().Lookup(CommonNamespace, key)
}

// SetState writes key into the common namespace of the agent state.
func (tc *ToolContext) SetState(key string, value any) {
	tc.State().Set(CommonNamespace, key, value)
	tc.LogDebug("tool.state.set", "tool", tc.call.Tool, "key", key)
}

// DeleteState removes key from the common namespace of the agent state.
func (tc *ToolContext) DeleteState(key string) error {
	return tc.State().Delete(CommonNamespace, key)
}

// Task returns the task the branch is currently working on, if any.
func (tc *ToolContext) Task() *Task {
	if td := tc.sc.taskDefinition(); td != nil {
		return td.Task
	}

	return nil
}

// History returns the interactions visible on the tool's branch.
func (tc *ToolContext) History() []Interaction {
	return tc.sc.History()
}

// BranchResults returns, per branch, the result of its TaskResult when the
// branch finished one, otherwise its last successful tool result. Join tools
// use it after a spawn completes.
func (tc *ToolContext) BranchResults(branches ...string) map[string]any {
	out := make(map[string]any, len(branches))

	st := tc.sc.Stack()
	for _, b := range branches {
		items := st.BranchInteractions(b)
		for i := len(items) - 1; i >= 0; i-- {
			if items[i].Base().Branch != b {
				continue
			}

			if res, ok := items[i].(*TaskResult); ok {
				out[b] = res.Result
				break
			}

			if tr, ok := items[i].(*ToolResult); ok && !tr.IsError {
				out[b] = tr.Result
				break
			}
		}
	}

	return out
}

// SaveText stores an inline text artifact.
func (tc *ToolContext) SaveText(name string, kind ArtifactKind, content string) *Artifact {
	if kind == "" {
		kind = ArtifactText
	}

	a := &Artifact{
		Identified:    NewIdentified(),
		InteractionID: tc.resultID,
		Kind:          kind,
		Name:          name,
		MimeType:      "text/plain",
		Content:       content,
	}

	tc.attach(a)

	return a
}

// SaveFile stores binary data in the configured FileStore and records an
// artifact pointing to it.
func (tc *ToolContext) SaveFile(name, mimeType, ext string, data []byte) (*Artifact, error) {
	storage := tc.sc.Env.Storage()
	if storage == nil || storage.files == nil {
		return nil, ErrNoFileStore
	}

	path, err := storage.files.SaveFile(tc.Context(), tc.SessionID(), data, ext)
	if err != nil {
		return nil, fmt.Errorf("save artifact file %q: %w", name, err)
	}

	kind := ArtifactFile
	if strings.HasPrefix(mimeType, "image/") {
		kind = ArtifactImage
	}

	a := &Artifact{
		Identified:    NewIdentified(),
		InteractionID: tc.resultID,
		Kind:          kind,
		Name:          name,
		MimeType:      mimeType,
		Path:          path,
	}

	tc.attach(a)

	return a, nil
}

// Artifact looks up an artifact of the invoking agent.
func (tc *ToolContext) Artifact(id string) (*Artifact, bool) {
	return tc.sc.Stack().Artifact(id)
}

// Artifacts returns every artifact of the invoking agent in creation order.
func (tc *ToolContext) Artifacts() []*Artifact {
	return tc.sc.Stack().Artifacts()
}

// ReadArtifact returns the payload of an artifact, loading file backed ones
// from the FileStore.
func (tc *ToolContext) ReadArtifact(id string) ([]byte, error) {
	a, ok := tc.Artifact(id)
	if !ok {
		return nil, fmt.Errorf("%w: artifact %s", ErrNotFound, id)
	}

	if a.Path == "" {
		return []byte(a.Content), nil
	}

	storage := tc.sc.Env.Storage()
	if storage == nil || storage.files == nil {
		return nil, ErrNoFileStore
	}

	return storage.files.LoadFile(tc.Context(), a.Path)
}

func (tc *ToolContext) attach(a *Artifact) {
	tc.sc.Stack().AddArtifact(a)
	tc.artifacts = append(tc.artifacts, a.ID)
	tc.LogDebug("tool.artifact.saved", "tool", tc.call.Tool, "artifact_id", a.ID, "kind", a.Kind)
}
