package core

import (
	"fmt"
	"sync"
)

// Fork records where a branch diverged from its parent.
type Fork struct {
	Parent   string `json:"parent"`
	Position int    `json:"position"`
}

// Stack is the per-agent, branch-aware ordered log of interactions. It owns
// the interaction and artifact arenas and the agent's shared State.
//
// Visibility: a branch sees its own interactions plus everything its parent
// saw up to the fork position, recursively. Sibling branches never see each
// other.
type Stack struct {
	mu        sync.RWMutex
	order     []string
	items     map[string]Interaction
	positions map[string]int
	last      map[string]string
	forks     map[string]Fork
	branches  []string

	artifacts     map[string]*Artifact
	artifactOrder []string

	state *State
}

// NewStack returns an empty stack with a fresh State.
func NewStack() *Stack {
	return &Stack{
		items:     map[string]Interaction{},
		positions: map[string]int{},
		last:      map[string]string{},
		forks:     map[string]Fork{},
		artifacts: map[string]*Artifact{},
		state:     NewState(),
	}
}

// State returns the stack's shared namespaced state.
func (s *Stack) State() *State { return s.state }

// Len returns the number of interactions in the log.
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order)
}

// Add appends an interaction to branch. Adding to a branch that was never
// forked forks it from main at the current end of the log.
func (s *Stack) Add(it Interaction, branch string) {
	ensureIdentity(it)

	s.mu.Lock()
	defer s.mu.Unlock()

	if branch != MainBranch {
		if _, ok := s.forks[branch]; !ok {
			s.forks[branch] = Fork{Parent: MainBranch, Position: len(s.order) - 1}
			s.branches = append(s.branches, branch)
		}
	}

	base := it.Base()
	base.Branch = branch

	s.positions[base.ID] = len(s.order)
	s.order = append(s.order, base.ID)
	s.items[base.ID] = it
	s.last[branch] = base.ID
}

// Fork creates branch name from parent at the parent's current end.
func (s *Stack) Fork(name, parent string) error {
	s.mu.RLock()
	pos := len(s.order) - 1
	s.mu.RUnlock()

	return s.ForkAt(name, parent, pos)
}

// ForkAt creates branch name from parent; the new branch sees the parent's
// visible history up to and including position.
func (s *Stack) ForkAt(name, parent string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == MainBranch {
		return fmt.Errorf("%w: main", ErrBranchExists)
	}

	if _, ok := s.forks[name]; ok {
		return fmt.Errorf("%w: %s", ErrBranchExists, name)
	}

	if parent != MainBranch {
		if _, ok := s.forks[parent]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownBranch, parent)
		}
	}

	s.forks[name] = Fork{Parent: parent, Position: position}
	s.branches = append(s.branches, name)

	return nil
}

// ForkOf returns the fork record of a non-main branch.
func (s *Stack) ForkOf(branch string) (Fork, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.forks[branch]

	return f, ok
}

// Branches returns main followed by every forked branch in creation order.
func (s *Stack) Branches() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string{MainBranch}, s.branches...)
}

// HasBranch reports whether branch is main or has been forked.
func (s *Stack) HasBranch(branch string) bool {
	if branch == MainBranch {
		return true
	}

	_, ok := s.ForkOf(branch)

	return ok
}

// BranchInteractions returns the interactions visible on branch in log order.
func (s *Stack) BranchInteractions(branch string) []Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.visible(branch, len(s.order)-1)
}

// visible collects items of branch and its ancestors up to limit. Callers hold the lock.
func (s *Stack) visible(branch string, limit int) []Interaction {
	caps := map[string]int{branch: limit}
	for cur, capv := branch, limit; cur != MainBranch; {
		f, ok := s.forks[cur]
		if !ok {
			break
		}

		if f.Position < capv {
			capv = f.Position
		}

		caps[f.Parent] = capv
		cur = f.Parent
	}

	out := []Interaction{}
	for pos, id := range s.order {
		if pos > limit {
			break
		}

		it := s.items[id]
		if c, ok := caps[it.Base().Branch]; ok && pos <= c {
			out = append(out, it)
		}
	}

	return out
}

// LastForBranch returns the most recent interaction appended to exactly branch.
func (s *Stack) LastForBranch(branch string) Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.last[branch]
	if !ok {
		return nil
	}

	return s.items[id]
}

// Previous returns the interaction appended to the same branch right before it.
func (s *Stack) Previous(it Interaction) Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[it.Base().ID]
	if !ok {
		return nil
	}

	branch := it.Base().Branch
	for i := pos - 1; i >= 0; i-- {
		prev := s.items[s.order[i]]
		if prev.Base().Branch == branch {
			return prev
		}
	}

	return nil
}

// Position returns the log index of an interaction.
func (s *Stack) Position(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[id]

	return pos, ok
}

// Interaction looks up an interaction by id.
func (s *Stack) Interaction(id string) (Interaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]

	return it, ok
}

// Interactions returns the whole log in order.
func (s *Stack) Interactions() []Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Interaction, len(s.order))
	for i, id := range s.order {
		out[i] = s.items[id]
	}

	return out
}

// Since returns the interactions appended at or after position n.
func (s *Stack) Since(n int) []Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n < 0 {
		n = 0
	}

	out := []Interaction{}
	for i := n; i < len(s.order); i++ {
		out = append(out, s.items[s.order[i]])
	}

	return out
}

// IsBranchComplete reports whether branch has a tail that will never step again.
// Empty or unknown branches are not complete.
func (s *Stack) IsBranchComplete(branch string) bool {
	tail := s.LastForBranch(branch)
	if tail == nil {
		return false
	}

	if tail.Base().Completed {
		return true
	}

	if w, ok := tail.(*Waiting); ok {
		return w.terminal(s)
	}

	return false
}

// ActiveBranches returns branches that have a tail still able to step, main
// first and then in creation order.
func (s *Stack) ActiveBranches() []string {
	active := []string{}
	for _, b := range s.Branches() {
		if s.LastForBranch(b) == nil || s.IsBranchComplete(b) {
			continue
		}

		active = append(active, b)
	}

	return active
}

// AddArtifact stores an artifact in the stack's arena.
func (s *Stack) AddArtifact(a *Artifact) {
	if a.ID == "" {
		a.Identified = NewIdentified()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artifacts[a.ID]; !ok {
		s.artifactOrder = append(s.artifactOrder, a.ID)
	}

	s.artifacts[a.ID] = a
}

// Artifact looks up an artifact by id.
func (s *Stack) Artifact(id string) (*Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[id]

	return a, ok
}

// Artifacts returns all artifacts in insertion order.
func (s *Stack) Artifacts() []*Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Artifact, len(s.artifactOrder))
	for i, id := range s.artifactOrder {
		out[i] = s.artifacts[id]
	}

	return out
}

// forkTable returns a copy of the fork table for persistence.
func (s *Stack) forkTable() (map[string]Fork, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	forks := make(map[string]Fork, len(s.forks))
	for k, v := range s.forks {
		forks[k] = v
	}

	return forks, append([]string(nil), s.branches...)
}

// restoreStack rebuilds a stack from persisted parts.
func restoreStack(items []Interaction, forks map[string]Fork, branches []string, artifacts []*Artifact, state *State) *Stack {
	s := NewStack()
	if state != nil {
		s.state = state
	}

	for k, v := range forks {
		s.forks[k] = v
	}

	s.branches = append(s.branches, branches...)

	for i, it := range items {
		base := it.Base()
		s.positions[base.ID] = i
		s.order = append(s.order, base.ID)
		s.items[base.ID] = it
		s.last[base.Branch] = base.ID
	}

	for _, a := range artifacts {
		s.artifacts[a.ID] = a
		s.artifactOrder = append(s.artifactOrder, a.ID)
	}

	return s
}
