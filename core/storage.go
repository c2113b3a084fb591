package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// EntityKind names a class of persisted records.
type EntityKind string

const (
	EntitySession     EntityKind = "session"
	EntityAgent       EntityKind = "agent"
	EntityInteraction EntityKind = "interaction"
	EntityArtifact    EntityKind = "artifact"
)

// Record types of the non-interaction entities.
const (
	RecordSession  = "Session"
	RecordAgent    = "Agent"
	RecordArtifact = "Artifact"
)

// RecordStore is the backend contract for flat records. Get returns an error
// wrapping ErrNotFound for unknown ids.
type RecordStore interface {
	Put(ctx context.Context, kind EntityKind, id string, rec Record) error
	Get(ctx context.Context, kind EntityKind, id string) (Record, error)
	Delete(ctx context.Context, kind EntityKind, id string) error
	List(ctx context.Context, kind EntityKind) ([]string, error)
}

// FileStore keeps artifact payloads. SaveFile returns the path the payload can
// be loaded from.
type FileStore interface {
	SaveFile(ctx context.Context, ownerID string, data []byte, ext string) (string, error)
	LoadFile(ctx context.Context, path string) ([]byte, error)
	DeleteFile(ctx context.Context, path string) error
}

type sessionRecord struct {
	Identified
	AgentIDs []string `json:"agent_ids"`
	State    *State   `json:"state"`
}

type agentRecord struct {
	Identified
	SessionID    string          `json:"session_id"`
	Config       string          `json:"config,omitempty"`
	Steps        int             `json:"steps"`
	Interactions []string        `json:"interactions"`
	Forks        map[string]Fork `json:"forks,omitempty"`
	Branches     []string        `json:"branches,omitempty"`
	Artifacts    []string        `json:"artifacts,omitempty"`
	State        *State          `json:"state"`
}

// Storage is the typed persistence facade. It rebuilds the object graph from
// flat records and keeps an identity cache so that loading the same id twice
// yields the same object.
type Storage struct {
	env     *Environment
	records RecordStore
	files   FileStore

	mu           sync.Mutex
	sessions     map[string]*Session
	agents       map[string]*Agent
	interactions map[string]Interaction
	artifacts    map[string]*Artifact

	// live holds sessions created in this process; it only serves artifact
	// resolution for SaveInteraction and is not consulted by loads.
	live map[string]*Session

	*logScope
}

// NewStorage wires a storage facade. files may be nil.
func NewStorage(env *Environment, records RecordStore, files FileStore) *Storage {
	return &Storage{
		env:          env,
		records:      records,
		files:        files,
		sessions:     map[string]*Session{},
		agents:       map[string]*Agent{},
		interactions: map[string]Interaction{},
		artifacts:    map[string]*Artifact{},
		live:         map[string]*Session{},
		logScope:     env.logScope,
	}
}

// Records returns the underlying record store.
func (st *Storage) Records() RecordStore { return st.records }

// Files returns the underlying file store (may be nil).
func (st *Storage) Files() FileStore { return st.files }

func putJSON(ctx context.Context, rs RecordStore, kind EntityKind, id, typ string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, id, err)
	}

	return rs.Put(ctx, kind, id, Record{Type: typ, Data: data})
}

func getJSON(ctx context.Context, rs RecordStore, kind EntityKind, id, typ string, v any) error {
	rec, err := rs.Get(ctx, kind, id)
	if err != nil {
		return err
	}

	if rec.Type != typ {
		return fmt.Errorf("%s %s: unexpected record type %q", kind, id, rec.Type)
	}

	return json.Unmarshal(rec.Data, v)
}

// SaveSession persists a session and, recursively, its agents.
func (st *Storage) SaveSession(ctx context.Context, s *Session) error {
	agents := s.Agents()

	rec := sessionRecord{Identified: s.Identified, AgentIDs: make([]string, 0, len(agents)), State: s.State()}
	for _, a := range agents {
		if err := st.SaveAgent(ctx, a); err != nil {
			return err
		}

		rec.AgentIDs = append(rec.AgentIDs, a.ID)
	}

	if err := putJSON(ctx, st.records, EntitySession, s.ID, RecordSession, rec); err != nil {
		return err
	}

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	return nil
}

// LoadSession returns the session with id, rebuilding it from records when it
// is not cached.
func (st *Storage) LoadSession(ctx context.Context, id string) (*Session, error) {
	st.mu.Lock()
	cached, ok := st.sessions[id]
	st.mu.Unlock()

	if ok {
		return cached, nil
	}

	var rec sessionRecord
	if err := getJSON(ctx, st.records, EntitySession, id, RecordSession, &rec); err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	s := newSession(st.env, rec.Identified)

	if rec.State != nil {
		s.state = rec.State
	}

	for _, aid := range rec.AgentIDs {
		a, err := st.LoadAgent(ctx, aid)
		if err != nil {
			return nil, err
		}

		s.AddAgent(a)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if cached, ok := st.sessions[id]; ok {
		return cached, nil
	}

	st.sessions[id] = s

	st.LogDebug("storage.session.loaded", "session_id", id, "agents", len(rec.AgentIDs))

	return s, nil
}

func (st *Storage) track(s *Session) {
	st.mu.Lock()
	st.live[s.ID] = s
	st.mu.Unlock()
}

// DeleteSession removes a session together with its agents, interactions,
// artifacts and files.
func (st *Storage) DeleteSession(ctx context.Context, id string) error {
	var rec sessionRecord
	if err := getJSON(ctx, st.records, EntitySession, id, RecordSession, &rec); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}

	for _, aid := range rec.AgentIDs {
		if err := st.DeleteAgent(ctx, aid); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	if err := st.records.Delete(ctx, EntitySession, id); err != nil {
		return err
	}

	st.mu.Lock()
	delete(st.sessions, id)
	delete(st.live, id)
	st.mu.Unlock()

	return nil
}

// ListSessions returns the ids of all persisted sessions.
func (st *Storage) ListSessions(ctx context.Context) ([]string, error) {
	return st.records.List(ctx, EntitySession)
}

// SaveAgent persists an agent, its interactions and its artifacts.
func (st *Storage) SaveAgent(ctx context.Context, a *Agent) error {
	stack := a.Stack()
	items := stack.Interactions()
	forks, branches := stack.forkTable()
	artifacts := stack.Artifacts()

	rec := agentRecord{
		Identified:   a.Identified,
		SessionID:    a.SessionID,
		Config:       a.Config(),
		Steps:        a.Steps(),
		Interactions: make([]string, 0, len(items)),
		Forks:        forks,
		Branches:     branches,
		Artifacts:    make([]string, 0, len(artifacts)),
		State:        stack.State(),
	}

	saved := map[string]bool{}

	for _, it := range items {
		if err := st.saveInteraction(ctx, it, stack, saved); err != nil {
			return err
		}

		rec.Interactions = append(rec.Interactions, it.Base().ID)
	}

	for _, art := range artifacts {
		rec.Artifacts = append(rec.Artifacts, art.ID)

		if saved[art.ID] {
			continue
		}

		if err := st.SaveArtifact(ctx, art); err != nil {
			return err
		}
	}

	if err := putJSON(ctx, st.records, EntityAgent, a.ID, RecordAgent, rec); err != nil {
		return err
	}

	st.mu.Lock()
	st.agents[a.ID] = a
	st.mu.Unlock()

	return nil
}

// LoadAgent returns the agent with id, rebuilding its stack when not cached.
func (st *Storage) LoadAgent(ctx context.Context, id string) (*Agent, error) {
	st.mu.Lock()
	cached, ok := st.agents[id]
	st.mu.Unlock()

	if ok {
		return cached, nil
	}

	var rec agentRecord
	if err := getJSON(ctx, st.records, EntityAgent, id, RecordAgent, &rec); err != nil {
		return nil, fmt.Errorf("load agent %s: %w", id, err)
	}

	items := make([]Interaction, 0, len(rec.Interactions))
	for _, iid := range rec.Interactions {
		it, err := st.LoadInteraction(ctx, iid)
		if err != nil {
			return nil, err
		}

		items = append(items, it)
	}

	artifacts := make([]*Artifact, 0, len(rec.Artifacts))
	for _, aid := range rec.Artifacts {
		art, err := st.LoadArtifact(ctx, aid)
		if err != nil {
			return nil, err
		}

		artifacts = append(artifacts, art)
	}

	a := &Agent{
		Identified: rec.Identified,
		SessionID:  rec.SessionID,
		config:     rec.Config,
		steps:      rec.Steps,
		stack:      restoreStack(items, rec.Forks, rec.Branches, artifacts, rec.State),
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if cached, ok := st.agents[id]; ok {
		return cached, nil
	}

	st.agents[id] = a

	return a, nil
}

// DeleteAgent removes an agent record with its interactions, artifacts and files.
func (st *Storage) DeleteAgent(ctx context.Context, id string) error {
	var rec agentRecord
	if err := getJSON(ctx, st.records, EntityAgent, id, RecordAgent, &rec); err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}

	for _, iid := range rec.Interactions {
		if err := st.DeleteInteraction(ctx, iid); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	for _, aid := range rec.Artifacts {
		if err := st.DeleteArtifact(ctx, aid); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	if err := st.records.Delete(ctx, EntityAgent, id); err != nil {
		return err
	}

	st.mu.Lock()
	delete(st.agents, id)
	st.mu.Unlock()

	return nil
}

// ListAgents returns the ids of all persisted agents.
func (st *Storage) ListAgents(ctx context.Context) ([]string, error) {
	return st.records.List(ctx, EntityAgent)
}

// SaveInteraction persists an interaction record and the artifacts it lists.
// Artifacts are resolved through the owning agent's stack.
func (st *Storage) SaveInteraction(ctx context.Context, it Interaction) error {
	var stack *Stack
	if len(it.Base().Artifacts) > 0 {
		stack = st.ownerStack(it.Base())
	}

	return st.saveInteraction(ctx, it, stack, nil)
}

// saveInteraction writes it and its artifacts. Artifact ids already in saved
// are skipped and newly written ones are added when saved is non-nil.
func (st *Storage) saveInteraction(ctx context.Context, it Interaction, stack *Stack, saved map[string]bool) error {
	base := it.Base()

	for _, aid := range base.Artifacts {
		if saved[aid] {
			continue
		}

		art, ok := st.resolveArtifact(aid, stack)
		if !ok {
			if _, err := st.records.Get(ctx, EntityArtifact, aid); err == nil {
				continue
			}

			return fmt.Errorf("save interaction %s: artifact %s: %w", base.ID, aid, ErrNotFound)
		}

		if err := st.SaveArtifact(ctx, art); err != nil {
			return err
		}

		if saved != nil {
			saved[aid] = true
		}
	}

	rec, err := EncodeInteraction(it)
	if err != nil {
		return err
	}

	if err := st.records.Put(ctx, EntityInteraction, base.ID, rec); err != nil {
		return err
	}

	st.mu.Lock()
	st.interactions[base.ID] = it
	st.mu.Unlock()

	return nil
}

// ownerStack finds the stack holding base among cached agents and the agents
// of cached or live sessions.
func (st *Storage) ownerStack(base *InteractionBase) *Stack {
	st.mu.Lock()
	agents := make([]*Agent, 0, len(st.agents))
	if a, ok := st.agents[base.AgentID]; ok {
		agents = append(agents, a)
	}

	for _, a := range st.agents {
		agents = append(agents, a)
	}

	sessions := make([]*Session, 0, len(st.sessions)+len(st.live))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}

	for _, s := range st.live {
		sessions = append(sessions, s)
	}
	st.mu.Unlock()

	for _, s := range sessions {
		if a, ok := s.Agent(base.AgentID); ok {
			agents = append(agents, a)
		}
	}

	for _, a := range agents {
		if _, ok := a.Stack().Interaction(base.ID); ok {
			return a.Stack()
		}
	}

	return nil
}

func (st *Storage) resolveArtifact(id string, stack *Stack) (*Artifact, bool) {
	if stack != nil {
		if art, ok := stack.Artifact(id); ok {
			return art, true
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	art, ok := st.artifacts[id]

	return art, ok
}

// LoadInteraction returns the interaction with id, decoding it through the
// environment registry when not cached.
func (st *Storage) LoadInteraction(ctx context.Context, id string) (Interaction, error) {
	st.mu.Lock()
	cached, ok := st.interactions[id]
	st.mu.Unlock()

	if ok {
		return cached, nil
	}

	rec, err := st.records.Get(ctx, EntityInteraction, id)
	if err != nil {
		return nil, fmt.Errorf("load interaction %s: %w", id, err)
	}

	it, err := st.env.registry.DecodeInteraction(rec)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if cached, ok := st.interactions[id]; ok {
		return cached, nil
	}

	st.interactions[id] = it

	return it, nil
}

// LoadInteractionRecord returns the raw record of an interaction.
func (st *Storage) LoadInteractionRecord(ctx context.Context, id string) (Record, error) {
	return st.records.Get(ctx, EntityInteraction, id)
}

// DeleteInteraction removes an interaction record with the artifacts it lists.
func (st *Storage) DeleteInteraction(ctx context.Context, id string) error {
	rec, err := st.records.Get(ctx, EntityInteraction, id)
	if err != nil {
		return fmt.Errorf("delete interaction %s: %w", id, err)
	}

	var refs struct {
		Artifacts []string `json:"artifacts"`
	}

	if err := json.Unmarshal(rec.Data, &refs); err != nil {
		return fmt.Errorf("delete interaction %s: %w", id, err)
	}

	for _, aid := range refs.Artifacts {
		if err := st.DeleteArtifact(ctx, aid); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	if err := st.records.Delete(ctx, EntityInteraction, id); err != nil {
		return err
	}

	st.mu.Lock()
	delete(st.interactions, id)
	st.mu.Unlock()

	return nil
}

// SaveArtifact persists an artifact record.
func (st *Storage) SaveArtifact(ctx context.Context, a *Artifact) error {
	if err := putJSON(ctx, st.records, EntityArtifact, a.ID, RecordArtifact, a); err != nil {
		return err
	}

	st.mu.Lock()
	st.artifacts[a.ID] = a
	st.mu.Unlock()

	return nil
}

// LoadArtifact returns the artifact with id.
func (st *Storage) LoadArtifact(ctx context.Context, id string) (*Artifact, error) {
	st.mu.Lock()
	cached, ok := st.artifacts[id]
	st.mu.Unlock()

	if ok {
		return cached, nil
	}

	a := &Artifact{}
	if err := getJSON(ctx, st.records, EntityArtifact, id, RecordArtifact, a); err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", id, err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if cached, ok := st.artifacts[id]; ok {
		return cached, nil
	}

	st.artifacts[id] = a

	return a, nil
}

// DeleteArtifact removes an artifact record and its file, if any.
func (st *Storage) DeleteArtifact(ctx context.Context, id string) error {
	a, err := st.LoadArtifact(ctx, id)
	if err != nil {
		return err
	}

	if a.Path != "" && st.files != nil {
		if err := st.files.DeleteFile(ctx, a.Path); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	if err := st.records.Delete(ctx, EntityArtifact, id); err != nil {
		return err
	}

	st.mu.Lock()
	delete(st.artifacts, id)
	st.mu.Unlock()

	return nil
}

// SaveFile stores a payload in the file store.
func (st *Storage) SaveFile(ctx context.Context, ownerID string, data []byte, ext string) (string, error) {
	if st.files == nil {
		return "", ErrNoFileStore
	}

	return st.files.SaveFile(ctx, ownerID, data, ext)
}

// LoadFile reads a payload from the file store.
func (st *Storage) LoadFile(ctx context.Context, path string) ([]byte, error) {
	if st.files == nil {
		return nil, ErrNoFileStore
	}

	return st.files.LoadFile(ctx, path)
}

// Forget drops every cached object so the next Load rebuilds from records.
func (st *Storage) Forget() {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.sessions = map[string]*Session{}
	st.agents = map[string]*Agent{}
	st.interactions = map[string]Interaction{}
	st.artifacts = map[string]*Artifact{}
}
