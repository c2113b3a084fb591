package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentstack/logging"
)

// State is a namespaced key/value store shared by the branches of a stack
// (or by all agents of a session). It is safe for concurrent access.
type State struct {
	mu   sync.RWMutex
	data map[string]map[string]any
}

// NewState returns an empty State.
func NewState() *State {
	return &State{data: map[string]map[string]any{}}
}

// Get returns the value stored under ns/key or def when absent.
func (s *State) Get(ns, key string, def any) any {
	if v, ok := s.Lookup(ns, key); ok {
		return v
	}

	return def
}

// Lookup returns the value stored under ns/key and whether it exists.
func (s *State) Lookup(ns, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.data[ns]
	if !ok {
		return nil, false
	}

	v, ok := m[key]

	return v, ok
}

// Set stores value under ns/key.
func (s *State) Set(ns, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.data[ns]
	if !ok {
		m = map[string]any{}
		s.data[ns] = m
	}

	m[key] = value
}

// Delete removes ns/key or returns ErrKeyNotFound.
func (s *State) Delete(ns, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.data[ns]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrKeyNotFound, ns, key)
	}

	if _, ok := m[key]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrKeyNotFound, ns, key)
	}

	delete(m, key)

	if len(m) == 0 {
		delete(s.data, ns)
	}

	return nil
}

// Namespace returns a copy of all keys stored in ns.
func (s *State) Namespace(ns string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.data[ns]))
	for k, v := range s.data[ns] {
		out[k] = v
	}

	return out
}

// Namespaces returns the sorted namespace names currently holding keys.
func (s *State) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data))
	for ns := range s.data {
		names = append(names, ns)
	}

	sort.Strings(names)

	return names
}

// Snapshot returns a two level copy of the whole store.
func (s *State) Snapshot() map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]any, len(s.data))
	for ns, m := range s.data {
		cp := make(map[string]any, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[ns] = cp
	}

	return out
}

// MarshalJSON encodes the store as {namespace: {key: value}}.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// UnmarshalJSON replaces the store content.
func (s *State) UnmarshalJSON(b []byte) error {
	data := map[string]map[string]any{}
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = data

	return nil
}

// Scopes select which State a StateMutation targets.
const (
	ScopeStack   = "stack"
	ScopeSession = "session"
)

// StateMutation describes a single write a condition evaluator wants applied.
// Evaluators never mutate state themselves; the Waiting step applies the
// returned mutation exactly once.
type StateMutation struct {
	Scope     string `json:"scope,omitempty"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     any    `json:"value,omitempty"`
	Delete    bool   `json:"delete,omitempty"`
}

// Apply writes the mutation into state. Deleting an absent key is reported
// as a warning rather than an error.
func (m *StateMutation) Apply(state *State, logger logging.Logger) {
	if m == nil || state == nil {
		return
	}

	if !m.Delete {
		state.Set(m.Namespace, m.Key, m.Value)
		return
	}

	if err := state.Delete(m.Namespace, m.Key); err != nil {
		newLogScope(logger).LogWarn("condition.bookkeeping.missing", "namespace", m.Namespace, "key", m.Key, "error", err.Error())
	}
}

// toInt converts JSON decoded numbers into an int.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

// toFloat converts JSON decoded numbers into a float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
