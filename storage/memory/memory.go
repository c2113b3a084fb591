// Package memory provides a volatile RecordStore and FileStore kept in process
// local maps. It is safe for concurrent access and best suited for tests,
// examples and single-process runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentstack/core"
)

// Store implements core.RecordStore and core.FileStore. Records and file
// payloads are copied on write and read to avoid accidental external mutation.
type Store struct {
	mu      sync.RWMutex
	records map[core.EntityKind]map[string]core.Record
	order   map[core.EntityKind][]string
	files   map[string][]byte
}

// New returns an empty store.
func New() *Store {
	return &Store{
		records: map[core.EntityKind]map[string]core.Record{},
		order:   map[core.EntityKind][]string{},
		files:   map[string][]byte{},
	}
}

// Put stores (or overwrites) a record.
func (s *Store) Put(_ context.Context, kind core.EntityKind, id string, rec core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.records[kind]
	if !ok {
		m = map[string]core.Record{}
		s.records[kind] = m
	}

	if _, exists := m[id]; !exists {
		s.order[kind] = append(s.order[kind], id)
	}

	m[id] = copyRecord(rec)

	return nil
}

// Get returns a copy of the record or an error wrapping core.ErrNotFound.
func (s *Store) Get(_ context.Context, kind core.EntityKind, id string) (core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[kind][id]
	if !ok {
		return core.Record{}, fmt.Errorf("%w: %s %s", core.ErrNotFound, kind, id)
	}

	return copyRecord(rec), nil
}

// Delete removes the record or returns an error wrapping core.ErrNotFound.
func (s *Store) Delete(_ context.Context, kind core.EntityKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[kind][id]; !ok {
		return fmt.Errorf("%w: %s %s", core.ErrNotFound, kind, id)
	}

	delete(s.records[kind], id)

	ids := s.order[kind]
	for i, v := range ids {
		if v == id {
			s.order[kind] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	return nil
}

// List returns record ids of kind in insertion order. The slice is a snapshot
// and safe for caller mutation.
func (s *Store) List(_ context.Context, kind core.EntityKind) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string{}, s.order[kind]...), nil
}

// SaveFile stores a payload under <ownerID>/<random id><ext>.
func (s *Store) SaveFile(_ context.Context, ownerID string, data []byte, ext string) (string, error) {
	path := fmt.Sprintf("%s/%s%s", ownerID, core.NewID(), ext)

	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	s.files[path] = cp
	s.mu.Unlock()

	return path, nil
}

// LoadFile returns a copy of the stored payload.
func (s *Store) LoadFile(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: file %s", core.ErrNotFound, path)
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	return cp, nil
}

// DeleteFile removes a payload.
func (s *Store) DeleteFile(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[path]; !ok {
		return fmt.Errorf("%w: file %s", core.ErrNotFound, path)
	}

	delete(s.files, path)

	return nil
}

// Files returns the stored file paths in sorted order.
func (s *Store) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	return paths
}

func copyRecord(rec core.Record) core.Record {
	data := make([]byte, len(rec.Data))
	copy(data, rec.Data)

	return core.Record{Type: rec.Type, Data: data}
}
