// Package workflow holds the browser's last-posted view of the graph. The
// frontend pushes its serialized workflow here; the automation side reads it
// back when it needs graph context without another round trip.
package workflow

import (
	"encoding/json"
	"sync"
	"time"
)

// Snapshot is the current document blob: the editor's serialized graph, its
// API-format counterpart, and the client timestamp of the push.
type Snapshot struct {
	Workflow    json.RawMessage `json:"workflow"`
	WorkflowAPI json.RawMessage `json:"workflow_api,omitempty"`
	Timestamp   int64           `json:"timestamp,omitempty"`
}

// Store owns the current snapshot. GET returns the last write, POST
// overwrites it wholesale; there is no history.
type Store struct {
	mu        sync.RWMutex
	current   Snapshot
	updatedAt time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the snapshot.
func (s *Store) Set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = snap
	s.updatedAt = time.Now()
}

// Get returns the current snapshot. The Workflow field is nil when nothing
// has been posted yet.
func (s *Store) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// HasWorkflow reports whether a workflow has been posted.
func (s *Store) HasWorkflow() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.current.Workflow) > 0
}

// Size reports the stored byte size, for the stats endpoint.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.current.Workflow) + len(s.current.WorkflowAPI)
}

// UpdatedAt reports when the snapshot last changed.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
