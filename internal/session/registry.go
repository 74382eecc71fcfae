// Package session tracks the live terminal session for each websocket
// connection. At most one PTY session exists per connection; removing a
// connection always closes its session.
package session

import (
	"sync"

	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/comfy-pilot/bridge/internal/pty"
	"go.uber.org/zap"
)

// Registry maps connection identity to its PTY session. Handlers run on OS
// threads, so all mutation is guarded by a mutex.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*pty.Session
	log      *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*pty.Session),
		log:      log,
	}
}

// Add registers the session for a connection. A previous session under the
// same id is closed first; one connection owns at most one PTY.
func (r *Registry) Add(connID string, s *pty.Session) {
	r.mu.Lock()
	prev := r.sessions[connID]
	r.sessions[connID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	if prev != nil && prev != s {
		prev.Close()
	}
	r.log.Info("session registered", zap.String("conn", connID), zap.Int("active", count))
}

// get returns the session for a connection, if any.
func (r *Registry) get(connID string) (*pty.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// Remove unregisters and closes the session for a connection. Safe to call
// for ids that were never registered.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	s, ok := r.sessions[connID]
	delete(r.sessions, connID)
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}
	s.Close()
	r.log.Info("session removed", zap.String("conn", connID), zap.Int("active", count))
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll tears down every session, for server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*pty.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*pty.Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
