package session

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionReplaced  = errors.New("session replaced")
	ErrInvalidSessionID = errors.New("invalid session ID")
)

// Registry maps connection ids to sessions
type Registry struct {
	sessions   map[string]*Session
	generation uint64
	mu         sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Create registers a new inactive session for id, replacing any existing one.
// Every call hands out a higher generation than the one before.
func (r *Registry) Create(id string) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.install(id, r.sessions[id]), nil
}

// Replace is Create for an id that must already be registered. It fails with
// ErrSessionNotFound once the connection has gone away, so callers outside
// the connection cannot bring a session back.
func (r *Registry) Replace(id string) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, exists := r.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return r.install(id, old), nil
}

// install stores a fresh session under the next generation. Callers hold mu.
func (r *Registry) install(id string, old *Session) *Session {
	r.generation++
	sess := &Session{
		ID:         id,
		Generation: r.generation,
		CreatedAt:  time.Now(),
	}
	if old != nil {
		sess.CreatedAt = old.CreatedAt
	}
	r.sessions[id] = sess
	return sess
}

// Get retrieves a session by id
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, exists := r.sessions[id]
	return sess, exists
}

// Lookup returns the session for id only if it is still the given generation.
func (r *Registry) Lookup(id string, generation uint64) (*Session, error) {
	sess, exists := r.Get(id)
	if !exists {
		return nil, ErrSessionNotFound
	}
	if sess.Generation != generation {
		return nil, ErrSessionReplaced
	}
	return sess, nil
}

// Remove deletes the session for id and returns it
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, exists := r.sessions[id]
	if exists {
		delete(r.sessions, id)
	}
	return sess, exists
}

// List returns all sessions ordered by creation time
func (r *Registry) List() []*Session {
	r.mu.RLock()
	result := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		result = append(result, sess)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Count returns the number of registered sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
