package session

import (
	"sync"
	"time"

	"github.com/wricardo/mcp-training/snakeserver/game/agent"
	"github.com/wricardo/mcp-training/snakeserver/game/engine"
)

// State is the mutable part of a session. It is only valid inside With.
type State struct {
	Engine    *engine.Engine
	Binding   *agent.Binding
	Fallback  agent.DefaultPolicy
	Policy    string
	Preset    string
	Active    bool
	StartedAt time.Time
	Scheduler string
}

// Session binds one connection to one engine and an optional decision source.
type Session struct {
	ID         string
	Generation uint64
	CreatedAt  time.Time

	mu    sync.Mutex
	state State
}

// Info is a detached, read-only view of a session.
type Info struct {
	ID         string           `json:"id"`
	Generation uint64           `json:"generation"`
	Active     bool             `json:"active"`
	Policy     string           `json:"policy,omitempty"`
	Preset     string           `json:"preset,omitempty"`
	Scheduler  string           `json:"scheduler_state,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	Snapshot   *engine.Snapshot `json:"snapshot,omitempty"`
}

// With runs fn while holding the session lock.
func (s *Session) With(fn func(st *State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.state)
}

// Start installs a fresh engine and decision source and marks the session active.
func (s *Session) Start(eng *engine.Engine, binding *agent.Binding, fallback agent.DefaultPolicy, policy, preset string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{
		Engine:    eng,
		Binding:   binding,
		Fallback:  fallback,
		Policy:    policy,
		Preset:    preset,
		Active:    true,
		StartedAt: time.Now(),
	}
}

// Active reports whether the session's scheduler should keep running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Active
}

// Deactivate flips the kill switch the scheduler polls.
func (s *Session) Deactivate() {
	s.mu.Lock()
	s.state.Active = false
	s.mu.Unlock()
}

// Clear deactivates the session and drops its engine and decision source.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Active = false
	s.state.Engine = nil
	s.state.Binding = nil
	s.state.Fallback = nil
}

// SetScheduler records the state of the scheduler driving this session.
func (s *Session) SetScheduler(state string) {
	s.mu.Lock()
	s.state.Scheduler = state
	s.mu.Unlock()
}

// Info returns a snapshot of the session metadata and board.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:         s.ID,
		Generation: s.Generation,
		Active:     s.state.Active,
		Policy:     s.state.Policy,
		Preset:     s.state.Preset,
		Scheduler:  s.state.Scheduler,
		CreatedAt:  s.CreatedAt,
	}
	if !s.state.StartedAt.IsZero() {
		started := s.state.StartedAt
		info.StartedAt = &started
	}
	if s.state.Engine != nil {
		snap := s.state.Engine.Snapshot()
		info.Snapshot = &snap
	}
	return info
}
