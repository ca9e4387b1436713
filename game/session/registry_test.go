package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/wricardo/mcp-training/snakeserver/game/agent"
	"github.com/wricardo/mcp-training/snakeserver/game/engine"
)

func TestRegistry_Create(t *testing.T) {
	registry := NewRegistry()

	t.Run("Create new session", func(t *testing.T) {
		sess, err := registry.Create("conn-1")
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if sess.ID != "conn-1" {
			t.Errorf("Expected ID conn-1, got %s", sess.ID)
		}
		if sess.Active() {
			t.Error("Expected new session to be inactive")
		}
		if sess.Info().Snapshot != nil {
			t.Error("Expected no engine before start")
		}
	})

	t.Run("Create overwrites and bumps generation", func(t *testing.T) {
		first, _ := registry.Get("conn-1")
		second, err := registry.Create("conn-1")
		if err != nil {
			t.Fatalf("Expected overwrite to succeed, got %v", err)
		}
		if second.Generation <= first.Generation {
			t.Errorf("Expected generation to grow, got %d then %d", first.Generation, second.Generation)
		}
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Error("Expected creation time to survive a restart")
		}
		if registry.Count() != 1 {
			t.Errorf("Expected 1 session, got %d", registry.Count())
		}
	})

	t.Run("Empty id", func(t *testing.T) {
		if _, err := registry.Create(""); !errors.Is(err, ErrInvalidSessionID) {
			t.Errorf("Expected ErrInvalidSessionID, got %v", err)
		}
	})
}

func TestRegistry_Replace(t *testing.T) {
	registry := NewRegistry()

	if _, err := registry.Replace("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if registry.Count() != 0 {
		t.Errorf("Replace must not register a missing id, got %d sessions", registry.Count())
	}
	if _, err := registry.Replace(""); !errors.Is(err, ErrInvalidSessionID) {
		t.Errorf("Expected ErrInvalidSessionID, got %v", err)
	}

	first, _ := registry.Create("c")
	second, err := registry.Replace("c")
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if second.Generation <= first.Generation || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("Expected a newer generation with the original creation time, got %+v", second)
	}
	if _, err := registry.Lookup("c", first.Generation); !errors.Is(err, ErrSessionReplaced) {
		t.Errorf("Expected the old generation to be replaced, got %v", err)
	}

	registry.Remove("c")
	if _, err := registry.Replace("c"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound after Remove, got %v", err)
	}
	if registry.Count() != 0 {
		t.Errorf("Expected empty registry, got %d", registry.Count())
	}
}

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry()
	old, _ := registry.Create("c")
	current, _ := registry.Create("c")

	if _, err := registry.Lookup("c", old.Generation); !errors.Is(err, ErrSessionReplaced) {
		t.Errorf("Expected ErrSessionReplaced for stale generation, got %v", err)
	}
	got, err := registry.Lookup("c", current.Generation)
	if err != nil || got != current {
		t.Errorf("Expected current session, got %v (%v)", got, err)
	}
	if _, err := registry.Lookup("missing", 1); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegistry_Remove(t *testing.T) {
	registry := NewRegistry()
	registry.Create("a")

	sess, ok := registry.Remove("a")
	if !ok || sess.ID != "a" {
		t.Fatalf("Expected to remove a, got %v %v", sess, ok)
	}
	if _, ok := registry.Get("a"); ok {
		t.Error("Expected session to be gone")
	}
	if _, ok := registry.Remove("a"); ok {
		t.Error("Expected second remove to report absence")
	}
}

func TestRegistry_List(t *testing.T) {
	registry := NewRegistry()
	for i := 0; i < 5; i++ {
		registry.Create(fmt.Sprintf("conn-%d", i))
	}

	list := registry.List()
	if len(list) != 5 {
		t.Fatalf("Expected 5 sessions, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.Before(list[i-1].CreatedAt) {
			t.Errorf("List not ordered by creation at %d", i)
		}
	}
}

func TestSession_Lifecycle(t *testing.T) {
	registry := NewRegistry()
	sess, _ := registry.Create("conn")

	eng := engine.NewEngineWithDefaults()
	sess.Start(eng, nil, agent.Autopilot{}, agent.PolicyAutopilot, "default")

	info := sess.Info()
	if !info.Active || info.Policy != agent.PolicyAutopilot || info.Preset != "default" {
		t.Errorf("Unexpected info after start: %+v", info)
	}
	if info.Snapshot == nil || info.StartedAt == nil {
		t.Fatal("Expected snapshot and start time after start")
	}

	err := sess.With(func(st *State) error {
		st.Engine.Step()
		return nil
	})
	if err != nil {
		t.Fatalf("With failed: %v", err)
	}
	if sess.Info().Snapshot.FrameCount != 1 {
		t.Errorf("Expected frame 1, got %d", sess.Info().Snapshot.FrameCount)
	}

	sess.SetScheduler("RUNNING")
	if sess.Info().Scheduler != "RUNNING" {
		t.Error("Expected scheduler state to be recorded")
	}

	sess.Deactivate()
	if sess.Active() {
		t.Error("Expected inactive after Deactivate")
	}

	sess.Clear()
	err = sess.With(func(st *State) error {
		if st.Engine != nil || st.Binding != nil || st.Fallback != nil {
			return errors.New("references not cleared")
		}
		return nil
	})
	if err != nil {
		t.Error(err)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", id%10)
			sess, err := registry.Create(connID)
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			sess.Start(engine.NewEngineWithDefaults(), nil, agent.Autopilot{}, agent.PolicyAutopilot, "")
			for j := 0; j < 20; j++ {
				if s, err := registry.Lookup(connID, sess.Generation); err == nil {
					_ = s.With(func(st *State) error {
						st.Engine.Step()
						return nil
					})
				}
				registry.List()
			}
			if id%3 == 0 {
				if s, ok := registry.Remove(connID); ok {
					s.Clear()
				}
			}
		}(i)
	}
	wg.Wait()

	if registry.Count() > 10 {
		t.Errorf("Expected at most 10 sessions, got %d", registry.Count())
	}
}

func TestSession_Isolation(t *testing.T) {
	registry := NewRegistry()
	s1, _ := registry.Create("iso-1")
	s2, _ := registry.Create("iso-2")
	s1.Start(engine.NewEngineWithDefaults(), nil, agent.Autopilot{}, "", "")
	s2.Start(engine.NewEngineWithDefaults(), nil, agent.Autopilot{}, "", "")

	_ = s1.With(func(st *State) error {
		st.Engine.Step()
		return nil
	})

	if s2.Info().Snapshot.FrameCount != 0 {
		t.Error("Session 2 should not be affected by session 1 steps")
	}
}
