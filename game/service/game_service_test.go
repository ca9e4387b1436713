package service_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wricardo/mcp-training/snakeserver/game/agent"
	"github.com/wricardo/mcp-training/snakeserver/game/config"
	"github.com/wricardo/mcp-training/snakeserver/game/engine"
	"github.com/wricardo/mcp-training/snakeserver/game/service"
	"github.com/wricardo/mcp-training/snakeserver/game/session"
)

type recordedEvent struct {
	ConnID  string
	Event   string
	Payload any
}

// fakeEmitter records every event in order.
type fakeEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (f *fakeEmitter) Emit(connID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{ConnID: connID, Event: event, Payload: payload})
	return f.err
}

func (f *fakeEmitter) eventsFor(connID string) []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedEvent
	for _, e := range f.events {
		if e.ConnID == connID {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeEmitter) count(connID, event, phase string) int {
	n := 0
	for _, e := range f.eventsFor(connID) {
		if e.Event != event {
			continue
		}
		if phase != "" {
			gs, ok := e.Payload.(service.GameStatePayload)
			if !ok || gs.Event != phase {
				continue
			}
		}
		n++
	}
	return n
}

type testEnv struct {
	svc      *service.Service
	registry *session.Registry
	emitter  *fakeEmitter
	cancel   context.CancelFunc
}

func newTestService(t *testing.T, opts service.Options) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	registry := session.NewRegistry()
	emitter := &fakeEmitter{}
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	env := &testEnv{
		svc:      service.NewGameService(ctx, registry, emitter, opts),
		registry: registry,
		emitter:  emitter,
		cancel:   cancel,
	}
	t.Cleanup(func() {
		cancel()
		waitDone(t, env.svc, 5*time.Second)
	})
	return env
}

func waitDone(t *testing.T, svc *service.Service, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("Timed out waiting for schedulers to stop")
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func fastGame(extra map[string]any) map[string]any {
	data := map[string]any{"starting_tick": 0.005}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// checkStream verifies init, ticks in frame order, then the terminal pair.
func checkStream(t *testing.T, events []recordedEvent) engine.Snapshot {
	t.Helper()
	if len(events) < 3 {
		t.Fatalf("Expected at least init and the terminal pair, got %d events", len(events))
	}

	first, ok := events[0].Payload.(service.GameStatePayload)
	if events[0].Event != service.EventGameState || !ok || first.Event != service.PhaseInit {
		t.Fatalf("Expected init first, got %+v", events[0])
	}

	frame := first.Payload.FrameCount
	for _, e := range events[1 : len(events)-2] {
		gs, ok := e.Payload.(service.GameStatePayload)
		if e.Event != service.EventGameState || !ok || gs.Event != service.PhaseTick {
			t.Fatalf("Expected tick, got %+v", e)
		}
		if gs.Payload.FrameCount != frame+1 {
			t.Fatalf("Ticks out of order: frame %d after %d", gs.Payload.FrameCount, frame)
		}
		frame = gs.Payload.FrameCount
	}

	final, ok := events[len(events)-2].Payload.(service.GameStatePayload)
	if !ok || final.Event != service.PhaseGameOver {
		t.Fatalf("Expected game_state game_over, got %+v", events[len(events)-2])
	}
	over, ok := events[len(events)-1].Payload.(service.GameOverPayload)
	if events[len(events)-1].Event != service.EventGameOver || !ok {
		t.Fatalf("Expected game_over last, got %+v", events[len(events)-1])
	}
	if over.FinalScore != final.Payload.Score {
		t.Errorf("Final score %d does not match snapshot score %d", over.FinalScore, final.Payload.Score)
	}
	return final.Payload
}

func TestStartGame_RunsToGameOver(t *testing.T) {
	env := newTestService(t, service.Options{})
	ctx := context.Background()

	if err := env.svc.Connect(ctx, "c1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	snap, err := env.svc.StartGame(ctx, "c1", fastGame(nil))
	if err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	if snap.GridWidth != engine.DefaultGridWidth || snap.GridHeight != engine.DefaultGridHeight {
		t.Errorf("Expected default board, got %dx%d", snap.GridWidth, snap.GridHeight)
	}

	waitFor(t, 5*time.Second, "game over", func() bool {
		return env.emitter.count("c1", service.EventGameOver, "") == 1
	})
	waitDone(t, env.svc, time.Second)

	final := checkStream(t, env.emitter.eventsFor("c1"))
	if final.Running || !final.GameOver {
		t.Errorf("Expected a finished game, got %+v", final)
	}
	// Autopilot from the centre of a 20-wide board hits the right wall on frame 10.
	if final.FrameCount != 10 {
		t.Errorf("Expected 10 frames, got %d", final.FrameCount)
	}

	sess, ok := env.registry.Get("c1")
	if !ok {
		t.Fatal("Expected the session to stay registered after game over")
	}
	info := sess.Info()
	if info.Active {
		t.Error("Expected session to be inactive after game over")
	}
	if info.Scheduler != service.Stopped.String() {
		t.Errorf("Expected scheduler state STOPPED, got %s", info.Scheduler)
	}
}

func TestStartGame_FieldHandling(t *testing.T) {
	env := newTestService(t, service.Options{})
	ctx := context.Background()

	tests := []struct {
		name   string
		data   map[string]any
		width  int
		height int
	}{
		{"wrong types ignored", map[string]any{"grid_width": "wide", "grid_height": true, "starting_tick": "fast"}, 20, 20},
		{"json numbers", map[string]any{"grid_width": 29.0, "grid_height": 19.0}, 29, 19},
		{"msgpack integers", map[string]any{"grid_width": int8(12), "grid_height": uint16(9)}, 12, 9},
		{"fractional size ignored", map[string]any{"grid_width": 12.5}, 20, 20},
		{"out of range ignored", map[string]any{"grid_width": 1000.0, "grid_height": 2.0}, 20, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := env.svc.StartGame(ctx, "fields", tt.data)
			if err != nil {
				t.Fatalf("StartGame failed: %v", err)
			}
			if snap.GridWidth != tt.width || snap.GridHeight != tt.height {
				t.Errorf("Expected %dx%d, got %dx%d", tt.width, tt.height, snap.GridWidth, snap.GridHeight)
			}
			if err := env.svc.EndSession(ctx, "fields"); err != nil {
				t.Fatalf("EndSession failed: %v", err)
			}
		})
	}
}

func TestParseStartRequest(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want service.StartRequest
	}{
		{"nil", nil, service.StartRequest{}},
		{"all fields", map[string]any{"grid_width": 30.0, "grid_height": int64(40), "starting_tick": 0.03, "preset": " arena ", "policy": "random"},
			service.StartRequest{GridWidth: 30, GridHeight: 40, StartingTick: 0.03, HasTick: true, Preset: "arena", Policy: "random"}},
		{"integer tick", map[string]any{"starting_tick": 1}, service.StartRequest{StartingTick: 1, HasTick: true}},
		{"negative tick kept for clamping", map[string]any{"starting_tick": -1.0}, service.StartRequest{StartingTick: -1, HasTick: true}},
		{"zero tick kept for clamping", map[string]any{"starting_tick": 0}, service.StartRequest{HasTick: true}},
		{"non-numeric tick ignored", map[string]any{"starting_tick": "fast"}, service.StartRequest{}},
		{"non-string preset ignored", map[string]any{"preset": 3}, service.StartRequest{}},
		{"huge integer ignored", map[string]any{"grid_width": uint64(1 << 40)}, service.StartRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := service.ParseStartRequest(tt.data); got != tt.want {
				t.Errorf("ParseStartRequest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStartGame_TickClampedToMinimum(t *testing.T) {
	env := newTestService(t, service.Options{})
	ctx := context.Background()

	start := time.Now()
	if _, err := env.svc.StartGame(ctx, "fast", map[string]any{"starting_tick": 0.0000001}); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	waitFor(t, 5*time.Second, "game over", func() bool {
		return env.emitter.count("fast", service.EventGameOver, "") == 1
	})

	// Ten frames with nine 5ms sleeps in between.
	if elapsed := time.Since(start); elapsed < 9*engine.MinTickInterval {
		t.Errorf("Game finished in %s, faster than the minimum tick allows", elapsed)
	}
}

func tickInterval(t *testing.T, registry *session.Registry, id string) time.Duration {
	t.Helper()
	sess, ok := registry.Get(id)
	if !ok {
		t.Fatalf("no session %s", id)
	}
	var d time.Duration
	sess.With(func(st *session.State) error {
		d = st.Engine.TickInterval()
		return nil
	})
	return d
}

func TestStartGame_NonPositiveTickUsesMinimum(t *testing.T) {
	env := newTestService(t, service.Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		tick any
	}{
		{"zero", 0.0},
		{"negative", -1.0},
		{"integer zero", 0},
		{"msgpack negative", int8(-3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Big board so the game outlives the assertion.
			if _, err := env.svc.StartGame(ctx, "tick", map[string]any{"grid_width": 100.0, "starting_tick": tt.tick}); err != nil {
				t.Fatalf("StartGame failed: %v", err)
			}
			if got := tickInterval(t, env.registry, "tick"); got != engine.MinTickInterval {
				t.Errorf("starting_tick=%v gave %s, want %s", tt.tick, got, engine.MinTickInterval)
			}
			if err := env.svc.EndSession(ctx, "tick"); err != nil {
				t.Fatalf("EndSession failed: %v", err)
			}
		})
	}

	if _, err := env.svc.StartGame(ctx, "default", map[string]any{"grid_width": 100.0}); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	if got := tickInterval(t, env.registry, "default"); got != engine.DefaultTickInterval {
		t.Errorf("Missing starting_tick gave %s, want the default %s", got, engine.DefaultTickInterval)
	}
}

func TestDisconnect_ReleasesStreamLocks(t *testing.T) {
	env := newTestService(t, service.Options{})
	ctx := context.Background()

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("conn-%d", i)
		if err := env.svc.Connect(ctx, ids[i]); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		if _, err := env.svc.StartGame(ctx, ids[i], fastGame(map[string]any{"grid_width": 5.0, "grid_height": 5.0})); err != nil {
			t.Fatalf("StartGame failed: %v", err)
		}
	}
	waitFor(t, 5*time.Second, "every game over", func() bool {
		for _, id := range ids {
			if env.emitter.count(id, service.EventGameOver, "") != 1 {
				return false
			}
		}
		return true
	})
	waitDone(t, env.svc, time.Second)

	for _, id := range ids {
		if err := env.svc.Disconnect(ctx, id); err != nil {
			t.Fatalf("Disconnect failed: %v", err)
		}
	}
	if n := env.registry.Count(); n != 0 {
		t.Errorf("Expected an empty registry, got %d", n)
	}
	if n := env.svc.StreamCount(); n != 0 {
		t.Errorf("Expected no stream locks after disconnect, got %d", n)
	}
}

func TestEndSession_ReleasesStreamLock(t *testing.T) {
	env := newTestService(t, service.Options{})
	ctx := context.Background()

	env.svc.Connect(ctx, "idle")
	if _, err := env.svc.StartGame(ctx, "idle", map[string]any{"grid_width": 100.0, "starting_tick": 0.02}); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	if err := env.svc.EndSession(ctx, "idle"); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	waitFor(t, 2*time.Second, "game over", func() bool {
		return env.emitter.count("idle", service.EventGameOver, "") == 1
	})
	waitDone(t, env.svc, time.Second)

	if n := env.svc.StreamCount(); n != 0 {
		t.Errorf("Expected no stream locks after EndSession, got %d", n)
	}
}

func TestStartSession_RequiresLiveConnection(t *testing.T) {
	env := newTestService(t, service.Options{})
	ctx := context.Background()

	if _, err := env.svc.StartSession(ctx, "never", nil); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound for an unknown id, got %v", err)
	}

	env.svc.Connect(ctx, "late")
	before, _ := env.registry.Get("late")
	if err := env.svc.Disconnect(ctx, "late"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if _, err := env.svc.StartSession(ctx, "late", fastGame(nil)); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound after disconnect, got %v", err)
	}
	if n := env.registry.Count(); n != 0 {
		t.Errorf("A start after disconnect must not register a session, got %d", n)
	}
	if n := env.svc.StreamCount(); n != 0 {
		t.Errorf("Expected no stream locks, got %d", n)
	}
	if n := len(env.emitter.eventsFor("late")); n != 0 {
		t.Errorf("Expected no events for a dead connection, got %d", n)
	}

	env.svc.Connect(ctx, "live")
	snap, err := env.svc.StartSession(ctx, "live", map[string]any{"starting_tick": 10.0})
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if !snap.Running {
		t.Error("Expected a running game")
	}
	if after, _ := env.registry.Get("live"); after == nil || after.Generation <= before.Generation {
		t.Error("Expected StartSession to install a newer generation")
	}
}

func TestStartGame_LogsIgnoredFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	env := newTestService(t, service.Options{Logger: zap.New(core)})

	if _, err := env.svc.StartGame(context.Background(), "big", map[string]any{"grid_width": 1000.0, "grid_height": 12.0, "starting_tick": 10.0}); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}

	entries := logs.FilterMessage("start_game fields ignored, using defaults").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one ignored-fields log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()["fields"]
	if !reflect.DeepEqual(fields, []interface{}{"grid_width"}) {
		t.Errorf("Expected only grid_width reported, got %v", fields)
	}
}

func TestDisconnect_MidTick(t *testing.T) {
	env := newTestService(t, service.Options{})
	ctx := context.Background()

	env.svc.Connect(ctx, "c1")
	if _, err := env.svc.StartGame(ctx, "c1", map[string]any{"grid_width": 100.0, "starting_tick": 0.02}); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	waitFor(t, 2*time.Second, "two ticks", func() bool {
		return env.emitter.count("c1", service.EventGameState, service.PhaseTick) >= 2
	})

	if err := env.svc.Disconnect(ctx, "c1"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	// One tick interval plus scheduling slack.
	waitDone(t, env.svc, 500*time.Millisecond)

	if _, ok := env.registry.Get("c1"); ok {
		t.Error("Expected registry entry to be gone after disconnect")
	}
	final := checkStream(t, env.emitter.eventsFor("c1"))
	if final.GameOver {
		t.Error("Disconnect should not mark the board as a lost game")
	}
	if err := env.svc.Disconnect(ctx, "c1"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound on second disconnect, got %v", err)
	}
}

type failingDecider struct {
	mu    sync.Mutex
	calls int
	panic bool
}

func (d *failingDecider) Decide(context.Context, engine.Observation) (agent.Action, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.panic {
		panic("policy exploded")
	}
	return agent.Action{}, errors.New("policy unavailable")
}

func (d *failingDecider) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func fixedFood(uint64) engine.FoodPlacer {
	return engine.NewSequencePlacer(engine.Cell{X: 13, Y: 10}, engine.Cell{X: 3, Y: 3}, engine.Cell{X: 0, Y: 0})
}

func playOut(t *testing.T, opts service.Options, data map[string]any) engine.Snapshot {
	t.Helper()
	opts.NewPlacer = fixedFood
	env := newTestService(t, opts)

	if _, err := env.svc.StartGame(context.Background(), "p", fastGame(data)); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	waitFor(t, 5*time.Second, "game over", func() bool {
		return env.emitter.count("p", service.EventGameOver, "") == 1
	})
	return checkStream(t, env.emitter.eventsFor("p"))
}

func TestFailingDecider_FallsBackToDefault(t *testing.T) {
	baseline := playOut(t, service.Options{}, map[string]any{"policy": agent.PolicyAutopilot})

	for _, panics := range []bool{false, true} {
		d := &failingDecider{panic: panics}
		got := playOut(t, service.Options{
			Deciders: func(string, uint64) agent.Decider { return d },
		}, map[string]any{"policy": agent.PolicyQLearning})

		if !reflect.DeepEqual(got, baseline) {
			t.Errorf("panics=%v: final state differs from default-policy run:\n%+v\n%+v", panics, got, baseline)
		}
		if d.Calls() != baseline.FrameCount {
			t.Errorf("panics=%v: expected the decider to be asked every tick (%d), got %d", panics, baseline.FrameCount, d.Calls())
		}
	}
}

func TestFailingDecider_CircuitBreaker(t *testing.T) {
	d := &failingDecider{}
	final := playOut(t, service.Options{
		Deciders:           func(string, uint64) agent.Decider { return d },
		MaxDeciderFailures: 3,
	}, map[string]any{"policy": agent.PolicyQLearning})

	if final.FrameCount <= 3 {
		t.Fatalf("Game too short to exercise the breaker: %d frames", final.FrameCount)
	}
	if d.Calls() != 3 {
		t.Errorf("Expected decider to be detached after 3 failures, got %d calls", d.Calls())
	}
}

func TestQLearning_TrainsThroughScheduler(t *testing.T) {
	table := agent.NewQTable()
	playOut(t, service.Options{
		Deciders: func(policy string, seed uint64) agent.Decider {
			return agent.NewQLearner(table, seed)
		},
	}, map[string]any{"policy": agent.PolicyQLearning, "grid_width": 5, "grid_height": 5})

	if table.Episodes() != 1 {
		t.Errorf("Expected one finished episode, got %d", table.Episodes())
	}
	if table.States() == 0 {
		t.Error("Expected the table to record states")
	}
}

func TestStartGame_LearnedPolicyUnavailable(t *testing.T) {
	env := newTestService(t, service.Options{})
	if _, err := env.svc.StartGame(context.Background(), "q", fastGame(map[string]any{"policy": "qlearning"})); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	info, err := env.svc.GetSession(context.Background(), "q")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if info.Policy != agent.PolicyAutopilot {
		t.Errorf("Expected fallback to autopilot, got %q", info.Policy)
	}
}

func TestRestart_SupersedesOldScheduler(t *testing.T) {
	env := newTestService(t, service.Options{})
	ctx := context.Background()
	slow := map[string]any{"grid_width": 100.0, "starting_tick": 0.01}

	env.svc.StartGame(ctx, "r", slow)
	waitFor(t, 2*time.Second, "first game ticks", func() bool {
		return env.emitter.count("r", service.EventGameState, service.PhaseTick) >= 3
	})

	env.svc.StartGame(ctx, "r", slow)
	waitFor(t, 2*time.Second, "second game ticks", func() bool {
		return env.emitter.count("r", service.EventGameState, service.PhaseTick) >= 8
	})
	env.svc.EndSession(ctx, "r")
	waitDone(t, env.svc, time.Second)

	events := env.emitter.eventsFor("r")
	second := -1
	for i, e := range events {
		if gs, ok := e.Payload.(service.GameStatePayload); ok && gs.Event == service.PhaseInit {
			second = i
		}
	}
	if second <= 0 {
		t.Fatal("Expected two init events")
	}
	if env.emitter.count("r", service.EventGameOver, "") != 1 {
		t.Errorf("Expected exactly one game_over, got %d", env.emitter.count("r", service.EventGameOver, ""))
	}
	checkStream(t, events[second:])
}

// panickyPlacer places the first food and panics on every later call.
type panickyPlacer struct {
	calls int
}

func (p *panickyPlacer) Place(width, height int, occupied func(engine.Cell) bool) (engine.Cell, bool) {
	p.calls++
	if p.calls > 1 {
		panic("placer broke")
	}
	return engine.Cell{X: 11, Y: 10}, true
}

func TestScheduler_UnexpectedErrorEmitsServerError(t *testing.T) {
	env := newTestService(t, service.Options{
		NewPlacer: func(uint64) engine.FoodPlacer { return &panickyPlacer{} },
	})
	ctx := context.Background()

	if _, err := env.svc.StartGame(ctx, "e", fastGame(nil)); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	waitFor(t, 2*time.Second, "server error", func() bool {
		return env.emitter.count("e", service.EventServerError, "") == 1
	})
	waitDone(t, env.svc, time.Second)

	events := env.emitter.eventsFor("e")
	last := events[len(events)-1]
	if _, ok := last.Payload.(service.ServerErrorPayload); !ok || last.Event != service.EventServerError {
		t.Errorf("Expected server_error last, got %+v", last)
	}
	if env.emitter.count("e", service.EventGameOver, "") != 0 {
		t.Error("Expected no game_over after an unexpected error")
	}

	sess, _ := env.registry.Get("e")
	if sess.Active() {
		t.Error("Expected session to be inactive")
	}
}

func TestScheduler_EmitFailuresAreSwallowed(t *testing.T) {
	env := newTestService(t, service.Options{})
	env.emitter.err = errors.New("connection closed")

	if _, err := env.svc.StartGame(context.Background(), "gone", fastGame(nil)); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	waitFor(t, 5*time.Second, "game over", func() bool {
		return env.emitter.count("gone", service.EventGameOver, "") == 1
	})
	checkStream(t, env.emitter.eventsFor("gone"))
}

func TestShutdown_StopsSchedulers(t *testing.T) {
	env := newTestService(t, service.Options{})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := env.svc.StartGame(ctx, id, map[string]any{"starting_tick": 10.0}); err != nil {
			t.Fatalf("StartGame failed: %v", err)
		}
	}
	waitFor(t, time.Second, "first ticks", func() bool {
		return env.emitter.count("c", service.EventGameState, service.PhaseTick) == 1
	})

	env.cancel()
	waitDone(t, env.svc, time.Second)

	for _, id := range []string{"a", "b", "c"} {
		checkStream(t, env.emitter.eventsFor(id))
	}
}

func TestTurn(t *testing.T) {
	env := newTestService(t, service.Options{})
	ctx := context.Background()

	env.svc.Connect(ctx, "t")
	if err := env.svc.Turn(ctx, "t", map[string]any{"direction": "UP"}); !errors.Is(err, service.ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning before start, got %v", err)
	}
	if err := env.svc.Turn(ctx, "nobody", map[string]any{"direction": "UP"}); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	env.svc.StartGame(ctx, "t", map[string]any{"starting_tick": 0.03})

	tests := []struct {
		name    string
		data    map[string]any
		wantErr error
	}{
		{"absolute", map[string]any{"direction": "up"}, nil},
		{"relative", map[string]any{"turn": "right"}, nil},
		{"unknown direction", map[string]any{"direction": "north"}, service.ErrInvalidDirection},
		{"relative word as direction", map[string]any{"direction": "straight"}, service.ErrInvalidDirection},
		{"missing", map[string]any{}, service.ErrInvalidDirection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.svc.Turn(ctx, "t", tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Turn(%v) = %v, want %v", tt.data, err, tt.wantErr)
			}
		})
	}

	waitFor(t, 2*time.Second, "a tick after the turn", func() bool {
		for _, e := range env.emitter.eventsFor("t") {
			if gs, ok := e.Payload.(service.GameStatePayload); ok && gs.Payload.Heading != "RIGHT" {
				return true
			}
		}
		return false
	})

	waitFor(t, 5*time.Second, "game over", func() bool {
		return env.emitter.count("t", service.EventGameOver, "") == 1
	})
	waitFor(t, time.Second, "session inactive", func() bool {
		sess, ok := env.registry.Get("t")
		return ok && !sess.Active()
	})
	if err := env.svc.Turn(ctx, "t", map[string]any{"direction": "UP"}); !errors.Is(err, service.ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning after game over, got %v", err)
	}
}

func TestHandleCommand(t *testing.T) {
	env := newTestService(t, service.Options{})
	ctx := context.Background()

	if err := env.svc.HandleCommand(ctx, "h", "fly", nil); !errors.Is(err, service.ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}
	if err := env.svc.HandleCommand(ctx, "h", service.CommandStartGame, fastGame(nil)); err != nil {
		t.Fatalf("start_game failed: %v", err)
	}
	waitFor(t, 5*time.Second, "game over", func() bool {
		return env.emitter.count("h", service.EventGameOver, "") == 1
	})
}

func TestSessionsAndPresets(t *testing.T) {
	presets, err := config.NewManager("")
	if err != nil {
		t.Fatalf("Failed to create preset manager: %v", err)
	}
	env := newTestService(t, service.Options{Presets: presets, DefaultPolicy: "random"})
	ctx := context.Background()

	env.svc.Connect(ctx, "x")
	env.svc.Connect(ctx, "y")
	env.svc.StartGame(ctx, "y", map[string]any{"starting_tick": 1.0, "preset": "missing"})

	list, err := env.svc.ListSessions(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("Expected 2 sessions, got %d (%v)", len(list), err)
	}

	info, err := env.svc.GetSession(ctx, "y")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if info.Policy != agent.PolicyRandom || info.Preset != config.DefaultPresetName || info.Snapshot == nil {
		t.Errorf("Unexpected session info %+v", info)
	}
	if _, err := env.svc.GetSession(ctx, "zzz"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	all, err := env.svc.ListPresets(ctx)
	if err != nil || len(all) != 1 {
		t.Errorf("Expected only the default preset, got %v (%v)", all, err)
	}
	if _, err := env.svc.GetPreset(ctx, "nope"); !errors.Is(err, config.ErrPresetNotFound) {
		t.Errorf("Expected ErrPresetNotFound, got %v", err)
	}

	if err := env.svc.EndSession(ctx, "y"); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if err := env.svc.EndSession(ctx, "y"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestSchedulerState_String(t *testing.T) {
	states := map[service.SchedulerState]string{
		service.Starting: "STARTING",
		service.Running:  "RUNNING",
		service.Stopping: "STOPPING",
		service.Stopped:  "STOPPED",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("Expected %s, got %s", want, s.String())
		}
	}
}
