package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/mcp-training/snakeserver/game/agent"
	"github.com/wricardo/mcp-training/snakeserver/game/config"
	"github.com/wricardo/mcp-training/snakeserver/game/engine"
	"github.com/wricardo/mcp-training/snakeserver/game/session"
)

// GameService defines the lifecycle operations transports call
type GameService interface {
	// Connection lifecycle
	Connect(ctx context.Context, connID string) error
	Disconnect(ctx context.Context, connID string) error

	// Commands
	StartGame(ctx context.Context, connID string, data map[string]any) (*engine.Snapshot, error)
	StartSession(ctx context.Context, id string, data map[string]any) (*engine.Snapshot, error)
	Turn(ctx context.Context, connID string, data map[string]any) error

	// Introspection
	GetSession(ctx context.Context, id string) (*session.Info, error)
	ListSessions(ctx context.Context) ([]*session.Info, error)
	EndSession(ctx context.Context, id string) error

	// Presets
	ListPresets(ctx context.Context) ([]*config.Preset, error)
	GetPreset(ctx context.Context, name string) (*config.Preset, error)
}

// Emitter delivers one named event to one connection
type Emitter interface {
	Emit(connID, event string, payload any) error
}

// PresetSource resolves start_game presets
type PresetSource interface {
	Load(name string) (*config.Preset, error)
	List() ([]*config.Preset, error)
	Default() *config.Preset
}

// DeciderFactory builds the learned decision source for a policy name. It
// returns nil when the policy has no learned variant.
type DeciderFactory func(policy string, seed uint64) agent.Decider

// Options tune a Service. The zero value is usable.
type Options struct {
	Logger             *zap.Logger
	Presets            PresetSource
	Deciders           DeciderFactory
	DefaultPolicy      string
	Seed               uint64
	MaxDeciderFailures int
	NewPlacer          func(seed uint64) engine.FoodPlacer
}

// Service runs every session's lifecycle handlers and tick schedulers
type Service struct {
	registry *session.Registry
	emitter  Emitter
	opts     Options
	log      *zap.Logger

	ctx     context.Context
	wg      sync.WaitGroup
	streams sync.Map // connID -> *sync.Mutex
	seeds   atomic.Uint64
}

var _ GameService = (*Service)(nil)

// NewGameService creates a service. Schedulers stop when ctx is cancelled.
func NewGameService(ctx context.Context, registry *session.Registry, emitter Emitter, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewPlacer == nil {
		opts.NewPlacer = func(seed uint64) engine.FoodPlacer { return engine.NewRandomPlacer(seed) }
	}
	if p, err := agent.NormalizePolicy(opts.DefaultPolicy); err != nil || p == agent.PolicyQLearning {
		opts.DefaultPolicy = agent.PolicyAutopilot
	} else {
		opts.DefaultPolicy = p
	}
	if opts.Seed == 0 {
		opts.Seed = uint64(time.Now().UnixNano())
	}

	return &Service{
		registry: registry,
		emitter:  emitter,
		opts:     opts,
		log:      opts.Logger,
		ctx:      ctx,
	}
}

// Wait blocks until every scheduler has stopped.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Connect registers an inactive session for a new connection.
func (s *Service) Connect(ctx context.Context, connID string) error {
	if _, err := s.registry.Create(connID); err != nil {
		return err
	}
	s.log.Info("client connected", zap.String("conn", connID))
	return nil
}

// Disconnect deactivates the connection's session and drops it from the
// registry. Its scheduler notices on the next tick.
func (s *Service) Disconnect(ctx context.Context, connID string) error {
	sess, ok := s.registry.Remove(connID)
	if !ok {
		return session.ErrSessionNotFound
	}
	sess.Clear()
	s.streams.Delete(connID)
	s.log.Info("client disconnected", zap.String("conn", connID))
	return nil
}

// EndSession tears a session down from outside its connection. The client
// still receives the game_over events.
func (s *Service) EndSession(ctx context.Context, id string) error {
	sess, ok := s.registry.Remove(id)
	if !ok {
		return session.ErrSessionNotFound
	}
	sess.Deactivate()
	s.streams.Delete(id)
	s.log.Info("session ended", zap.String("conn", id))
	return nil
}

// StartGame builds a fresh engine for the connection, replacing any game in
// progress, emits the init snapshot and launches a scheduler.
func (s *Service) StartGame(ctx context.Context, connID string, data map[string]any) (*engine.Snapshot, error) {
	return s.start(connID, data, s.registry.Create)
}

// StartSession is StartGame for callers outside the connection. It fails with
// session.ErrSessionNotFound when the connection is gone.
func (s *Service) StartSession(ctx context.Context, id string, data map[string]any) (*engine.Snapshot, error) {
	return s.start(id, data, s.registry.Replace)
}

func (s *Service) start(connID string, data map[string]any, register func(string) (*session.Session, error)) (*engine.Snapshot, error) {
	req := ParseStartRequest(data)
	if ignored := ignoredFields(data, req); len(ignored) > 0 {
		s.log.Debug("start_game fields ignored, using defaults",
			zap.String("conn", connID),
			zap.Strings("fields", ignored),
			zap.Int("min_grid", engine.MinGridSize),
			zap.Int("max_grid", engine.MaxGridSize),
		)
	}
	preset := s.resolvePreset(req.Preset)

	cfg := preset.EngineConfig()
	if req.GridWidth != 0 {
		cfg.Width = req.GridWidth
	}
	if req.GridHeight != 0 {
		cfg.Height = req.GridHeight
	}
	if req.HasTick {
		cfg.TickInterval = engine.SecondsToTick(req.StartingTick)
	}
	cfg = cfg.Normalize()

	policy := s.resolvePolicy(req.Policy, preset.Policy)
	fallbackName := policy
	var binding *agent.Binding
	if policy == agent.PolicyQLearning {
		fallbackName = s.opts.DefaultPolicy
		if s.opts.Deciders != nil {
			binding = agent.Bind(policy, s.opts.Deciders(policy, s.nextSeed()))
		}
		if binding == nil {
			s.log.Warn("no learned policy available, using default", zap.String("conn", connID), zap.String("policy", policy))
			policy = fallbackName
		}
	}

	eng, err := engine.NewEngine(cfg, engine.WithFoodPlacer(s.opts.NewPlacer(s.nextSeed())))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	stream := s.stream(connID)
	stream.Lock()
	sess, err := register(connID)
	if err != nil {
		stream.Unlock()
		if errors.Is(err, session.ErrSessionNotFound) {
			s.streams.Delete(connID)
		}
		return nil, err
	}
	sess.Start(eng, binding, agent.NewDefaultPolicy(fallbackName, s.nextSeed()), policy, preset.Name)
	snap := eng.Snapshot()
	s.emit(connID, EventGameState, GameStatePayload{Event: PhaseInit, Payload: snap})
	stream.Unlock()

	s.log.Info("game started",
		zap.String("conn", connID),
		zap.Uint64("generation", sess.Generation),
		zap.Int("grid_width", cfg.Width),
		zap.Int("grid_height", cfg.Height),
		zap.Duration("tick", cfg.TickInterval),
		zap.String("policy", policy),
		zap.String("preset", preset.Name),
	)

	sc := newScheduler(s, connID, sess.Generation, snap)
	s.wg.Add(1)
	go sc.run(s.ctx)

	return &snap, nil
}

// Turn queues a client turn on the running game.
func (s *Service) Turn(ctx context.Context, connID string, data map[string]any) error {
	apply, ok := parseTurn(data)
	if !ok {
		return ErrInvalidDirection
	}

	sess, found := s.registry.Get(connID)
	if !found {
		return session.ErrSessionNotFound
	}
	return sess.With(func(st *session.State) error {
		if !st.Active || st.Engine == nil || !st.Engine.Running() {
			return ErrNotRunning
		}
		apply(st.Engine)
		return nil
	})
}

// HandleCommand dispatches a named inbound command.
func (s *Service) HandleCommand(ctx context.Context, connID, command string, data map[string]any) error {
	switch command {
	case CommandStartGame:
		_, err := s.StartGame(ctx, connID, data)
		return err
	case CommandTurn:
		return s.Turn(ctx, connID, data)
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
}

// GetSession returns one session's metadata and board
func (s *Service) GetSession(ctx context.Context, id string) (*session.Info, error) {
	sess, ok := s.registry.Get(id)
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	info := sess.Info()
	return &info, nil
}

// ListSessions returns every registered session
func (s *Service) ListSessions(ctx context.Context) ([]*session.Info, error) {
	sessions := s.registry.List()
	result := make([]*session.Info, 0, len(sessions))
	for _, sess := range sessions {
		info := sess.Info()
		result = append(result, &info)
	}
	return result, nil
}

// ListPresets returns the preset catalog
func (s *Service) ListPresets(ctx context.Context) ([]*config.Preset, error) {
	if s.opts.Presets == nil {
		return []*config.Preset{config.BuiltinDefault()}, nil
	}
	return s.opts.Presets.List()
}

// GetPreset returns one preset by name
func (s *Service) GetPreset(ctx context.Context, name string) (*config.Preset, error) {
	if s.opts.Presets == nil {
		if name == config.DefaultPresetName {
			return config.BuiltinDefault(), nil
		}
		return nil, config.ErrPresetNotFound
	}
	return s.opts.Presets.Load(name)
}

func (s *Service) resolvePreset(name string) *config.Preset {
	if s.opts.Presets == nil {
		return config.BuiltinDefault()
	}
	if name != "" {
		p, err := s.opts.Presets.Load(name)
		if err == nil {
			return p
		}
		s.log.Warn("ignoring unknown preset", zap.String("preset", name), zap.Error(err))
	}
	if p := s.opts.Presets.Default(); p != nil {
		return p
	}
	return config.BuiltinDefault()
}

func (s *Service) resolvePolicy(requested, preset string) string {
	for _, candidate := range []string{requested, preset} {
		if candidate == "" {
			continue
		}
		p, err := agent.NormalizePolicy(candidate)
		if err == nil {
			return p
		}
		s.log.Warn("ignoring unknown policy", zap.String("policy", candidate))
	}
	return s.opts.DefaultPolicy
}

func (s *Service) nextSeed() uint64 {
	return s.opts.Seed + s.seeds.Add(1)
}

// stream returns the lock that orders outbound events for one connection.
func (s *Service) stream(connID string) *sync.Mutex {
	mu, _ := s.streams.LoadOrStore(connID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// emit delivers an event and swallows delivery failures.
func (s *Service) emit(connID, event string, payload any) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(connID, event, payload); err != nil {
		s.log.Debug("emit failed", zap.String("conn", connID), zap.String("event", event), zap.Error(err))
	}
}

// emitCurrent emits only while generation still owns the connection. A
// removed session still gets its events; a replaced one does not.
func (s *Service) emitCurrent(connID string, generation uint64, event string, payload any) bool {
	stream := s.stream(connID)
	stream.Lock()
	defer stream.Unlock()

	if _, err := s.registry.Lookup(connID, generation); errors.Is(err, session.ErrSessionReplaced) {
		return false
	}
	s.emit(connID, event, payload)
	return true
}
