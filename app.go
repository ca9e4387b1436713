package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/mcp-training/snakeserver/api"
	"github.com/wricardo/mcp-training/snakeserver/game/agent"
	"github.com/wricardo/mcp-training/snakeserver/game/config"
	"github.com/wricardo/mcp-training/snakeserver/game/service"
	"github.com/wricardo/mcp-training/snakeserver/game/session"
	"github.com/wricardo/mcp-training/snakeserver/transport/websocket"
)

// sharedTable is the name the learned policy is stored under.
const sharedTable = "shared"

// policyFlushInterval is how often the learned policy is written to disk.
const policyFlushInterval = 30 * time.Second

type appConfig struct {
	Host               string
	Port               int
	PresetsDir         string
	PolicyDir          string
	DefaultPolicy      string
	Seed               uint64
	MaxDeciderFailures int
}

// app holds the wired server components.
type app struct {
	log      *zap.Logger
	registry *session.Registry
	hub      *websocket.Hub
	svc      *service.Service
	presets  *config.Manager
	store    agent.PolicyStore
	table    *agent.QTable
	api      *api.Server

	cancel   context.CancelFunc
	flushers sync.WaitGroup
	once     sync.Once
}

// newApp wires presets, the learned policy, the session registry, the game
// service and both transports. Schedulers and the policy flusher stop when
// ctx is cancelled or shutdown is called.
func newApp(ctx context.Context, cfg appConfig, log *zap.Logger) (*app, error) {
	presets, err := config.NewManager(cfg.PresetsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create preset manager: %w", err)
	}

	store, err := agent.NewFileStore(cfg.PolicyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy store: %w", err)
	}
	table := agent.NewQTable()
	if err := agent.LoadInto(store, sharedTable, table); err != nil {
		log.Warn("failed to load learned policy, starting empty", zap.Error(err))
	} else if table.States() > 0 {
		log.Info("loaded learned policy", zap.Int("states", table.States()), zap.Int("episodes", table.Episodes()))
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &app{
		log:      log,
		registry: session.NewRegistry(),
		hub:      websocket.NewHub(log.Named("ws")),
		presets:  presets,
		store:    store,
		table:    table,
		cancel:   cancel,
	}

	a.svc = service.NewGameService(ctx, a.registry, a.hub, service.Options{
		Logger:             log.Named("game"),
		Presets:            presets,
		Deciders:           a.deciders,
		DefaultPolicy:      cfg.DefaultPolicy,
		Seed:               cfg.Seed,
		MaxDeciderFailures: cfg.MaxDeciderFailures,
	})
	a.hub.SetHandler(a.svc)
	a.api = api.NewServer(a.svc, api.WithWebSocket(a.hub.ServeWS), api.WithLogger(log.Named("http")))

	log.Info("services ready",
		zap.Int("presets", presets.Count()),
		zap.String("presets_dir", cfg.PresetsDir),
		zap.String("policy_dir", cfg.PolicyDir))

	a.flushers.Add(1)
	go a.flushLoop(ctx, policyFlushInterval)
	return a, nil
}

// deciders builds a learner over the shared table for every qlearning game.
func (a *app) deciders(policy string, seed uint64) agent.Decider {
	if policy != agent.PolicyQLearning {
		return nil
	}
	return agent.NewQLearner(a.table, seed)
}

func (a *app) flushLoop(ctx context.Context, interval time.Duration) {
	defer a.flushers.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.flushPolicy(); err != nil {
				a.log.Warn("failed to save learned policy", zap.Error(err))
			}
		}
	}
}

// flushPolicy writes the shared table if it has learned anything.
func (a *app) flushPolicy() error {
	data := a.table.Export()
	if len(data.Values) == 0 {
		return nil
	}
	if err := a.store.Save(sharedTable, data); err != nil {
		return err
	}
	a.log.Debug("saved learned policy", zap.Int("states", len(data.Values)), zap.Int("episodes", data.Episodes))
	return nil
}

// shutdown stops every scheduler and flushes the learned policy once.
func (a *app) shutdown() {
	a.once.Do(func() {
		a.cancel()
		a.svc.Wait()
		a.flushers.Wait()
		if err := a.flushPolicy(); err != nil {
			a.log.Warn("failed to save learned policy", zap.Error(err))
		}
	})
}
