package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/mcp-training/snakeserver/game/agent"
	"github.com/wricardo/mcp-training/snakeserver/game/engine"
	"github.com/wricardo/mcp-training/snakeserver/game/session"
)

// SchedulerState is the lifecycle state of one session's tick loop.
type SchedulerState int

const (
	Starting SchedulerState = iota
	Running
	Stopping
	Stopped
)

func (s SchedulerState) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// outcome tells the loop what to do after one iteration.
type outcome int

const (
	keepTicking outcome = iota
	finish
	superseded
)

// scheduler drives one session. It holds only the connection id and the
// generation it was launched for and looks the session up every tick.
type scheduler struct {
	svc        *Service
	connID     string
	generation uint64
	state      SchedulerState
	last       engine.Snapshot
	failures   int
	log        *zap.Logger
}

func newScheduler(svc *Service, connID string, generation uint64, initial engine.Snapshot) *scheduler {
	return &scheduler{
		svc:        svc,
		connID:     connID,
		generation: generation,
		state:      Starting,
		last:       initial,
		log:        svc.log.With(zap.String("conn", connID), zap.Uint64("generation", generation)),
	}
}

func (sc *scheduler) run(ctx context.Context) {
	defer sc.svc.wg.Done()
	defer sc.release()

	sc.transition(Running)
	for {
		next, delay, err := sc.safeTick(ctx)
		if err != nil {
			sc.fail(err)
			return
		}

		switch next {
		case superseded:
			sc.log.Debug("scheduler superseded by a newer game")
			sc.state = Stopped
			return
		case finish:
			sc.stop()
			return
		}

		if !sc.sleep(ctx, delay) {
			sc.stop()
			return
		}
	}
}

// safeTick runs one iteration and turns a panic into an error.
func (sc *scheduler) safeTick(ctx context.Context) (next outcome, delay time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	return sc.tick(ctx)
}

func (sc *scheduler) tick(ctx context.Context) (outcome, time.Duration, error) {
	if ctx.Err() != nil {
		return finish, 0, nil
	}

	sess, err := sc.svc.registry.Lookup(sc.connID, sc.generation)
	if errors.Is(err, session.ErrSessionReplaced) {
		return superseded, 0, nil
	}
	if err != nil {
		return finish, 0, nil
	}

	var (
		snap     engine.Snapshot
		terminal bool
		stopped  bool
		delay    time.Duration
	)
	err = sess.With(func(st *session.State) error {
		if !st.Active || st.Engine == nil || !st.Engine.Running() {
			stopped = true
			return nil
		}
		res := sc.advance(ctx, st)
		snap = st.Engine.Snapshot()
		terminal = res.Terminal
		delay = st.Engine.TickInterval()
		return nil
	})
	if err != nil {
		return finish, 0, err
	}
	if stopped {
		return finish, 0, nil
	}

	sc.last = snap
	if !sc.svc.emitCurrent(sc.connID, sc.generation, EventGameState, GameStatePayload{Event: PhaseTick, Payload: snap}) {
		return superseded, 0, nil
	}
	if terminal {
		return finish, 0, nil
	}
	return keepTicking, delay, nil
}

// advance decides, steps and trains. It runs under the session lock.
func (sc *scheduler) advance(ctx context.Context, st *session.State) engine.StepResult {
	eng := st.Engine
	before := eng.Observe()

	action, learned := sc.decide(ctx, st, before)
	action.Apply(eng)
	res := eng.Step()

	if learned && st.Binding.Trainer != nil {
		after := eng.Observe()
		err := agent.SafeTrain(st.Binding.Trainer, agent.Transition{
			State:     before,
			Action:    action,
			Reward:    agent.Reward(before.Snapshot.Score, after.Snapshot.Score, res.Terminal),
			NextState: after,
			Terminal:  res.Terminal,
		})
		if err != nil {
			sc.deciderFailed(st, "training failed", err)
		}
	}
	return res
}

// decide asks the bound decision source, falling back to the default policy
// for this tick when it fails.
func (sc *scheduler) decide(ctx context.Context, st *session.State, obs engine.Observation) (agent.Action, bool) {
	if st.Binding != nil {
		action, err := agent.SafeDecide(ctx, st.Binding.Decider, obs)
		if err == nil {
			sc.failures = 0
			return action, true
		}
		sc.deciderFailed(st, "decision failed, using default policy", err)
	}

	if st.Fallback == nil {
		return agent.Autopilot{}.Choose(obs), false
	}
	return st.Fallback.Choose(obs), false
}

func (sc *scheduler) deciderFailed(st *session.State, msg string, err error) {
	sc.failures++
	sc.log.Warn(msg, zap.Error(err), zap.Int("consecutive_failures", sc.failures))

	limit := sc.svc.opts.MaxDeciderFailures
	if limit > 0 && sc.failures >= limit && st.Binding != nil {
		sc.log.Error("detaching decision source", zap.String("policy", st.Binding.Name), zap.Int("failures", sc.failures))
		st.Binding = nil
		st.Policy = sc.svc.opts.DefaultPolicy
	}
}

// sleep waits one tick interval. It returns false if the service is shutting down.
func (sc *scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// stop emits the terminal events and deactivates the session.
func (sc *scheduler) stop() {
	sc.transition(Stopping)

	final := sc.last
	if sc.svc.emitCurrent(sc.connID, sc.generation, EventGameState, GameStatePayload{Event: PhaseGameOver, Payload: final}) {
		sc.svc.emitCurrent(sc.connID, sc.generation, EventGameOver, GameOverPayload{FinalScore: final.Score})
	}
	sc.deactivate()

	sc.log.Info("game over", zap.Int("final_score", final.Score), zap.Int("frames", final.FrameCount))
	sc.transition(Stopped)
}

// fail handles an unexpected error: best-effort server_error, no terminal
// snapshot, session deactivated.
func (sc *scheduler) fail(err error) {
	sc.log.Error("scheduler failed", zap.Error(err))
	sc.transition(Stopping)
	sc.svc.emitCurrent(sc.connID, sc.generation, EventServerError, ServerErrorPayload{Message: err.Error()})
	sc.deactivate()
	sc.transition(Stopped)
}

func (sc *scheduler) deactivate() {
	if sess, err := sc.svc.registry.Lookup(sc.connID, sc.generation); err == nil {
		sess.Deactivate()
	}
}

func (sc *scheduler) transition(next SchedulerState) {
	sc.state = next
	if sess, err := sc.svc.registry.Lookup(sc.connID, sc.generation); err == nil {
		sess.SetScheduler(next.String())
	}
}

// release drops the connection's stream lock once nothing references it.
func (sc *scheduler) release() {
	if _, ok := sc.svc.registry.Get(sc.connID); !ok {
		sc.svc.streams.Delete(sc.connID)
	}
}
