package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wricardo/mcp-training/snakeserver/game/engine"
)

// Policy names accepted in start commands and presets.
const (
	PolicyAutopilot = "autopilot"
	PolicyRandom    = "random"
	PolicyQLearning = "qlearning"
)

// Reward shaping for learned policies.
const (
	StepPenalty  = -0.01
	FoodReward   = 1.0
	DeathPenalty = -1.0
)

var (
	ErrUnknownPolicy = errors.New("unknown policy")
	ErrDeciderPanic  = errors.New("decision source panicked")
)

// ActionKind tells which vocabulary an Action speaks.
type ActionKind int

const (
	// Hold leaves whatever heading is already queued.
	Hold ActionKind = iota
	Absolute
	Relative
)

// Action is a decision in either the absolute or the relative vocabulary.
type Action struct {
	Kind      ActionKind
	Direction engine.Direction
	Turn      engine.Turn
}

// Move returns an absolute action.
func Move(d engine.Direction) Action {
	return Action{Kind: Absolute, Direction: d}
}

// Steer returns a relative action.
func Steer(t engine.Turn) Action {
	return Action{Kind: Relative, Turn: t}
}

// Apply translates the action into a turn on eng.
func (a Action) Apply(eng *engine.Engine) {
	switch a.Kind {
	case Absolute:
		eng.QueueTurn(a.Direction)
	case Relative:
		eng.ApplyTurn(a.Turn)
	}
}

func (a Action) String() string {
	switch a.Kind {
	case Absolute:
		return a.Direction.String()
	case Relative:
		return a.Turn.String()
	}
	return "hold"
}

// Decider chooses the next action for a board.
type Decider interface {
	Decide(ctx context.Context, obs engine.Observation) (Action, error)
}

// Trainer receives the outcome of every decided step.
type Trainer interface {
	Train(t Transition) error
}

// Transition is one experience tuple handed to a Trainer.
type Transition struct {
	State     engine.Observation
	Action    Action
	Reward    float64
	NextState engine.Observation
	Terminal  bool
}

// Binding is a decider with its optional training hook resolved once.
type Binding struct {
	Name    string
	Decider Decider
	Trainer Trainer
}

// Bind inspects d once so callers never have to probe for training support.
func Bind(name string, d Decider) *Binding {
	if d == nil {
		return nil
	}
	b := &Binding{Name: name, Decider: d}
	if t, ok := d.(Trainer); ok {
		b.Trainer = t
	}
	return b
}

// Reward scores a step from the score change and whether it ended the game.
func Reward(prevScore, score int, terminal bool) float64 {
	r := StepPenalty
	if score > prevScore {
		r += FoodReward
	}
	if terminal {
		r += DeathPenalty
	}
	return r
}

// SafeDecide calls d.Decide and converts a panic into an error.
func SafeDecide(ctx context.Context, d Decider, obs engine.Observation) (a Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDeciderPanic, r)
		}
	}()
	return d.Decide(ctx, obs)
}

// SafeTrain calls t.Train and converts a panic into an error.
func SafeTrain(t Trainer, tr Transition) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDeciderPanic, r)
		}
	}()
	return t.Train(tr)
}

// NormalizePolicy lower-cases a policy name and checks that it is known.
func NormalizePolicy(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case PolicyAutopilot, PolicyRandom, PolicyQLearning:
		return n, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}
