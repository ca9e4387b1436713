package agent

import (
	"sync"

	"golang.org/x/exp/rand"

	"github.com/wricardo/mcp-training/snakeserver/game/engine"
)

// DefaultPolicy is a fixed policy that cannot fail. The scheduler uses one
// when a session has no decider and as the one-tick fallback when a decider
// errors.
type DefaultPolicy interface {
	Choose(obs engine.Observation) Action
}

// Autopilot keeps the current heading, honouring any turn the client queued.
type Autopilot struct{}

// Choose implements DefaultPolicy.
func (Autopilot) Choose(engine.Observation) Action {
	return Action{Kind: Hold}
}

// Random picks one of the four absolute directions uniformly. Reversals are
// dropped by the engine, so the snake carries on straight in that case.
type Random struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandom creates a random policy with its own seeded source.
func NewRandom(seed uint64) *Random {
	return &Random{rnd: rand.New(rand.NewSource(seed))}
}

// Choose implements DefaultPolicy.
func (r *Random) Choose(engine.Observation) Action {
	r.mu.Lock()
	d := engine.Direction(r.rnd.Intn(4))
	r.mu.Unlock()
	return Move(d)
}

// NewDefaultPolicy returns the fixed policy for name. Anything other than
// "random" yields the autopilot.
func NewDefaultPolicy(name string, seed uint64) DefaultPolicy {
	if name == PolicyRandom {
		return NewRandom(seed)
	}
	return Autopilot{}
}
