package agent

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/exp/rand"

	"github.com/wricardo/mcp-training/snakeserver/game/engine"
)

// Learning parameters for the tabular learner.
const (
	DefaultLearningRate = 0.1
	DefaultDiscount     = 0.9
	DefaultEpsilon      = 0.1
)

// relativeActions is the action space of the learner, indexed by Q-value slot.
var relativeActions = []engine.Turn{engine.Straight, engine.TurnLeft, engine.TurnRight}

// QTableData is the persisted form of a QTable.
type QTableData struct {
	Values   map[string][]float64 `json:"values"`
	Episodes int                  `json:"episodes"`
	Updates  int                  `json:"updates"`
}

// QTable is a state-to-action-value table shared by every learning session.
type QTable struct {
	mu       sync.RWMutex
	values   map[string][]float64
	episodes int
	updates  int
}

// NewQTable creates an empty table.
func NewQTable() *QTable {
	return &QTable{values: make(map[string][]float64)}
}

// Values returns a copy of the action values for state.
func (q *QTable) Values(state string) []float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]float64, len(relativeActions))
	copy(out, q.values[state])
	return out
}

// Update applies one Q-learning backup and returns the new value.
func (q *QTable) Update(state string, action int, reward float64, next string, terminal bool, lr, discount float64) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	row := q.row(state)
	target := reward
	if !terminal {
		target += discount * maxOf(q.values[next])
	}
	row[action] += lr * (target - row[action])
	q.updates++
	if terminal {
		q.episodes++
	}
	return row[action]
}

func (q *QTable) row(state string) []float64 {
	row, ok := q.values[state]
	if !ok {
		row = make([]float64, len(relativeActions))
		q.values[state] = row
	}
	return row
}

// States returns the number of distinct states seen.
func (q *QTable) States() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.values)
}

// Episodes returns the number of finished games the table learned from.
func (q *QTable) Episodes() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.episodes
}

// Export returns a deep copy of the table.
func (q *QTable) Export() QTableData {
	q.mu.RLock()
	defer q.mu.RUnlock()

	values := make(map[string][]float64, len(q.values))
	for k, v := range q.values {
		values[k] = append([]float64(nil), v...)
	}
	return QTableData{Values: values, Episodes: q.episodes, Updates: q.updates}
}

// Import replaces the table contents. Rows with the wrong width are skipped.
func (q *QTable) Import(data QTableData) {
	values := make(map[string][]float64, len(data.Values))
	for k, v := range data.Values {
		if len(v) != len(relativeActions) {
			continue
		}
		values[k] = append([]float64(nil), v...)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.values = values
	q.episodes = data.Episodes
	q.updates = data.Updates
}

// StateKey encodes a feature vector as a compact table key.
func StateKey(features []float64) string {
	var b strings.Builder
	for _, f := range features {
		b.WriteString(strconv.Itoa(int(f)))
	}
	return b.String()
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	best := values[0]
	for _, v := range values[1:] {
		if v > best {
			best = v
		}
	}
	return best
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// QLearner is an epsilon-greedy decider that trains a shared QTable.
// It implements both Decider and Trainer.
type QLearner struct {
	Table        *QTable
	LearningRate float64
	Discount     float64
	Epsilon      float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewQLearner creates a learner over table with the default parameters.
func NewQLearner(table *QTable, seed uint64) *QLearner {
	if table == nil {
		table = NewQTable()
	}
	return &QLearner{
		Table:        table,
		LearningRate: DefaultLearningRate,
		Discount:     DefaultDiscount,
		Epsilon:      DefaultEpsilon,
		rnd:          rand.New(rand.NewSource(seed)),
	}
}

// Decide implements Decider.
func (l *QLearner) Decide(ctx context.Context, obs engine.Observation) (Action, error) {
	if err := ctx.Err(); err != nil {
		return Action{}, err
	}

	l.mu.Lock()
	explore := l.rnd.Float64() < l.Epsilon
	pick := l.rnd.Intn(len(relativeActions))
	l.mu.Unlock()

	if !explore {
		pick = argmax(l.Table.Values(StateKey(obs.Features)))
	}
	return Steer(relativeActions[pick]), nil
}

// Train implements Trainer. Actions outside the relative vocabulary are ignored.
func (l *QLearner) Train(t Transition) error {
	if t.Action.Kind != Relative {
		return nil
	}
	idx := -1
	for i, turn := range relativeActions {
		if turn == t.Action.Turn {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	l.Table.Update(StateKey(t.State.Features), idx, t.Reward, StateKey(t.NextState.Features), t.Terminal, l.LearningRate, l.Discount)
	return nil
}
