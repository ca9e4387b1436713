package engine

import (
	"time"
)

// Engine is the state machine for one snake board. It has no knowledge of
// sessions, goroutines or transports; callers serialize access.
type Engine struct {
	config  Config
	placer  FoodPlacer
	snake   []Cell
	heading Direction
	pending Direction
	food    Cell
	score   int
	frames  int
	running bool
}

// Option customizes an Engine at construction time.
type Option func(*Engine)

// WithFoodPlacer overrides the random food placement.
func WithFoodPlacer(p FoodPlacer) Option {
	return func(e *Engine) {
		e.placer = p
	}
}

// NewEngine creates an engine for config and resets it to the start layout.
func NewEngine(config Config, opts ...Option) (*Engine, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	e := &Engine{config: config}
	for _, opt := range opts {
		opt(e)
	}
	if e.placer == nil {
		e.placer = NewRandomPlacer(uint64(time.Now().UnixNano()))
	}

	e.Reset()
	return e, nil
}

// NewEngineWithDefaults creates an engine on the default 20x20 board.
func NewEngineWithDefaults(opts ...Option) *Engine {
	e, _ := NewEngine(DefaultConfig(), opts...)
	return e
}

// Reset puts the snake back at its start position heading right, places
// fresh food and zeroes score and frame count.
func (e *Engine) Reset() {
	length := e.config.StartLength
	head := Cell{X: e.config.Width / 2, Y: e.config.Height / 2}
	if length > head.X+1 {
		length = head.X + 1
	}

	e.snake = make([]Cell, 0, length)
	for i := 0; i < length; i++ {
		e.snake = append(e.snake, Cell{X: head.X - i, Y: head.Y})
	}

	e.heading = Right
	e.pending = Right
	e.score = 0
	e.frames = 0
	e.running = true

	if food, ok := e.placer.Place(e.config.Width, e.config.Height, e.occupied); ok {
		e.food = food
	} else {
		e.running = false
	}
}

// QueueTurn records a heading change for the next step. A reversal of the
// current heading is ignored and reported as false.
func (e *Engine) QueueTurn(d Direction) bool {
	if d < Up || d > Left {
		return false
	}
	if d == e.heading.Opposite() {
		return false
	}
	e.pending = d
	return true
}

// TurnLeft queues a 90° counter-clockwise turn from the current heading.
func (e *Engine) TurnLeft() {
	e.pending = e.heading.RotateLeft()
}

// TurnRight queues a 90° clockwise turn from the current heading.
func (e *Engine) TurnRight() {
	e.pending = e.heading.RotateRight()
}

// ApplyTurn queues a relative turn. Straight cancels any pending change.
func (e *Engine) ApplyTurn(t Turn) {
	e.pending = e.heading.Rotate(t)
}

// Step advances the board by one frame. It is a no-op once the game is over.
func (e *Engine) Step() StepResult {
	if !e.running {
		return StepResult{Skipped: true}
	}

	e.heading = e.pending
	e.frames++

	next := e.snake[0].next(e.heading)
	if !inBounds(next, e.config.Width, e.config.Height) {
		e.running = false
		return StepResult{Terminal: true, Cause: CauseWall}
	}

	// The tail moves out of the way this frame unless the snake grows, and
	// growth only happens on the food cell, which is never under the body.
	if containsCell(e.snake[:len(e.snake)-1], next) {
		e.running = false
		return StepResult{Terminal: true, Cause: CauseSelf}
	}

	if next != e.food {
		body := make([]Cell, 0, len(e.snake))
		body = append(body, next)
		body = append(body, e.snake[:len(e.snake)-1]...)
		e.snake = body
		return StepResult{}
	}

	body := make([]Cell, 0, len(e.snake)+1)
	body = append(body, next)
	body = append(body, e.snake...)
	e.snake = body
	e.score += ScoreIncrement

	food, ok := e.placer.Place(e.config.Width, e.config.Height, e.occupied)
	if !ok {
		e.running = false
		return StepResult{Ate: true, Terminal: true, Cause: CauseBoardFull}
	}
	e.food = food
	return StepResult{Ate: true}
}

// Snapshot serializes the current state. The result shares no memory with
// the engine.
func (e *Engine) Snapshot() Snapshot {
	snake := make([][2]int, len(e.snake))
	for i, c := range e.snake {
		snake[i] = c.Pair()
	}

	return Snapshot{
		Snake:      snake,
		Food:       e.food.Pair(),
		Score:      e.score,
		Running:    e.running,
		GameOver:   !e.running,
		GridWidth:  e.config.Width,
		GridHeight: e.config.Height,
		FrameCount: e.frames,
		Heading:    e.heading.String(),
	}
}

// Observe returns the snapshot together with the feature vector.
func (e *Engine) Observe() Observation {
	return Observation{
		Snapshot: e.Snapshot(),
		Features: e.FeatureVector(),
	}
}

// Running reports whether the game is still in progress.
func (e *Engine) Running() bool {
	return e.running
}

// Score returns the current score.
func (e *Engine) Score() int {
	return e.score
}

// FrameCount returns the number of steps since the last reset.
func (e *Engine) FrameCount() int {
	return e.frames
}

// Heading returns the direction applied on the last step.
func (e *Engine) Heading() Direction {
	return e.heading
}

// Pending returns the direction that the next step will apply.
func (e *Engine) Pending() Direction {
	return e.pending
}

// Head returns the head cell.
func (e *Engine) Head() Cell {
	return e.snake[0]
}

// Food returns the food cell.
func (e *Engine) Food() Cell {
	return e.food
}

// Body returns a copy of the snake cells, head first.
func (e *Engine) Body() []Cell {
	body := make([]Cell, len(e.snake))
	copy(body, e.snake)
	return body
}

// Length returns the number of snake cells.
func (e *Engine) Length() int {
	return len(e.snake)
}

// GetConfig returns the board configuration.
func (e *Engine) GetConfig() Config {
	return e.config
}

// TickInterval returns the pause between steps.
func (e *Engine) TickInterval() time.Duration {
	return e.config.TickInterval
}

func (e *Engine) occupied(c Cell) bool {
	return containsCell(e.snake, c)
}
