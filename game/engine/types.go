package engine

import (
	"strings"
	"time"
)

// Direction is an absolute heading on the board.
type Direction int

const (
	Up Direction = iota
	Right
	Down
	Left
)

// Turn is a heading change relative to the current direction of travel.
type Turn int

const (
	Straight Turn = iota
	TurnLeft
	TurnRight
)

const (
	// Validation constants
	MinGridSize = 5
	MaxGridSize = 100

	DefaultGridWidth    = 20
	DefaultGridHeight   = 20
	DefaultStartLength  = 3
	DefaultTickInterval = 200 * time.Millisecond

	// MinTickInterval keeps a zero or negative tick from turning the
	// scheduler into a busy loop.
	MinTickInterval = 5 * time.Millisecond
	MaxTickInterval = time.Minute

	ScoreIncrement = 1
)

// Cell is a single board coordinate.
type Cell struct {
	X int
	Y int
}

// Pair returns the cell in its wire form [x, y].
func (c Cell) Pair() [2]int {
	return [2]int{c.X, c.Y}
}

// Config holds the per-session board settings.
type Config struct {
	Width        int
	Height       int
	TickInterval time.Duration
	StartLength  int
}

// Cause describes why a step ended the game.
type Cause string

const (
	CauseNone      Cause = ""
	CauseWall      Cause = "wall"
	CauseSelf      Cause = "self"
	CauseBoardFull Cause = "board_full"
)

// StepResult reports what a single Step did.
type StepResult struct {
	Skipped  bool  // engine was already stopped; nothing changed
	Ate      bool  // head entered the food cell
	Terminal bool  // this step ended the game
	Cause    Cause // set when Terminal
}

// Snapshot is the transport-ready view of an engine at one point in time.
type Snapshot struct {
	Snake      [][2]int `json:"snake" msgpack:"snake"`
	Food       [2]int   `json:"food" msgpack:"food"`
	Score      int      `json:"score" msgpack:"score"`
	Running    bool     `json:"running" msgpack:"running"`
	GameOver   bool     `json:"game_over" msgpack:"game_over"`
	GridWidth  int      `json:"grid_width" msgpack:"grid_width"`
	GridHeight int      `json:"grid_height" msgpack:"grid_height"`
	FrameCount int      `json:"frame_count" msgpack:"frame_count"`
	Heading    string   `json:"heading" msgpack:"heading"`
}

// Observation is what a decision source sees before choosing an action.
type Observation struct {
	Snapshot Snapshot
	Features []float64
}

// String returns the upper-case wire name of the direction.
func (d Direction) String() string {
	switch d {
	case Up:
		return "UP"
	case Right:
		return "RIGHT"
	case Down:
		return "DOWN"
	case Left:
		return "LEFT"
	default:
		return "UNKNOWN"
	}
}

// String returns the lower-case wire name of the turn.
func (t Turn) String() string {
	switch t {
	case Straight:
		return "straight"
	case TurnLeft:
		return "left"
	case TurnRight:
		return "right"
	default:
		return "unknown"
	}
}

// ParseDirection accepts absolute direction names in any case.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up, true
	case "right":
		return Right, true
	case "down":
		return Down, true
	case "left":
		return Left, true
	}
	return 0, false
}

// ParseTurn accepts relative turn names in any case. "left" and "right" are
// ambiguous with ParseDirection; callers decide which vocabulary to try first.
func ParseTurn(s string) (Turn, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "straight", "forward", "none":
		return Straight, true
	case "left":
		return TurnLeft, true
	case "right":
		return TurnRight, true
	}
	return 0, false
}
