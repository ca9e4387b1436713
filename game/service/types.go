package service

import (
	"errors"

	"github.com/wricardo/mcp-training/snakeserver/game/engine"
)

// Outbound event names.
const (
	EventGameState   = "game_state"
	EventGameOver    = "game_over"
	EventServerError = "server_error"
)

// Inbound command names.
const (
	CommandStartGame = "start_game"
	CommandTurn      = "turn"
)

// Phases carried in game_state events.
const (
	PhaseInit     = "init"
	PhaseTick     = "tick"
	PhaseGameOver = "game_over"
)

var (
	ErrNotRunning       = errors.New("no game running")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrUnknownCommand   = errors.New("unknown command")
)

// GameStatePayload is the body of a game_state event.
type GameStatePayload struct {
	Event   string          `json:"event" msgpack:"event"`
	Payload engine.Snapshot `json:"payload" msgpack:"payload"`
}

// GameOverPayload is the body of a game_over event.
type GameOverPayload struct {
	FinalScore int `json:"final_score" msgpack:"final_score"`
}

// ServerErrorPayload is the body of a server_error event.
type ServerErrorPayload struct {
	Message string `json:"message" msgpack:"message"`
}

// StartRequest is a start_game command after field validation. Zero values
// mean the field was absent or unusable. HasTick is set for any finite
// starting_tick, including zero and negatives, which clamp to the minimum.
type StartRequest struct {
	GridWidth    int
	GridHeight   int
	StartingTick float64
	HasTick      bool
	Preset       string
	Policy       string
}
