// Package engine implements the snake board state machine.
//
// The engine package provides:
//   - Board configuration, validation and normalization
//   - Absolute (UP/DOWN/LEFT/RIGHT) and relative (straight/left/right) turns
//   - Step semantics: movement, wall and self collision, growth and scoring
//   - Pluggable food placement (random or a fixed sequence for tests)
//   - Snapshots for the wire and a feature vector for decision sources
//
// Step Semantics:
//
// Turns are queued and applied on the next Step. A turn that reverses the
// current heading is ignored. On each Step the pending heading is applied and
// the head advances one cell:
//
//  1. Off the board: the game ends, the snake is left unchanged.
//  2. Into the body (excluding the tail cell vacated this frame): the game ends.
//  3. Otherwise the head is prepended. On the food cell the score grows, the
//     tail is kept and new food is placed on a free cell; elsewhere the tail
//     is dropped.
//
// The frame counter advances on every Step that runs, including the one that
// ends the game. Once the game is over Step does nothing until Reset.
//
// Concurrency:
//
// An Engine is not safe for concurrent use. The session layer owns the lock.
//
// Usage:
//
//	eng, err := engine.NewEngine(engine.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	eng.QueueTurn(engine.Up)
//	res := eng.Step()
//	if res.Terminal {
//		fmt.Println("game over:", res.Cause)
//	}
//	snap := eng.Snapshot()
package engine
