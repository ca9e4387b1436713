// Package service runs the session lifecycle and the per-session tick loop.
//
// The service package implements:
//   - Connection lifecycle handlers (Connect, Disconnect, EndSession)
//   - Command handlers (StartGame, Turn) with lenient field parsing
//   - One tick scheduler goroutine per started game
//   - Outbound events through a transport-neutral Emitter
//
// Events:
//
//	game_state   {event: "init"|"tick"|"game_over", payload: <snapshot>}
//	game_over    {final_score}
//	server_error {message}
//
// Every game emits init, then ticks in frame order, then game_state/game_over
// followed by game_over, in that order and nothing after. An unexpected
// failure inside the loop replaces the terminal pair with one server_error.
//
// Scheduler States:
//
//	STARTING -> RUNNING -> STOPPING -> STOPPED
//
// The scheduler keeps only the connection id and session generation. Each
// RUNNING iteration looks the session up; a missing session, a cleared active
// flag or a finished engine moves it to STOPPING. A newer generation means the
// client restarted, and the old scheduler stops without emitting anything.
// Cancellation is cooperative and takes at most one tick interval; cancelling
// the service context cuts the sleep short.
//
// Decision Sources:
//
// A session may carry a learned decision source. Its errors and panics are
// recovered and the tick falls back to the session's default policy. With
// Options.MaxDeciderFailures set, that many consecutive failures detach the
// decision source for the rest of the game.
//
// Usage:
//
//	svc := service.NewGameService(ctx, session.NewRegistry(), hub, service.Options{
//		Logger:  logger,
//		Presets: presets,
//	})
//	_ = svc.Connect(ctx, connID)
//	_, _ = svc.StartGame(ctx, connID, map[string]any{"grid_width": 29.0, "starting_tick": 0.03})
//	...
//	cancel()
//	svc.Wait()
package service
