// Package session provides the per-connection session and the registry that
// owns every session in the process.
//
// The session package implements:
//   - Thread-safe session storage keyed by connection id
//   - Restart by overwrite, tracked with a monotonically increasing generation
//   - Per-session locking for the engine and decision source
//
// Core Types:
//
// Registry maps connection ids to sessions. It is the only shared mutable map
// in the server. Session holds one engine, an optional decision source and the
// active flag that the tick scheduler polls.
//
// Generations:
//
// Create always replaces the existing entry and hands out a new generation.
// A scheduler remembers the id and generation it was launched for and looks
// the session up on every tick with Lookup. ErrSessionNotFound means the
// connection went away; ErrSessionReplaced means a newer game took over.
//
// Concurrency:
//
// The registry lock is held only for map access. Each session has its own
// mutex; With runs a function under it. Sessions never touch each other.
//
// Usage:
//
//	registry := session.NewRegistry()
//	sess, _ := registry.Create(connID)
//	sess.Start(eng, nil, agent.Autopilot{}, "autopilot", "")
//
//	sess, err := registry.Lookup(connID, generation)
//	if err != nil {
//		return err
//	}
//	_ = sess.With(func(st *session.State) error {
//		st.Engine.Step()
//		return nil
//	})
package session
