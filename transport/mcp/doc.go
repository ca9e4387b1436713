// Package mcp exposes the snake server's sessions as Model Context Protocol
// tools.
//
// The Client is a thin proxy: every tool is a call against the REST API, so
// the same tools work in-process behind POST /mcp and from a separate
// stdio-mcp process pointed at a running server.
//
// Tools:
//   - list_sessions, get_session: observe sessions and render boards as text
//   - start_game, turn: steer a connected client's game
//   - end_session: tear a session down; its client still receives game_over
//   - list_presets: the start_game preset catalog
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8765")
//	server.ServeStdio(client.GetMCPServer())
package mcp
