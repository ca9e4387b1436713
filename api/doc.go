// Package api provides the HTTP surface of the snake server.
//
// Endpoints:
//
// Liveness:
//   - GET /ping - {"message":"pong"}, independent of session state
//
// Sessions (one per websocket connection, keyed by connection id):
//   - GET /api/sessions - List sessions (?order=asc|desc, ?limit=N, ?active=true)
//   - GET /api/sessions/{id} - Session metadata and current board
//   - DELETE /api/sessions/{id} - End a session; its client gets game_over
//   - POST /api/sessions/{id}/start - Start a game for a connected client
//   - POST /api/sessions/{id}/turn - Queue a turn ({"direction":"UP"} or {"turn":"left"})
//
// Presets:
//   - GET /api/presets - List start_game presets
//   - GET /api/presets/{name} - One preset
//
// Transports:
//   - GET /ws - WebSocket upgrade (?encoding=json|msgpack)
//   - POST /mcp - MCP JSON-RPC endpoint
package api
