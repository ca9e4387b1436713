// Package websocket provides the WebSocket transport for the snake server.
//
// The package uses a hub-and-spoke model where a central Hub tracks every
// connection by a generated id. Each connection runs a read goroutine that
// decodes inbound frames and hands them to the Handler, and a write
// goroutine that drains a buffered send channel and keeps the connection
// alive with pings.
//
// Message Protocol:
//
// Every frame in either direction is {"event": name, "data": payload}.
// Clients choose the encoding when connecting:
//   - /ws or /ws?encoding=json: JSON text frames
//   - /ws?encoding=msgpack: MessagePack binary frames
//
// Inbound events are start_game and turn. Outbound events are game_state,
// game_over and server_error.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	svc := service.NewGameService(ctx, registry, hub, opts)
//	hub.SetHandler(svc)
//	router.HandleFunc("/ws", hub.ServeWS)
//
// Emit never blocks. A client that cannot keep up with its send buffer is
// disconnected.
package websocket
