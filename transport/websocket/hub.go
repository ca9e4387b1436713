package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Outbound frames buffered per client before it is dropped.
	sendBuffer = 256
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrMalformedFrame    = errors.New("malformed frame")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler receives connection lifecycle events and inbound commands. Calls
// for one connection are made from that connection's read goroutine.
type Handler interface {
	Connect(ctx context.Context, connID string) error
	Disconnect(ctx context.Context, connID string) error
	HandleCommand(ctx context.Context, connID, command string, data map[string]any) error
}

// Client is one websocket connection
type Client struct {
	id    string
	hub   *Hub
	conn  *websocket.Conn
	codec Codec

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// ID returns the connection id
func (c *Client) ID() string { return c.id }

// Hub tracks every open connection by id
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	handler Handler
	log     *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		log:     logger,
	}
}

// SetHandler installs the command handler. Call it before serving.
func (h *Hub) SetHandler(handler Handler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

// Count returns the number of open connections
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:    uuid.NewString(),
		hub:   h,
		conn:  conn,
		codec: CodecFor(r.URL.Query().Get("encoding")),
		send:  make(chan []byte, sendBuffer),
	}
	h.register(client)

	if handler := h.getHandler(); handler != nil {
		if err := handler.Connect(r.Context(), client.id); err != nil {
			h.log.Error("connect handler failed", zap.String("conn", client.id), zap.Error(err))
			h.unregister(client)
			conn.Close()
			return
		}
	}

	go client.writePump()
	go client.readPump()
}

// Emit encodes one event and queues it for the connection without blocking.
// A client whose buffer is full is dropped.
func (h *Hub) Emit(connID, event string, payload any) error {
	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}

	data, err := client.codec.Encode(Frame{Event: event, Data: payload})
	if err != nil {
		return err
	}

	queued, open := client.enqueue(data)
	if !open {
		return ErrConnectionClosed
	}
	if !queued {
		h.log.Warn("send buffer full, dropping client", zap.String("conn", connID))
		h.unregister(client)
		client.conn.Close()
		return ErrConnectionClosed
	}
	return nil
}

func (h *Hub) getHandler() Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Info("client registered",
		zap.String("conn", client.id),
		zap.String("encoding", client.codec.Name()),
		zap.Int("total_clients", total))
}

// unregister removes the client and closes its send channel. Safe to call
// more than once.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if h.clients[client.id] == client {
		delete(h.clients, client.id)
	}
	remaining := len(h.clients)
	h.mu.Unlock()

	if client.close() {
		h.log.Info("client unregistered", zap.String("conn", client.id), zap.Int("remaining_clients", remaining))
	}
}

// enqueue reports whether the frame was queued and whether the client is
// still open.
func (c *Client) enqueue(data []byte) (queued, open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, false
	}
	select {
	case c.send <- data:
		return true, true
	default:
		return false, true
	}
}

func (c *Client) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

// sendError queues a server_error frame for this client.
func (c *Client) sendError(msg string) {
	data, err := c.codec.Encode(Frame{Event: "server_error", Data: map[string]string{"message": msg}})
	if err != nil {
		return
	}
	c.enqueue(data)
}

// readPump decodes inbound frames and hands them to the handler in order.
func (c *Client) readPump() {
	log := c.hub.log.With(zap.String("conn", c.id))
	ctx := context.Background()

	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		if handler := c.hub.getHandler(); handler != nil {
			if err := handler.Disconnect(ctx, c.id); err != nil {
				log.Debug("disconnect handler", zap.Error(err))
			}
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		event, data, err := c.codec.Decode(msg)
		if err != nil || event == "" {
			log.Debug("dropping malformed frame", zap.Error(err))
			c.sendError(ErrMalformedFrame.Error())
			continue
		}

		handler := c.hub.getHandler()
		if handler == nil {
			continue
		}
		if err := handler.HandleCommand(ctx, c.id, event, data); err != nil {
			log.Debug("command rejected", zap.String("event", event), zap.Error(err))
		}
	}
}

// writePump writes queued frames and pings to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per message: binary codecs cannot be newline-joined.
			if err := c.conn.WriteMessage(c.codec.MessageType(), message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
