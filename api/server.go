package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/wricardo/mcp-training/snakeserver/game/config"
	"github.com/wricardo/mcp-training/snakeserver/game/service"
	"github.com/wricardo/mcp-training/snakeserver/game/session"
)

// Server represents the REST API server
type Server struct {
	service service.GameService
	ws      http.HandlerFunc
	mcp     *server.MCPServer
	router  *mux.Router
	log     *zap.Logger
}

// Option configures optional endpoints
type Option func(*Server)

// WithWebSocket mounts the websocket upgrade handler at /ws.
func WithWebSocket(h http.HandlerFunc) Option {
	return func(s *Server) { s.ws = h }
}

// WithMCP mounts the MCP JSON-RPC endpoint at /mcp.
func WithMCP(m *server.MCPServer) Option {
	return func(s *Server) { s.mcp = m }
}

// WithLogger sets the request logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer creates a new API server
func NewServer(gameService service.GameService, opts ...Option) *Server {
	s := &Server{
		service: gameService,
		router:  mux.NewRouter(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// SetMCP mounts the MCP endpoint after construction. The MCP tools call back
// into this server, so they are usually built once its address is known.
func (s *Server) SetMCP(m *server.MCPServer) {
	s.mcp = m
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	s.router.HandleFunc("/ping", s.handlePing).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Sessions
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/start", s.handleStartGame).Methods("POST")
	api.HandleFunc("/sessions/{id}/turn", s.handleTurn).Methods("POST")

	// Presets
	api.HandleFunc("/presets", s.handleListPresets).Methods("GET")
	api.HandleFunc("/presets/{name}", s.handleGetPreset).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/mcp", s.handleMCP).Methods("POST")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, config.ErrPresetNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidDirection), errors.Is(err, config.ErrInvalidPreset):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

// Session Handlers

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	query := r.URL.Query()
	order := query.Get("order") // "asc" (default), "desc"
	if order != "desc" {
		order = "asc"
	}
	if query.Get("active") == "true" {
		filtered := sessions[:0]
		for _, info := range sessions {
			if info.Active {
				filtered = append(filtered, info)
			}
		}
		sessions = filtered
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		if order == "desc" {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	total := len(sessions)
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"total":    total,
		"order":    order,
		"sessions": sessions,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	info, err := s.service.GetSession(r.Context(), id)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.service.EndSession(r.Context(), id); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s ended", id),
	})
}

// decodeCommand reads an optional JSON object body.
func decodeCommand(r *http.Request) (map[string]any, error) {
	data := map[string]any{}
	if r.Body == nil {
		return data, nil
	}
	err := json.NewDecoder(r.Body).Decode(&data)
	if errors.Is(err, io.EOF) {
		return map[string]any{}, nil
	}
	return data, err
}

// handleStartGame starts a game for an existing connection, as if the client
// had sent start_game itself.
func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	data, err := decodeCommand(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	snap, err := s.service.StartSession(r.Context(), id, data)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	s.log.Info("game started over REST", zap.String("conn", id))
	respondJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	data, err := decodeCommand(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.service.Turn(r.Context(), id, data); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"message": "turn queued"})
}

// Preset Handlers

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.service.ListPresets(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, presets)
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	// Remove file extension if present
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")

	preset, err := s.service.GetPreset(r.Context(), name)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, preset)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ws == nil {
		http.Error(w, "websocket transport not enabled", http.StatusNotFound)
		return
	}
	s.ws(w, r)
}

// MCP Handler

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if s.mcp == nil {
		respondError(w, http.StatusNotFound, "mcp endpoint not enabled")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := s.mcp.HandleMessage(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	responseData, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(responseData)
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The upgrade needs the raw writer to hijack the connection.
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}
