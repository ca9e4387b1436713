package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mcp-training/snakeserver/game/config"
	"github.com/wricardo/mcp-training/snakeserver/game/engine"
	"github.com/wricardo/mcp-training/snakeserver/game/session"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Snake Session Server",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Snake Session Server - MCP Interface

This is a thin client that proxies all requests to the REST API server.

Every websocket connection owns one session. The server ticks each running
game on its own and streams snapshots to the connected client. These tools
let you observe and steer those sessions.

AVAILABLE TOOLS:
- list_sessions: List connected sessions
- get_session: Show one session with its board
- start_game: Start (or restart) a game for a connected session
- turn: Queue a turn (absolute direction or relative turn)
- end_session: End a session; its client receives game_over
- list_presets: List start_game presets

BOARD LEGEND: H head, o body, * food, . empty. Origin is top-left, y grows down.`),
	)

	c.registerTools()
}

func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all sessions, oldest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"active_only": map[string]interface{}{
					"type":        "boolean",
					"description": "Only list sessions with a running game",
				},
			},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details and the current board of a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session (connection) ID",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_game",
		Description: "Start or restart the game of a connected session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session (connection) ID",
				},
				"grid_width": map[string]interface{}{
					"type":        "integer",
					"description": "Board width (5-100)",
				},
				"grid_height": map[string]interface{}{
					"type":        "integer",
					"description": "Board height (5-100)",
				},
				"starting_tick": map[string]interface{}{
					"type":        "number",
					"description": "Seconds between ticks (minimum 0.005)",
				},
				"preset": map[string]interface{}{
					"type":        "string",
					"description": "Preset supplying defaults",
				},
				"policy": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"autopilot", "random", "qlearning"},
					"description": "Decision source driving the snake",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleStartGame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "turn",
		Description: "Queue a turn on a running game. Give either direction or turn.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session (connection) ID",
				},
				"direction": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"UP", "DOWN", "LEFT", "RIGHT"},
					"description": "Absolute heading",
				},
				"turn": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"straight", "left", "right"},
					"description": "Turn relative to the current heading",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleTurn)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "end_session",
		Description: "End a session. Its client receives game_over.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session (connection) ID",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleEndSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_presets",
		Description: "List start_game presets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListPresets)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

func sessionPath(args map[string]interface{}) (string, error) {
	id, _ := args["session_id"].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("session_id is required")
	}
	return "/api/sessions/" + url.PathEscape(id), nil
}

// Tool handlers

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/sessions"
	if active, _ := arguments(request)["active_only"].(bool); active {
		path += "?active=true"
	}

	var response struct {
		Count    int             `json:"count"`
		Sessions []*session.Info `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		b.WriteString("- " + formatSessionLine(s) + "\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var info session.Info
	if err := c.apiCall(ctx, "GET", path, nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSessionInfo(&info)), nil
}

func (c *Client) handleStartGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]interface{}{}
	for _, key := range []string{"grid_width", "grid_height", "starting_tick", "preset", "policy"} {
		if v, ok := args[key]; ok {
			body[key] = v
		}
	}

	var snap engine.Snapshot
	if err := c.apiCall(ctx, "POST", path+"/start", body, &snap); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Game started\n\n" + formatSnapshot(&snap)), nil
}

func (c *Client) handleTurn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]string{}
	if d, ok := args["direction"].(string); ok && d != "" {
		body["direction"] = d
	} else if t, ok := args["turn"].(string); ok && t != "" {
		body["turn"] = t
	} else {
		return mcp.NewToolResultError("direction or turn is required"), nil
	}

	if err := c.apiCall(ctx, "POST", path+"/turn", body, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Turn queued; it applies on the next tick."), nil
}

func (c *Client) handleEndSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var resp map[string]string
	if err := c.apiCall(ctx, "DELETE", path, nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(resp["message"]), nil
}

func (c *Client) handleListPresets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var presets []*config.Preset
	if err := c.apiCall(ctx, "GET", "/api/presets", nil, &presets); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Presets (%d):\n\n", len(presets))
	for _, p := range presets {
		fmt.Fprintf(&b, "- %s: %dx%d, tick %.3fs", p.Name, p.GridWidth, p.GridHeight, p.StartingTick)
		if p.Policy != "" {
			fmt.Fprintf(&b, ", policy %s", p.Policy)
		}
		if p.Description != "" {
			fmt.Fprintf(&b, " (%s)", p.Description)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

// Formatting

func formatSessionLine(s *session.Info) string {
	state := "idle"
	if s.Active {
		state = "running"
	}
	line := fmt.Sprintf("%s [%s] created %s", s.ID, state, s.CreatedAt.Format("15:04:05"))
	if s.Policy != "" {
		line += ", policy " + s.Policy
	}
	if s.Snapshot != nil {
		line += fmt.Sprintf(", score %d, frame %d", s.Snapshot.Score, s.Snapshot.FrameCount)
	}
	return line
}

func formatSessionInfo(s *session.Info) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", s.ID)
	fmt.Fprintf(&b, "Active: %v | Generation: %d", s.Active, s.Generation)
	if s.Scheduler != "" {
		fmt.Fprintf(&b, " | Scheduler: %s", s.Scheduler)
	}
	b.WriteString("\n")
	if s.Policy != "" || s.Preset != "" {
		fmt.Fprintf(&b, "Policy: %s | Preset: %s\n", s.Policy, s.Preset)
	}
	fmt.Fprintf(&b, "Created: %s\n\n", s.CreatedAt.Format("2006-01-02 15:04:05"))
	b.WriteString(formatSnapshot(s.Snapshot))
	return b.String()
}

func formatSnapshot(snap *engine.Snapshot) string {
	if snap == nil {
		return "No game started"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Score: %d | Frame: %d | Heading: %s | Length: %d\n\n",
		snap.Score, snap.FrameCount, snap.Heading, len(snap.Snake))

	grid := make([][]byte, snap.GridHeight)
	for y := range grid {
		grid[y] = bytes.Repeat([]byte{'.'}, snap.GridWidth)
	}
	put := func(cell [2]int, ch byte) {
		x, y := cell[0], cell[1]
		if y >= 0 && y < snap.GridHeight && x >= 0 && x < snap.GridWidth {
			grid[y][x] = ch
		}
	}
	put(snap.Food, '*')
	for i := len(snap.Snake) - 1; i >= 0; i-- {
		ch := byte('o')
		if i == 0 {
			ch = 'H'
		}
		put(snap.Snake[i], ch)
	}
	for _, row := range grid {
		b.Write(row)
		b.WriteByte('\n')
	}

	if snap.GameOver {
		b.WriteString("\nGAME OVER")
	}
	return b.String()
}
