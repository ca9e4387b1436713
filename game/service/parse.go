package service

import (
	"math"
	"strings"

	"github.com/wricardo/mcp-training/snakeserver/game/engine"
)

// ParseStartRequest picks the known start_game fields out of a decoded
// command. Fields of the wrong type are ignored.
func ParseStartRequest(data map[string]any) StartRequest {
	var req StartRequest
	if data == nil {
		return req
	}
	if v, ok := intField(data["grid_width"]); ok && validGrid(v) {
		req.GridWidth = v
	}
	if v, ok := intField(data["grid_height"]); ok && validGrid(v) {
		req.GridHeight = v
	}
	if v, ok := floatField(data["starting_tick"]); ok {
		req.StartingTick = v
		req.HasTick = true
	}
	if v, ok := data["preset"].(string); ok {
		req.Preset = strings.TrimSpace(v)
	}
	if v, ok := data["policy"].(string); ok {
		req.Policy = strings.TrimSpace(v)
	}
	return req
}

func validGrid(v int) bool {
	return v >= engine.MinGridSize && v <= engine.MaxGridSize
}

// ignoredFields names the start_game fields that were sent but not used.
func ignoredFields(data map[string]any, req StartRequest) []string {
	var out []string
	if _, sent := data["grid_width"]; sent && req.GridWidth == 0 {
		out = append(out, "grid_width")
	}
	if _, sent := data["grid_height"]; sent && req.GridHeight == 0 {
		out = append(out, "grid_height")
	}
	if _, sent := data["starting_tick"]; sent && !req.HasTick {
		out = append(out, "starting_tick")
	}
	return out
}

// intField accepts any integer kind and integral floats. JSON decodes every
// number as float64; msgpack keeps the sender's integer width.
func intField(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return clampInt64(n)
	case uint:
		return clampUint64(uint64(n))
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return clampUint64(uint64(n))
	case uint64:
		return clampUint64(n)
	case float32:
		return integralFloat(float64(n))
	case float64:
		return integralFloat(n)
	}
	return 0, false
}

func clampInt64(n int64) (int, bool) {
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, false
	}
	return int(n), true
}

func clampUint64(n uint64) (int, bool) {
	if n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

func integralFloat(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

func floatField(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case float32:
		return floatField(float64(n))
	}
	if i, ok := intField(v); ok {
		return float64(i), true
	}
	return 0, false
}

// parseTurn reads a turn command. "direction" carries the absolute
// vocabulary, "turn" the relative one.
func parseTurn(data map[string]any) (func(*engine.Engine) bool, bool) {
	if raw, ok := data["direction"].(string); ok {
		if d, ok := engine.ParseDirection(raw); ok {
			return func(e *engine.Engine) bool { return e.QueueTurn(d) }, true
		}
		return nil, false
	}
	if raw, ok := data["turn"].(string); ok {
		if t, ok := engine.ParseTurn(raw); ok {
			return func(e *engine.Engine) bool {
				e.ApplyTurn(t)
				return true
			}, true
		}
	}
	return nil, false
}
