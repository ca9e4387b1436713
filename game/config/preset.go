package config

import (
	"fmt"

	"github.com/wricardo/mcp-training/snakeserver/game/agent"
	"github.com/wricardo/mcp-training/snakeserver/game/engine"
)

// DefaultPresetName is always resolvable, with or without a file on disk.
const DefaultPresetName = "default"

// Preset is a named set of start_game defaults.
type Preset struct {
	Name         string  `yaml:"name" json:"name"`
	Description  string  `yaml:"description" json:"description"`
	GridWidth    int     `yaml:"grid_width" json:"grid_width"`
	GridHeight   int     `yaml:"grid_height" json:"grid_height"`
	StartingTick float64 `yaml:"starting_tick" json:"starting_tick"`
	StartLength  int     `yaml:"start_length,omitempty" json:"start_length,omitempty"`
	Policy       string  `yaml:"policy,omitempty" json:"policy,omitempty"`
}

// BuiltinDefault returns the preset used when nothing else is configured.
func BuiltinDefault() *Preset {
	return &Preset{
		Name:         DefaultPresetName,
		Description:  "20x20 board, 0.2s ticks",
		GridWidth:    engine.DefaultGridWidth,
		GridHeight:   engine.DefaultGridHeight,
		StartingTick: engine.DefaultTickInterval.Seconds(),
		StartLength:  engine.DefaultStartLength,
	}
}

// EngineConfig converts the preset into a normalized engine configuration.
func (p *Preset) EngineConfig() engine.Config {
	return engine.Config{
		Width:        p.GridWidth,
		Height:       p.GridHeight,
		TickInterval: engine.SecondsToTick(p.StartingTick),
		StartLength:  p.StartLength,
	}.Normalize()
}

// ValidatePreset checks that a preset describes a playable board.
func ValidatePreset(p *Preset) error {
	if p == nil {
		return fmt.Errorf("preset is nil")
	}
	if p.Name == "" {
		return fmt.Errorf("preset name is required")
	}
	if p.GridWidth < engine.MinGridSize || p.GridWidth > engine.MaxGridSize {
		return fmt.Errorf("grid_width must be between %d and %d, got %d", engine.MinGridSize, engine.MaxGridSize, p.GridWidth)
	}
	if p.GridHeight < engine.MinGridSize || p.GridHeight > engine.MaxGridSize {
		return fmt.Errorf("grid_height must be between %d and %d, got %d", engine.MinGridSize, engine.MaxGridSize, p.GridHeight)
	}
	if p.StartingTick <= 0 {
		return fmt.Errorf("starting_tick must be positive, got %v", p.StartingTick)
	}
	if p.StartLength < 0 {
		return fmt.Errorf("start_length cannot be negative")
	}
	if p.Policy != "" {
		if _, err := agent.NormalizePolicy(p.Policy); err != nil {
			return err
		}
	}
	return nil
}
