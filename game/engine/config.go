package engine

import (
	"fmt"
	"math"
	"time"
)

// DefaultConfig returns the board used when a client supplies no settings.
func DefaultConfig() Config {
	return Config{
		Width:        DefaultGridWidth,
		Height:       DefaultGridHeight,
		TickInterval: DefaultTickInterval,
		StartLength:  DefaultStartLength,
	}
}

// ValidateConfig reports the first problem that would make a board unplayable.
func ValidateConfig(config Config) error {
	if config.Width < MinGridSize || config.Width > MaxGridSize {
		return fmt.Errorf("config validation: grid_width must be between %d and %d, got %d", MinGridSize, MaxGridSize, config.Width)
	}
	if config.Height < MinGridSize || config.Height > MaxGridSize {
		return fmt.Errorf("config validation: grid_height must be between %d and %d, got %d", MinGridSize, MaxGridSize, config.Height)
	}
	if config.TickInterval < MinTickInterval || config.TickInterval > MaxTickInterval {
		return fmt.Errorf("config validation: tick interval must be between %s and %s, got %s", MinTickInterval, MaxTickInterval, config.TickInterval)
	}
	if config.StartLength < 1 {
		return fmt.Errorf("config validation: start length must be positive, got %d", config.StartLength)
	}
	return nil
}

// Normalize replaces unusable fields with defaults and clamps the tick
// interval. The result always passes ValidateConfig.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.Width < MinGridSize || c.Width > MaxGridSize {
		c.Width = def.Width
	}
	if c.Height < MinGridSize || c.Height > MaxGridSize {
		c.Height = def.Height
	}
	c.TickInterval = ClampTick(c.TickInterval)
	if c.TickInterval > MaxTickInterval {
		c.TickInterval = MaxTickInterval
	}
	if c.StartLength < 1 {
		c.StartLength = def.StartLength
	}
	return c
}

// ClampTick floors a tick interval at MinTickInterval.
func ClampTick(d time.Duration) time.Duration {
	if d < MinTickInterval {
		return MinTickInterval
	}
	return d
}

// SecondsToTick converts a wire tick value in seconds to a clamped duration.
func SecondsToTick(seconds float64) time.Duration {
	if !(seconds > 0) {
		return MinTickInterval
	}
	if seconds > MaxTickInterval.Seconds() {
		return MaxTickInterval
	}
	return ClampTick(time.Duration(math.Round(seconds * float64(time.Second))))
}
