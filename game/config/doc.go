// Package config manages start_game presets.
//
// The config package handles:
//   - Loading presets from YAML files
//   - Preset validation
//   - A built-in default that exists even without a preset directory
//   - Preset discovery and listing
//
// Preset Format:
//
// Presets are YAML files in the presets directory. The file name (without
// .yaml or .yml) is the preset id:
//
//	name: arena
//	description: Wide 29x19 board at 30ms ticks
//	grid_width: 29
//	grid_height: 19
//	starting_tick: 0.03
//	start_length: 3
//	policy: random
//
// A start_game command naming a preset gets these values first; explicit
// grid_width, grid_height and starting_tick fields then override them.
//
// Usage:
//
//	manager, err := config.NewManager("presets")
//	if err != nil {
//		return err
//	}
//	p, err := manager.Load("arena")
//	if err != nil {
//		p = manager.Default()
//	}
//	eng, err := engine.NewEngine(p.EngineConfig())
package config
