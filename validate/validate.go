// Command validate checks the start_game preset YAML files in a directory
// (default ../presets). For each file it checks:
//   - YAML structure and the preset field ranges
//   - Policy names (autopilot, random, qlearning)
//   - Values the server silently adjusts (tick clamping, start length, file name)
//   - Playability: an autopilot smoke run on the preset's board ends cleanly
//     with the snake inside the board
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wricardo/mcp-training/snakeserver/game/agent"
	"github.com/wricardo/mcp-training/snakeserver/game/config"
	"github.com/wricardo/mcp-training/snakeserver/game/engine"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Name   string
	Valid  bool
	Errors []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) note(format string, args ...interface{}) {
	r.Errors = append(r.Errors, "✓ "+fmt.Sprintf(format, args...))
}

// validatePreset loads and validates a single preset file.
func validatePreset(filePath string) ValidationResult {
	base := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Name:   base,
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	preset, err := config.ParsePreset(base, data)
	if err != nil {
		result.fail("%v", err)
		return result
	}

	if preset.Name != base {
		result.note("name %q is replaced by the file name %q when loaded", preset.Name, base)
	}

	tick := time.Duration(preset.StartingTick * float64(time.Second))
	switch {
	case tick < engine.MinTickInterval:
		result.note("starting_tick %gs is clamped to %s", preset.StartingTick, engine.MinTickInterval)
	case tick > engine.MaxTickInterval:
		result.note("starting_tick %gs is clamped to %s", preset.StartingTick, engine.MaxTickInterval)
	}

	if maxLen := preset.GridWidth/2 + 1; preset.StartLength > maxLen {
		result.note("start_length %d is shortened to %d on a %d-wide board", preset.StartLength, maxLen, preset.GridWidth)
	}

	if preset.Policy != "" {
		if policy, _ := agent.NormalizePolicy(preset.Policy); policy == agent.PolicyQLearning {
			result.note("policy qlearning falls back to the server default when no learned policy is loaded")
		}
	}

	return smokeRun(preset, result)
}

// smokeRun plays the preset's board with the autopilot until the game ends
// and checks the snake never leaves the board.
func smokeRun(preset *config.Preset, result ValidationResult) ValidationResult {
	cfg := preset.EngineConfig()
	eng, err := engine.NewEngine(cfg, engine.WithFoodPlacer(engine.NewRandomPlacer(1)))
	if err != nil {
		result.fail("Engine rejected preset: %v", err)
		return result
	}

	limit := cfg.Width*cfg.Height + 1
	for i := 0; i < limit && eng.Running(); i++ {
		agent.Autopilot{}.Choose(eng.Observe()).Apply(eng)
		eng.Step()

		for _, c := range eng.Body() {
			if c.X < 0 || c.Y < 0 || c.X >= cfg.Width || c.Y >= cfg.Height {
				result.fail("Smoke run: snake left the board at (%d,%d) on frame %d", c.X, c.Y, eng.FrameCount())
				return result
			}
		}
	}

	if eng.Running() {
		result.fail("Smoke run: game still running after %d frames", limit)
		return result
	}
	result.note("Smoke run: %dx%d board, game over after %d frames", cfg.Width, cfg.Height, eng.FrameCount())
	return result
}

// validateDir validates every preset in dir and flags duplicate names.
func validateDir(dir string) ([]ValidationResult, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}

	seen := map[string]string{}
	results := make([]ValidationResult, 0, len(files))
	for _, file := range files {
		result := validatePreset(file)
		if other, dup := seen[result.Name]; dup {
			result.fail("Duplicate preset name %q (also %s)", result.Name, other)
		}
		seen[result.Name] = result.File
		results = append(results, result)
	}
	return results, nil
}

func main() {
	presetDir := "../presets"
	if len(os.Args) > 1 {
		presetDir = os.Args[1]
	}

	results, err := validateDir(presetDir)
	if err != nil {
		fmt.Printf("Error finding preset files: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Printf("No preset files found in %s\n", presetDir)
		os.Exit(1)
	}

	allValid := true
	for _, result := range results {
		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All presets are valid!")
	} else {
		fmt.Println("❌ Some presets have errors")
		os.Exit(1)
	}
}
