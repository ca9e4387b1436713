// Command analyze prints quick, human-readable heuristics about a stored
// Q-learning table: how much it has learned, which action it prefers, and
// states where the greedy action steers into a known danger.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/mcp-training/snakeserver/game/agent"
	"github.com/wricardo/mcp-training/snakeserver/game/engine"
)

// actionNames follows the learner's Q-value slots.
var actionNames = []string{"straight", "left", "right"}

// dangerFeature maps a Q-value slot to its danger feature index.
var dangerFeature = []int{0, 2, 1}

// StateValue is one table row ranked for output.
type StateValue struct {
	Key    string
	Best   int
	Value  float64
	Values []float64
}

// Summary is the analysis of one table.
type Summary struct {
	States      int
	Episodes    int
	Updates     int
	Preferred   []int
	Untrained   int
	Risky       []StateValue
	Top, Bottom []StateValue
}

func main() {
	cmd := &cli.Command{
		Name:  "analyze",
		Usage: "summarize a stored Q-learning table",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: "data", Usage: "policy directory", Sources: cli.EnvVars("POLICY_DIR")},
			&cli.StringFlag{Name: "name", Value: "shared", Usage: "table name"},
			&cli.IntFlag{Name: "top", Value: 5, Usage: "states to show at each end of the ranking"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, err := agent.NewFileStore(cmd.String("dir"))
			if err != nil {
				return err
			}
			data, err := store.Load(cmd.String("name"))
			if err != nil {
				return fmt.Errorf("load %s: %w", cmd.String("name"), err)
			}
			printSummary(os.Stdout, cmd.String("name"), analyze(data, int(cmd.Int("top"))))
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
}

func analyze(data agent.QTableData, top int) Summary {
	s := Summary{
		States:    len(data.Values),
		Episodes:  data.Episodes,
		Updates:   data.Updates,
		Preferred: make([]int, len(actionNames)),
	}

	ranked := make([]StateValue, 0, len(data.Values))
	for key, values := range data.Values {
		if len(values) != len(actionNames) {
			continue
		}
		if allZero(values) {
			s.Untrained++
			continue
		}
		best := 0
		for i, v := range values {
			if v > values[best] {
				best = i
			}
		}
		sv := StateValue{Key: key, Best: best, Value: values[best], Values: values}
		s.Preferred[best]++
		ranked = append(ranked, sv)

		if len(key) == engine.FeatureCount && key[dangerFeature[best]] == '1' {
			s.Risky = append(s.Risky, sv)
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Value != ranked[j].Value {
			return ranked[i].Value > ranked[j].Value
		}
		return ranked[i].Key < ranked[j].Key
	})
	sort.Slice(s.Risky, func(i, j int) bool { return s.Risky[i].Key < s.Risky[j].Key })

	if top > len(ranked) {
		top = len(ranked)
	}
	s.Top = ranked[:top]
	s.Bottom = ranked[len(ranked)-top:]
	return s
}

func allZero(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return false
		}
	}
	return true
}

// describeState decodes a state key back into its features.
func describeState(key string) string {
	if len(key) != engine.FeatureCount {
		return key
	}
	on := func(i int) bool { return key[i] == '1' }

	var danger []string
	for i, name := range []string{"straight", "right", "left"} {
		if on(i) {
			danger = append(danger, name)
		}
	}
	heading := "?"
	for i, name := range []string{"UP", "RIGHT", "DOWN", "LEFT"} {
		if on(3 + i) {
			heading = name
		}
	}
	var food []string
	for i, name := range []string{"left", "right", "up", "down"} {
		if on(7 + i) {
			food = append(food, name)
		}
	}

	if len(danger) == 0 {
		danger = []string{"none"}
	}
	if len(food) == 0 {
		food = []string{"here"}
	}
	return fmt.Sprintf("heading %s, danger %s, food %s", heading, strings.Join(danger, "+"), strings.Join(food, "+"))
}

func printSummary(w io.Writer, name string, s Summary) {
	fmt.Fprintf(w, "\n=== Analyzing %s ===\n", name)
	fmt.Fprintf(w, "States: %d (%d untrained)\n", s.States, s.Untrained)
	fmt.Fprintf(w, "Episodes: %d\n", s.Episodes)
	fmt.Fprintf(w, "Updates: %d\n", s.Updates)

	fmt.Fprintf(w, "Greedy preference:")
	for i, n := range s.Preferred {
		fmt.Fprintf(w, " %s=%d", actionNames[i], n)
	}
	fmt.Fprintln(w)

	printRanked(w, "Highest valued states", s.Top)
	printRanked(w, "Lowest valued states", s.Bottom)

	if len(s.Risky) > 0 {
		fmt.Fprintf(w, "⚠️  WARNING: %d states prefer a move into a known danger\n", len(s.Risky))
		for i, sv := range s.Risky {
			if i == 5 {
				fmt.Fprintf(w, "   ... and %d more\n", len(s.Risky)-5)
				break
			}
			fmt.Fprintf(w, "   %s -> %s\n", describeState(sv.Key), actionNames[sv.Best])
		}
	} else {
		fmt.Fprintf(w, "✅ No trained state prefers a move into a known danger\n")
	}
}

func printRanked(w io.Writer, title string, states []StateValue) {
	if len(states) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, sv := range states {
		fmt.Fprintf(w, "   %+.3f %-8s %s\n", sv.Value, actionNames[sv.Best], describeState(sv.Key))
	}
}
