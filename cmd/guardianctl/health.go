package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dcyfr/guardian/internal/health"
	"github.com/dcyfr/guardian/internal/scanner"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show the latest health snapshot",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runHealth(); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth() error {
	paths, err := currentPaths()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(paths.Health)
	if os.IsNotExist(err) {
		fmt.Println("no health snapshot yet — the daemon has not completed a heartbeat cycle")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading health snapshot: %w", err)
	}

	var snap health.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parsing health snapshot: %w", err)
	}

	statusColor := statusColorFor(snap.Overall.Status)
	fmt.Printf("Overall: %s (%.1f)\n\n", statusColor(string(snap.Overall.Status)), snap.Overall.Score)

	ids := make([]string, 0, len(snap.Scanners))
	for id := range snap.Scanners {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	for _, id := range ids {
		c := snap.Scanners[scanner.ID(id)]
		fmt.Printf("  %-28s %s %.1f  (%d violations, %d warnings)\n",
			id, statusColorFor(c.Status)(string(c.Status)), c.Score, c.ViolationsCount, c.WarningsCount)
	}
	return nil
}

func statusColorFor(s health.Status) func(a ...interface{}) string {
	switch s {
	case health.StatusHealthy:
		return color.New(color.FgGreen).SprintFunc()
	case health.StatusDegraded:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgRed).SprintFunc()
	}
}
