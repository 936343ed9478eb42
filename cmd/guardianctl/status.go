package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dcyfr/guardian/internal/supervisor"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running and its last heartbeat",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runStatus(); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus() error {
	paths, err := currentPaths()
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	data, err := os.ReadFile(paths.State)
	if os.IsNotExist(err) {
		fmt.Printf("%s daemon is not running (no state file at %s)\n", red("●"), paths.State)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading daemon state: %w", err)
	}

	var state supervisor.State
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parsing daemon state: %w", err)
	}

	age := time.Since(state.LastHeartbeat)
	statusIcon := green("●")
	if age > 3*time.Minute {
		statusIcon = yellow("●")
	}

	fmt.Printf("%s daemon running (PID %d)\n", statusIcon, state.PID)
	fmt.Printf("  Uptime:       %s\n", time.Duration(state.UptimeMs*int64(time.Millisecond)))
	fmt.Printf("  Heartbeat:    %s ago\n", age.Round(time.Second))
	fmt.Printf("  Memory:       %.1f MB\n", state.MemoryUsageMB)
	fmt.Printf("  Tasks queued: %d\n", state.TasksQueued)
	fmt.Printf("  Completed:    %d\n", state.TasksCompleted)
	fmt.Printf("  Scheduler:    %v\n", state.SchedulerActive)
	fmt.Printf("  Watcher:      %v\n", state.WatcherActive)
	return nil
}
