package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// scanCmd is a deliberately minimal placeholder: triggering an ad hoc
// scan from the CLI would require an IPC channel into the running
// daemon, which is out of scope here. Use the daemon's schedule/watch
// paths to run scanners; this command only documents the intended shape.
var scanCmd = &cobra.Command{
	Use:   "scan [scanner-id]",
	Short: "Request an ad hoc scan (not yet wired to a running daemon)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stderr, "guardianctl scan: no IPC channel to a running daemon yet; use schedules.yaml or the file watcher")
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
