// Command guardianctl is the control surface for a running guardiand
// instance: it reads the daemon's state files and sends signals, never
// talking to the daemon process directly over IPC.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dcyfr/guardian/internal/workspace"
)

var rootCmd = &cobra.Command{
	Use:   "guardianctl",
	Short: "Control surface for the workspace guardian daemon",
}

var rootFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", ".", "workspace root directory")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "guardianctl:", err)
		os.Exit(1)
	}
}

// currentPaths resolves the workspace state paths from the --root flag.
func currentPaths() (workspace.Paths, error) {
	root, err := workspace.Discover(rootFlag)
	if err != nil {
		return workspace.Paths{}, err
	}
	return workspace.ForRoot(root), nil
}
