package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Send SIGTERM to the running daemon and wait for it to exit",
	Run: func(cmd *cobra.Command, args []string) {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		if err := runStop(timeout); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	},
}

func init() {
	stopCmd.Flags().Duration("timeout", 15*time.Second, "how long to wait for graceful shutdown before giving up")
	rootCmd.AddCommand(stopCmd)
}

func runStop(timeout time.Duration) error {
	paths, err := currentPaths()
	if err != nil {
		return err
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	data, err := os.ReadFile(paths.PIDFile)
	if os.IsNotExist(err) {
		fmt.Printf("%s no daemon running (no pid file at %s)\n", yellow("ℹ"), paths.PIDFile)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parsing pid file: %w", err)
	}

	fmt.Printf("sending SIGTERM to pid %d...\n", pid)
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			fmt.Printf("%s daemon stopped\n", green("✓"))
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not exit within %s", timeout)
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}
