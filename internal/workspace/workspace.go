// Package workspace locates the workspace root and names the paths of
// every file the daemon persists under its state directory.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// StateDirName is the directory name holding all daemon state, always
// ignored by the file watcher.
const StateDirName = ".dcyfr"

// Paths names every file the daemon reads or writes under a workspace's
// state directory.
type Paths struct {
	Root      string
	StateDir  string
	PIDFile   string
	LogFile   string
	State     string
	Queue     string
	Schedules string
	Health    string
	History   string
}

// Discover resolves the workspace root. Unlike a VCS-style search, this
// only checks the given directory itself — it never walks up to parent
// directories, so a daemon started in the wrong directory fails fast
// rather than silently adopting an ancestor's state.
func Discover(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("workspace root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return abs, nil
}

// ForRoot builds the Paths for a given workspace root.
func ForRoot(root string) Paths {
	stateDir := filepath.Join(root, StateDirName)
	return Paths{
		Root:      root,
		StateDir:  stateDir,
		PIDFile:   filepath.Join(stateDir, "daemon.pid"),
		LogFile:   filepath.Join(stateDir, "daemon.log"),
		State:     filepath.Join(stateDir, "daemon-state.json"),
		Queue:     filepath.Join(stateDir, "queue.json"),
		Schedules: filepath.Join(stateDir, "schedules.json"),
		Health:    filepath.Join(stateDir, "health.json"),
		History:   filepath.Join(stateDir, "health-history.json"),
	}
}

// EnsureStateDir creates the state directory if it does not already
// exist.
func (p Paths) EnsureStateDir() error {
	return os.MkdirAll(p.StateDir, 0o755)
}
