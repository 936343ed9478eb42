package supervisor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned when a live instance already holds the
// PID file.
var ErrAlreadyRunning = fmt.Errorf("already-running")

// AcquirePIDFile enforces the single-instance invariant: if path names a
// live process, refuse with ErrAlreadyRunning (including the pid);
// otherwise treat it as stale, delete it, and write the current pid.
func AcquirePIDFile(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil {
			if isProcessAlive(pid) {
				return fmt.Errorf("%w: pid %d", ErrAlreadyRunning, pid)
			}
		}
		// Stale or unparsable — fall through and overwrite.
	}

	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReleasePIDFile removes the PID file. Tolerates an already-absent file.
func ReleasePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// isProcessAlive probes pid with signal 0. EPERM (process exists but we
// lack permission to signal it) is treated as alive — a fail-safe that
// avoids two instances racing to delete a live competitor's lock.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.EPERM {
		return true
	}
	return false
}
