package workspace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverRejectsMissingDirectory(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestDiscoverDoesNotWalkUpToParent(t *testing.T) {
	dir := t.TempDir()
	root, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}

func TestForRootNamesEveryStateFile(t *testing.T) {
	p := ForRoot("/ws")
	assert.Equal(t, "/ws/.dcyfr", p.StateDir)
	assert.Equal(t, "/ws/.dcyfr/daemon.pid", p.PIDFile)
	assert.Equal(t, "/ws/.dcyfr/daemon.log", p.LogFile)
	assert.Equal(t, "/ws/.dcyfr/daemon-state.json", p.State)
	assert.Equal(t, "/ws/.dcyfr/queue.json", p.Queue)
	assert.Equal(t, "/ws/.dcyfr/schedules.json", p.Schedules)
	assert.Equal(t, "/ws/.dcyfr/health.json", p.Health)
	assert.Equal(t, "/ws/.dcyfr/health-history.json", p.History)
}
