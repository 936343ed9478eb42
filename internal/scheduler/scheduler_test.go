package scheduler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcyfr/guardian/internal/bus"
	"github.com/dcyfr/guardian/internal/queue"
	"github.com/dcyfr/guardian/internal/scanner"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []call
}

type call struct {
	scanner  scanner.ID
	priority queue.Priority
}

func (f *fakeEnqueuer) Enqueue(id scanner.ID, source queue.Source, priority queue.Priority, files []string, options map[string]any) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{scanner: id, priority: priority})
	return "task", false
}

func (f *fakeEnqueuer) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]call, len(f.calls))
	copy(out, f.calls)
	return out
}

func TestStartCatchesUpOverdueEntries(t *testing.T) {
	fe := &fakeEnqueuer{}
	past := time.Now().Add(-2 * time.Hour)
	s := New(Config{
		Defaults: []*Entry{
			{ID: "a", Scanner: "scan-a", IntervalMs: time.Hour.Milliseconds(), Enabled: true, LastRun: &past},
		},
		Enqueuer: fe,
		Bus:      bus.New(),
	})
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return len(fe.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, queue.Low, fe.snapshot()[0].priority)
}

func TestStartDoesNotCatchUpRecentEntries(t *testing.T) {
	fe := &fakeEnqueuer{}
	recent := time.Now()
	s := New(Config{
		Defaults: []*Entry{
			{ID: "a", Scanner: "scan-a", IntervalMs: time.Hour.Milliseconds(), Enabled: true, LastRun: &recent},
		},
		Enqueuer: fe,
		Bus:      bus.New(),
	})
	s.Start()
	defer s.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, fe.snapshot())
}

func TestSetEnabledArmsAndCancels(t *testing.T) {
	fe := &fakeEnqueuer{}
	s := New(Config{
		Defaults: []*Entry{
			{ID: "a", Scanner: "scan-a", IntervalMs: int64(5 * time.Millisecond / time.Millisecond), Enabled: false},
		},
		Enqueuer: fe,
		Bus:      bus.New(),
	})
	s.Start()
	defer s.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, fe.snapshot(), "disabled entry should never fire")

	require.NoError(t, s.SetEnabled("a", true))
	require.Eventually(t, func() bool { return len(fe.snapshot()) > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.SetEnabled("a", false))
	n := len(fe.snapshot())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(fe.snapshot()), "disabling must cancel the armed timer")
}

func TestReloadPicksUpPersistedOverrides(t *testing.T) {
	fe := &fakeEnqueuer{}
	dir := t.TempDir()
	persistPath := filepath.Join(dir, "schedules.json")
	s := New(Config{
		Defaults: []*Entry{
			{ID: "a", Scanner: "scan-a", IntervalMs: time.Hour.Milliseconds(), Enabled: false},
		},
		Enqueuer:    fe,
		Bus:         bus.New(),
		PersistPath: persistPath,
	})
	s.Start()
	defer s.Stop()
	assert.Empty(t, fe.snapshot(), "disabled entry should never fire before reload")

	entries := s.Entries()
	entries[0].Enabled = true
	raw, err := json.MarshalIndent(entries, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(persistPath, raw, 0o644))

	s.Reload()

	reloaded := s.Entries()
	require.Len(t, reloaded, 1)
	assert.True(t, reloaded[0].Enabled, "reload must pick up the persisted override")
}

func TestPersistenceFixpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.json")
	fe := &fakeEnqueuer{}
	now := time.Now()
	s1 := New(Config{
		Defaults: []*Entry{
			{ID: "a", Scanner: "scan-a", IntervalMs: time.Hour.Milliseconds(), Enabled: true, LastRun: &now},
		},
		Enqueuer:    fe,
		Bus:         bus.New(),
		PersistPath: path,
	})
	s1.Start()
	require.NoError(t, s1.SetEnabled("a", true)) // force a persist even with no catch-up
	s1.Stop()

	first, err := readFile(path)
	require.NoError(t, err)

	s2 := New(Config{
		Defaults: []*Entry{
			{ID: "a", Scanner: "scan-a", IntervalMs: time.Hour.Milliseconds(), Enabled: true},
		},
		Enqueuer:    fe,
		Bus:         bus.New(),
		PersistPath: path,
	})
	s2.Start()
	require.NoError(t, s2.SetEnabled("a", true))
	s2.Stop()

	second, err := readFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNewDefaultsAppearRemovedDefaultsVanish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.json")
	fe := &fakeEnqueuer{}
	now := time.Now()
	s1 := New(Config{
		Defaults: []*Entry{
			{ID: "old", Scanner: "scan-old", IntervalMs: time.Hour.Milliseconds(), Enabled: true, LastRun: &now},
		},
		Enqueuer:    fe,
		Bus:         bus.New(),
		PersistPath: path,
	})
	s1.Start()
	require.NoError(t, s1.SetEnabled("old", true))
	s1.Stop()

	s2 := New(Config{
		Defaults: []*Entry{
			{ID: "new", Scanner: "scan-new", IntervalMs: time.Hour.Milliseconds(), Enabled: true, LastRun: &now},
		},
		Enqueuer:    fe,
		Bus:         bus.New(),
		PersistPath: path,
	})
	s2.Start()
	defer s2.Stop()

	entries := s2.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].ID)
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}
