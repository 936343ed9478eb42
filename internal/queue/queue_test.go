package queue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcyfr/guardian/internal/bus"
	"github.com/dcyfr/guardian/internal/scanner"
)

type fakeScanner struct {
	id    scanner.ID
	delay time.Duration
	run   func(scanner.Context) (scanner.Result, error)
}

func (s fakeScanner) ID() scanner.ID                 { return s.id }
func (s fakeScanner) Name() string                   { return string(s.id) }
func (s fakeScanner) Description() string            { return "fake" }
func (s fakeScanner) Category() scanner.Category     { return scanner.CategoryCleanup }
func (s fakeScanner) Projects() []string              { return nil }
func (s fakeScanner) Scan(c scanner.Context) (scanner.Result, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.run != nil {
		return s.run(c)
	}
	return scanner.Result{Scanner: s.id, Status: scanner.StatusPass}, nil
}

func newTestQueue(t *testing.T, maxConcurrent int) *Queue {
	t.Helper()
	reg := scanner.NewRegistry()
	q := New(Config{
		Registry:      reg,
		Bus:           bus.New(),
		WorkspaceRoot: t.TempDir(),
		PersistPath:   filepath.Join(t.TempDir(), "queue.json"),
		TTL:           time.Hour,
		MaxConcurrent: maxConcurrent,
		PollInterval:  5 * time.Millisecond,
	})
	return q
}

func TestEnqueueCoalescesDuplicateScannerAndFileSet(t *testing.T) {
	q := newTestQueue(t, 1)
	id1, coalesced1 := q.Enqueue("tlp-headers", SourceCLI, Normal, nil, nil)
	require.False(t, coalesced1)
	require.NotEmpty(t, id1)

	id2, coalesced2 := q.Enqueue("tlp-headers", SourceCLI, Normal, nil, nil)
	assert.True(t, coalesced2)
	assert.Empty(t, id2)
	assert.Equal(t, 1, q.Size())
}

func TestEnqueueDistinguishesAbsentFromPresentFiles(t *testing.T) {
	q := newTestQueue(t, 1)
	_, coalesced1 := q.Enqueue("s", SourceCLI, Normal, nil, nil)
	require.False(t, coalesced1)

	_, coalesced2 := q.Enqueue("s", SourceCLI, Normal, []string{"a.go"}, nil)
	assert.False(t, coalesced2, "absent vs present file set must not coalesce")
	assert.Equal(t, 2, q.Size())
}

func TestPriorityOrder(t *testing.T) {
	reg := scanner.NewRegistry()
	var order []string
	mk := func(id scanner.ID) scanner.Scanner {
		return fakeScanner{id: id, run: func(scanner.Context) (scanner.Result, error) {
			order = append(order, string(id))
			return scanner.Result{Scanner: id, Status: scanner.StatusPass}, nil
		}}
	}
	require.NoError(t, reg.Register(mk("a")))
	require.NoError(t, reg.Register(mk("b")))
	require.NoError(t, reg.Register(mk("c")))

	q := New(Config{
		Registry:      reg,
		Bus:           bus.New(),
		WorkspaceRoot: t.TempDir(),
		PersistPath:   filepath.Join(t.TempDir(), "queue.json"),
		MaxConcurrent: 1,
		PollInterval:  5 * time.Millisecond,
	})

	q.Enqueue("a", SourceCLI, Normal, nil, nil)
	q.Enqueue("b", SourceCLI, High, nil, nil)
	q.Enqueue("c", SourceCLI, Critical, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.Eventually(t, func() bool {
		return len(order) == 3
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"c", "b", "a"}, order)
}

func TestTTLExpiration(t *testing.T) {
	q := newTestQueue(t, 1)
	q.ttl = 10 * time.Millisecond

	q.mu.Lock()
	q.queued = append(q.queued, &Task{
		ID:        "stale",
		Scanner:   "x",
		Status:    StatusQueued,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	q.mu.Unlock()

	var expiredSeen bool
	q.bus.Subscribe(bus.TaskExpired, func(bus.Event) { expiredSeen = true })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.Eventually(t, func() bool { return expiredSeen }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, q.Size())
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	reg := scanner.NewRegistry()
	q1 := New(Config{Registry: reg, Bus: bus.New(), PersistPath: path, TTL: time.Hour})
	q1.Enqueue("a", SourceCLI, Normal, nil, nil)
	q1.Enqueue("b", SourceCLI, High, []string{"x.go"}, nil)

	q2 := New(Config{Registry: reg, Bus: bus.New(), PersistPath: path, TTL: time.Hour})
	restored, err := q2.Restore()
	require.NoError(t, err)
	assert.Equal(t, 2, restored)
	assert.Equal(t, 2, q2.Size())
}

func TestRestoreDropsTasksOlderThanTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	reg := scanner.NewRegistry()
	q1 := New(Config{Registry: reg, Bus: bus.New(), PersistPath: path, TTL: time.Hour})
	q1.mu.Lock()
	q1.queued = append(q1.queued, &Task{ID: "old", Scanner: "a", Status: StatusQueued, CreatedAt: time.Now().Add(-2 * time.Hour)})
	q1.queued = append(q1.queued, &Task{ID: "fresh", Scanner: "b", Status: StatusQueued, CreatedAt: time.Now()})
	q1.persistLocked()
	q1.mu.Unlock()

	q2 := New(Config{Registry: reg, Bus: bus.New(), PersistPath: path, TTL: time.Hour})
	restored, err := q2.Restore()
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
}

func TestRestoreIgnoresCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	reg := scanner.NewRegistry()
	q := New(Config{Registry: reg, Bus: bus.New(), PersistPath: path, TTL: time.Hour})
	restored, err := q.Restore()
	require.NoError(t, err)
	assert.Equal(t, 0, restored)
}
