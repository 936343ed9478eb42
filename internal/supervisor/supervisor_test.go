package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcyfr/guardian/internal/queue"
	"github.com/dcyfr/guardian/internal/scanner"
)

type stubScanner struct {
	id scanner.ID
}

func (s *stubScanner) ID() scanner.ID          { return s.id }
func (s *stubScanner) Name() string             { return string(s.id) }
func (s *stubScanner) Description() string      { return "test scanner" }
func (s *stubScanner) Category() scanner.Category { return scanner.CategoryCleanup }
func (s *stubScanner) Projects() []string       { return nil }
func (s *stubScanner) Scan(ctx scanner.Context) (scanner.Result, error) {
	return scanner.Result{Scanner: s.id, Status: scanner.StatusPass, Timestamp: time.Now()}, nil
}

func newTestSupervisor(t *testing.T) (*Supervisor, string) {
	t.Helper()
	dir := t.TempDir()
	reg := scanner.NewRegistry()
	require.NoError(t, reg.Register(&stubScanner{id: "demo"}))

	sup, err := New(Config{
		WorkspaceRoot:     dir,
		Registry:          reg,
		HeartbeatInterval: 20 * time.Millisecond,
		DrainDeadline:     time.Second,
	})
	require.NoError(t, err)
	return sup, dir
}

func TestStartWritesPIDFileAndStopRemovesIt(t *testing.T) {
	sup, dir := newTestSupervisor(t)
	ctx := context.Background()

	require.NoError(t, sup.Start(ctx))

	pidPath := filepath.Join(dir, ".dcyfr", "daemon.pid")
	_, err := os.Stat(pidPath)
	require.NoError(t, err)

	sup.Stop(ctx)

	_, err = os.Stat(pidPath)
	assert.True(t, os.IsNotExist(err), "pid file must be removed after graceful stop")
}

func TestSecondInstanceRefusedWhileFirstIsRunning(t *testing.T) {
	sup1, dir := newTestSupervisor(t)
	ctx := context.Background()
	require.NoError(t, sup1.Start(ctx))
	defer sup1.Stop(ctx)

	reg := scanner.NewRegistry()
	sup2, err := New(Config{
		WorkspaceRoot: dir,
		Registry:      reg,
	})
	require.NoError(t, err)

	err = sup2.Start(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStopIsIdempotent(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()
	require.NoError(t, sup.Start(ctx))

	sup.Stop(ctx)
	assert.NotPanics(t, func() { sup.Stop(ctx) })
}

func TestSIGHUPReloadsScheduleWithoutStopping(t *testing.T) {
	sup, dir := newTestSupervisor(t)
	ctx := context.Background()
	require.NoError(t, sup.Start(ctx))
	defer sup.Stop(ctx)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))

	pidPath := filepath.Join(dir, ".dcyfr", "daemon.pid")
	require.Eventually(t, func() bool {
		_, err := os.Stat(pidPath)
		return err == nil
	}, time.Second, 5*time.Millisecond, "SIGHUP must not tear down the running daemon")
}

func TestStopWritesFinalHealthSnapshot(t *testing.T) {
	sup, dir := newTestSupervisor(t)
	ctx := context.Background()
	require.NoError(t, sup.Start(ctx))

	id, coalesced := sup.Queue().Enqueue("demo", queue.SourceCLI, queue.Critical, nil, nil)
	require.False(t, coalesced)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		return sup.Queue().Stats().CompletedTotal == 1
	}, time.Second, 5*time.Millisecond)

	sup.Stop(ctx)

	_, err := os.Stat(filepath.Join(dir, ".dcyfr", "health.json"))
	assert.NoError(t, err)
}
