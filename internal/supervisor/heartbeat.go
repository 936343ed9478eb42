package supervisor

import (
	"context"
	"os"
	"time"

	"github.com/dcyfr/guardian/internal/bus"
	"github.com/dcyfr/guardian/internal/health"
	"github.com/dcyfr/guardian/internal/scanner"
)

// startHeartbeat launches the periodic tick that writes daemon-state.json,
// checks memory pressure, and refreshes the health snapshot.
func (s *Supervisor) startHeartbeat(ctx context.Context) {
	s.heartbeatStop = make(chan struct{})
	s.heartbeatDone = make(chan struct{})

	go func() {
		defer close(s.heartbeatDone)

		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.heartbeatStop:
				return
			case <-ticker.C:
				s.beat()
			}
		}
	}()
}

func (s *Supervisor) stopHeartbeat() {
	if s.heartbeatStop == nil {
		return
	}
	close(s.heartbeatStop)
	<-s.heartbeatDone
}

func (s *Supervisor) beat() {
	memMB := memoryUsageMB()

	stats := s.queue.Stats()
	state := State{
		PID:             os.Getpid(),
		StartedAt:       s.startedAt,
		UptimeMs:        time.Since(s.startedAt).Milliseconds(),
		LastHeartbeat:   time.Now(),
		TasksCompleted:  stats.CompletedTotal,
		TasksQueued:     stats.Queued,
		MemoryUsageMB:   memMB,
		SchedulerActive: true,
		WatcherActive:   s.watcher != nil,
	}
	if err := writeStateAtomic(s.statePath, state); err != nil {
		s.logger.Printf("warning: failed to write daemon state: %v", err)
	}

	s.bus.Emit(bus.DaemonHeartbeat, map[string]any{
		"uptimeMs":      state.UptimeMs,
		"memoryUsageMB": memMB,
		"tasksQueued":   stats.Queued,
	})

	if uint64(memMB) > s.cfg.MemoryWarningMB {
		s.bus.Emit(bus.DaemonMemoryWarning, map[string]any{
			"memoryUsageMB": memMB,
			"thresholdMB":   s.cfg.MemoryWarningMB,
		})
	}

	s.refreshHealthSnapshot()
}

// refreshHealthSnapshot builds a Snapshot from the cached scan results and
// appends it to the retention-windowed history.
func (s *Supervisor) refreshHealthSnapshot() {
	s.cacheMu.Lock()
	results := make([]scanner.Result, 0, len(s.resultCache))
	for _, r := range s.resultCache {
		results = append(results, r)
	}
	s.cacheMu.Unlock()

	snap := health.Build(results, s.cfg.Weights)
	if err := s.history.Append(snap); err != nil {
		s.logger.Printf("warning: failed to persist health snapshot: %v", err)
		return
	}
	s.bus.Emit(bus.HealthUpdated, map[string]any{"score": snap.Overall.Score, "status": snap.Overall.Status})
}
