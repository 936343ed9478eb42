// Package supervisor coordinates the event bus, scanner registry, task
// queue, scheduler, and file watcher: single-instance enforcement,
// signal-driven graceful drain, memory heartbeats, log rotation, and the
// periodic health snapshot.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dcyfr/guardian/internal/bus"
	"github.com/dcyfr/guardian/internal/health"
	"github.com/dcyfr/guardian/internal/logging"
	"github.com/dcyfr/guardian/internal/queue"
	"github.com/dcyfr/guardian/internal/scanner"
	"github.com/dcyfr/guardian/internal/scheduler"
	"github.com/dcyfr/guardian/internal/watcher"
)

const (
	defaultHeartbeatInterval = 60 * time.Second
	defaultDrainDeadline     = 10 * time.Second
	defaultMemoryWarningMB   = 512
)

// Config configures a Supervisor.
type Config struct {
	WorkspaceRoot     string
	StateDir          string // defaults to <WorkspaceRoot>/.dcyfr
	Registry          *scanner.Registry
	ScheduleDefaults  []*scheduler.Entry
	WatcherRoots      []string
	WatcherRules      []watcher.Rule
	MaxConcurrent     int
	QueueTTL          time.Duration
	HeartbeatInterval time.Duration
	DrainDeadline     time.Duration
	MemoryWarningMB   uint64
	Weights           health.Weights
}

// Supervisor wires together C1 through C5 and drives C7.
type Supervisor struct {
	cfg Config

	bus       *bus.Bus
	queue     *queue.Queue
	scheduler *scheduler.Scheduler
	watcher   *watcher.Watcher
	history   *health.History

	logger  *log.Logger
	logFile *logging.RotatingFile

	pidPath   string
	statePath string

	cacheMu     sync.Mutex
	resultCache map[scanner.ID]scanner.Result

	startedAt time.Time

	mu      sync.Mutex
	running bool
	stopped chan struct{}
	stopOnce sync.Once

	heartbeatStop chan struct{}
	heartbeatDone chan struct{}

	sigCh chan os.Signal
}

// New builds a Supervisor. Components are wired in dependency order:
// bus, registry, queue, scheduler, watcher each take the ones before
// them as constructed dependencies.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("supervisor: registry is required")
	}
	stateDir := cfg.StateDir
	if stateDir == "" {
		stateDir = filepath.Join(cfg.WorkspaceRoot, ".dcyfr")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	logPath := filepath.Join(stateDir, "daemon.log")
	logFile, err := logging.Open(logging.Config{Path: logPath})
	if err != nil {
		return nil, fmt.Errorf("opening daemon log: %w", err)
	}
	logger := log.New(logFile, "", log.LstdFlags)

	eventBus := bus.New()

	q := queue.New(queue.Config{
		Registry:      cfg.Registry,
		Bus:           eventBus,
		WorkspaceRoot: cfg.WorkspaceRoot,
		PersistPath:   filepath.Join(stateDir, "queue.json"),
		TTL:           cfg.QueueTTL,
		MaxConcurrent: cfg.MaxConcurrent,
		Logger:        logger,
	})

	sched := scheduler.New(scheduler.Config{
		Defaults:    cfg.ScheduleDefaults,
		Enqueuer:    q,
		Bus:         eventBus,
		PersistPath: filepath.Join(stateDir, "schedules.json"),
		Logger:      logger,
	})

	var w *watcher.Watcher
	if len(cfg.WatcherRoots) > 0 {
		w, err = watcher.New(watcher.Config{
			Roots:    cfg.WatcherRoots,
			Rules:    cfg.WatcherRules,
			Enqueuer: q,
			Bus:      eventBus,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating file watcher: %w", err)
		}
	}

	hist := health.NewHistory(
		filepath.Join(stateDir, "health.json"),
		filepath.Join(stateDir, "health-history.json"),
		0,
	)

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	drain := cfg.DrainDeadline
	if drain <= 0 {
		drain = defaultDrainDeadline
	}
	memWarn := cfg.MemoryWarningMB
	if memWarn == 0 {
		memWarn = defaultMemoryWarningMB
	}
	cfg.HeartbeatInterval = heartbeat
	cfg.DrainDeadline = drain
	cfg.MemoryWarningMB = memWarn

	return &Supervisor{
		cfg:         cfg,
		bus:         eventBus,
		queue:       q,
		scheduler:   sched,
		watcher:     w,
		history:     hist,
		logger:      logger,
		logFile:     logFile,
		pidPath:     filepath.Join(stateDir, "daemon.pid"),
		statePath:   filepath.Join(stateDir, "daemon-state.json"),
		resultCache: make(map[scanner.ID]scanner.Result),
	}, nil
}

// Bus exposes the event bus for external subscribers (e.g. a control
// surface) built on top of the supervisor.
func (s *Supervisor) Bus() *bus.Bus { return s.bus }

// Queue exposes the task queue so callers (CLI, watcher extensions) can
// enqueue work directly.
func (s *Supervisor) Queue() *queue.Queue { return s.queue }

// Start enforces the single-instance invariant, wires event listeners,
// restores persisted queue state, and starts every subsystem.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := AcquirePIDFile(s.pidPath); err != nil {
		return err
	}

	restored, err := s.queue.Restore()
	if err != nil {
		s.logger.Printf("warning: queue restore failed: %v", err)
	} else {
		s.logger.Printf("restored %d queued task(s) from disk", restored)
	}
	fmt.Printf("guardian: restored %d queued task(s)\n", restored)

	s.subscribeListeners()

	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	s.queue.Start(ctx)
	s.scheduler.Start()
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			s.logger.Printf("warning: watcher failed to start: %v", err)
		}
	}

	s.installSignalHandlers(ctx)
	s.startHeartbeat(ctx)

	s.bus.Emit(bus.DaemonStarted, map[string]any{"pid": os.Getpid()})
	fmt.Println("guardian: started")
	return nil
}

// Wait blocks until Stop has completed, driven either by a signal or an
// explicit caller Stop.
func (s *Supervisor) Wait() {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped != nil {
		<-stopped
	}
}

// Stop runs the graceful drain sequence exactly once, even if called
// concurrently from a signal handler and an explicit caller.
func (s *Supervisor) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.doStop(ctx)
		close(s.stopped)
	})
}

func (s *Supervisor) doStop(ctx context.Context) {
	s.bus.Emit(bus.DaemonStopping, nil)
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.scheduler.Stop()
		return nil
	})
	g.Go(func() error {
		if s.watcher != nil {
			s.watcher.Stop()
		}
		return nil
	})
	_ = g.Wait()

	drainCtx, cancel := context.WithTimeout(ctx, s.cfg.DrainDeadline)
	if err := s.queue.Drain(drainCtx); err != nil {
		s.logger.Printf("warning: drain deadline exceeded, proceeding with shutdown: %v", err)
	}
	cancel()
	s.queue.Stop()

	s.cacheMu.Lock()
	results := make([]scanner.Result, 0, len(s.resultCache))
	for _, r := range s.resultCache {
		results = append(results, r)
	}
	s.cacheMu.Unlock()

	snap := health.Build(results, s.cfg.Weights)
	if err := s.history.Append(snap); err != nil {
		s.logger.Printf("warning: failed to persist final health snapshot: %v", err)
	}

	s.stopHeartbeat()
	s.bus.Clear()
	signal.Stop(s.sigCh)

	if err := ReleasePIDFile(s.pidPath); err != nil {
		s.logger.Printf("warning: failed to remove pid file: %v", err)
	}

	s.bus.Emit(bus.DaemonStopped, nil)
	fmt.Println("guardian: stopped")
	s.logFile.Close()
}

func (s *Supervisor) installSignalHandlers(ctx context.Context) {
	s.sigCh = make(chan os.Signal, 1)
	signal.Notify(s.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range s.sigCh {
			if sig == syscall.SIGHUP {
				s.logger.Printf("received SIGHUP: reloading schedule overrides")
				s.scheduler.Reload()
				continue
			}
			s.Stop(ctx)
			return
		}
	}()
}

func (s *Supervisor) subscribeListeners() {
	s.bus.Subscribe(bus.TaskQueued, func(e bus.Event) {
		s.logger.Printf("task queued: %+v", e.Data)
	})
	s.bus.Subscribe(bus.TaskStarted, func(e bus.Event) {
		s.logger.Printf("task started: %+v", e.Data)
	})
	s.bus.Subscribe(bus.TaskCompleted, func(e bus.Event) {
		s.logger.Printf("task completed: %+v", e.Data)
	})
	s.bus.Subscribe(bus.TaskFailed, func(e bus.Event) {
		s.logger.Printf("task failed: %+v", e.Data)
	})
	s.bus.Subscribe(bus.ScheduleTriggered, func(e bus.Event) {
		s.logger.Printf("schedule triggered: %+v", e.Data)
	})
	s.bus.Subscribe(bus.WatcherChange, func(e bus.Event) {
		s.logger.Printf("watcher change: %+v", e.Data)
	})
	s.bus.Subscribe(bus.WatcherError, func(e bus.Event) {
		s.logger.Printf("watcher error: %+v", e.Data)
	})
	s.bus.Subscribe(bus.ScanCompleted, func(e bus.Event) {
		payload, ok := e.Data["payload"].(map[string]any)
		if !ok {
			return
		}
		result, ok := payload["result"].(scanner.Result)
		if !ok {
			return
		}
		s.cacheMu.Lock()
		s.resultCache[result.Scanner] = result
		s.cacheMu.Unlock()
	})
}

func memoryUsageMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Alloc) / (1024 * 1024)
}
