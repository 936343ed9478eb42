// Package queue implements the daemon's single-executor priority task
// queue: priority ordering, at-most-one-in-flight-per-scanner semantics,
// coalescing of redundant requests, TTL expiration, and crash-recoverable
// persistence.
package queue

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dcyfr/guardian/internal/bus"
	"github.com/dcyfr/guardian/internal/scanner"
)

const (
	defaultTTL           = time.Hour
	defaultMaxConcurrent = 1
	defaultPollInterval  = 50 * time.Millisecond
	maxHistory           = 100
	trimHistoryTo        = 50
)

// Config configures a Queue.
type Config struct {
	Registry      *scanner.Registry
	Bus           *bus.Bus
	WorkspaceRoot string
	PersistPath   string
	TTL           time.Duration
	MaxConcurrent int
	PollInterval  time.Duration
	Logger        *log.Logger
}

// Stats is a snapshot of queue depth and throughput.
type Stats struct {
	Queued         int
	Running        int
	CompletedTotal int
	FailedTotal    int
	ExpiredTotal   int
}

// Queue is a single-executor priority queue. All mutable state is
// serialized behind mu, matching the daemon's single serialization
// domain.
type Queue struct {
	mu            sync.Mutex
	registry      *scanner.Registry
	bus           *bus.Bus
	workspaceRoot string
	persistPath   string
	ttl           time.Duration
	maxConcurrent int
	pollInterval  time.Duration
	logger        *log.Logger

	queued  []*Task
	running map[string]*Task // scanner id -> task
	history []*Task

	completedTotal int
	failedTotal    int
	expiredTotal   int

	limiter *rate.Limiter

	stopCh chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Queue from cfg, applying defaults for zero-valued fields.
func New(cfg Config) *Queue {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Queue{
		registry:      cfg.Registry,
		bus:           cfg.Bus,
		workspaceRoot: cfg.WorkspaceRoot,
		persistPath:   cfg.PersistPath,
		ttl:           ttl,
		maxConcurrent: maxConcurrent,
		pollInterval:  poll,
		logger:        logger,
		running:       make(map[string]*Task),
		limiter:       rate.NewLimiter(rate.Every(poll), 1),
	}
}

// Enqueue adds a task. Returns ("", true) when the request was coalesced
// against an existing queued or running task with the same scanner and
// file scope.
func (q *Queue) Enqueue(scannerID scanner.ID, source Source, priority Priority, files []string, options map[string]any) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.queued {
		if t.Scanner == string(scannerID) && sameFileSet(t.Files, files) {
			return "", true
		}
	}
	if running, ok := q.running[string(scannerID)]; ok && sameFileSet(running.Files, files) {
		return "", true
	}

	task := &Task{
		ID:        uuid.NewString(),
		Scanner:   string(scannerID),
		Priority:  priority,
		Source:    source,
		Files:     files,
		Options:   options,
		CreatedAt: time.Now(),
		Status:    StatusQueued,
	}
	q.queued = append(q.queued, task)
	q.persistLocked()
	q.emit(bus.TaskQueued, task)
	return task.ID, false
}

// Size returns the current number of queued tasks.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued)
}

// Stats returns a snapshot of queue depth and lifetime counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Queued:         len(q.queued),
		Running:        len(q.running),
		CompletedTotal: q.completedTotal,
		FailedTotal:    q.failedTotal,
		ExpiredTotal:   q.expiredTotal,
	}
}

// Clear discards all queued tasks (running tasks finish normally).
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queued = nil
	q.persistLocked()
}

// Drain blocks until no task is running, or ctx is done.
func (q *Queue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		q.mu.Lock()
		running := len(q.running)
		q.mu.Unlock()
		if running == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Start launches the executor loop in a background goroutine.
func (q *Queue) Start(ctx context.Context) {
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})
	q.wg.Add(1)
	go q.run(ctx)
}

// Stop signals the executor loop to exit and waits for in-flight
// dispatch bookkeeping (not in-flight scanner work — callers should
// Drain first) to settle.
func (q *Queue) Stop() {
	if q.stopCh == nil {
		return
	}
	close(q.stopCh)
	<-q.doneCh
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.doneCh)
	defer q.wg.Done()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			if err := q.limiter.Wait(ctx); err != nil {
				return
			}
			q.tick()
		}
	}
}

// tick ages out expired tasks and dispatches as many eligible tasks as
// available concurrency slots allow.
func (q *Queue) tick() {
	q.expireOverdue()

	for {
		task := q.claimNext()
		if task == nil {
			return
		}
		q.wg.Add(1)
		go q.execute(task)
	}
}

func (q *Queue) expireOverdue() {
	q.mu.Lock()
	now := time.Now()
	var kept []*Task
	var expired []*Task
	for _, t := range q.queued {
		if now.Sub(t.CreatedAt) > q.ttl {
			t.Status = StatusExpired
			expired = append(expired, t)
			q.expiredTotal++
		} else {
			kept = append(kept, t)
		}
	}
	q.queued = kept
	if len(expired) > 0 {
		q.persistLocked()
	}
	q.mu.Unlock()

	for _, t := range expired {
		q.emit(bus.TaskExpired, t)
	}
}

// claimNext picks the highest-priority queued task whose scanner is not
// currently running, subject to maxConcurrent, and transitions it to
// running. Returns nil if nothing is eligible.
func (q *Queue) claimNext() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.running) >= q.maxConcurrent {
		return nil
	}

	sort.SliceStable(q.queued, func(i, j int) bool {
		return q.queued[i].Priority < q.queued[j].Priority
	})

	for i, t := range q.queued {
		if _, busy := q.running[t.Scanner]; busy {
			continue
		}
		q.queued = append(q.queued[:i], q.queued[i+1:]...)
		now := time.Now()
		t.Status = StatusRunning
		t.StartedAt = &now
		q.running[t.Scanner] = t
		q.persistLocked()
		return t
	}
	return nil
}

func (q *Queue) execute(task *Task) {
	defer q.wg.Done()
	q.emit(bus.TaskStarted, task)

	ctx := scanner.Context{
		WorkspaceRoot: q.workspaceRoot,
		Files:         task.Files,
		Options:       task.Options,
	}
	q.emit(bus.ScanStarted, task)

	started := time.Now()
	result, err := q.registry.Run(scanner.ID(task.Scanner), ctx)
	duration := time.Since(started)

	q.mu.Lock()
	now := time.Now()
	task.CompletedAt = &now
	delete(q.running, task.Scanner)
	if err != nil {
		task.Status = StatusFailed
		task.Error = err.Error()
		q.failedTotal++
	} else {
		task.Status = StatusCompleted
		q.completedTotal++
	}
	q.history = append(q.history, task)
	if len(q.history) > maxHistory {
		q.history = q.history[len(q.history)-trimHistoryTo:]
	}
	q.persistLocked()
	q.mu.Unlock()

	if err != nil {
		q.emit(bus.TaskFailed, task)
		return
	}
	q.emit(bus.TaskCompleted, map[string]any{
		"task":     task,
		"scanner":  task.Scanner,
		"status":   result.Status,
		"duration": duration,
	})
	q.emit(bus.ScanCompleted, map[string]any{"task": task, "result": result})
}

func (q *Queue) emit(t bus.Type, payload any) {
	if q.bus == nil {
		return
	}
	q.bus.Emit(t, map[string]any{"payload": payload})
}
