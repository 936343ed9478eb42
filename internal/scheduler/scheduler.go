// Package scheduler implements the daemon's interval scheduler: periodic
// scanner invocations with persisted last-run timestamps, startup
// catch-up for overdue work, and jitter to avoid thundering herds.
package scheduler

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/dcyfr/guardian/internal/bus"
	"github.com/dcyfr/guardian/internal/queue"
	"github.com/dcyfr/guardian/internal/scanner"
)

const defaultJitterFraction = 0.1

// Enqueuer is the subset of the task queue the scheduler needs. Matched
// by *queue.Queue.
type Enqueuer interface {
	Enqueue(scannerID scanner.ID, source queue.Source, priority queue.Priority, files []string, options map[string]any) (string, bool)
}

// Scheduler owns a set of schedule entries merged from built-in defaults
// and a persisted overrides file.
type Scheduler struct {
	mu            sync.Mutex
	entries       map[string]*Entry
	order         []string
	timers        map[string]*time.Timer
	enqueuer      Enqueuer
	bus           *bus.Bus
	persistPath   string
	logger        *log.Logger
	jitterFrac    float64
	running       bool
}

// Config configures a Scheduler.
type Config struct {
	Defaults    []*Entry
	Enqueuer    Enqueuer
	Bus         *bus.Bus
	PersistPath string
	Logger      *log.Logger
}

// New builds a Scheduler from cfg's defaults, without loading persisted
// overrides (call Start to do that).
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Scheduler{
		entries:     make(map[string]*Entry),
		timers:      make(map[string]*time.Timer),
		enqueuer:    cfg.Enqueuer,
		bus:         cfg.Bus,
		persistPath: cfg.PersistPath,
		logger:      logger,
		jitterFrac:  defaultJitterFraction,
	}
	for _, d := range cfg.Defaults {
		s.entries[d.ID] = cloneEntry(d)
		s.order = append(s.order, d.ID)
	}
	return s
}

// Start merges persisted overrides onto the defaults, performs catch-up
// for overdue entries, and arms a timer for every enabled entry.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.mergeOverridesLocked()
	s.running = true
	now := time.Now()

	var toCatchUp []*Entry
	for _, id := range s.order {
		e := s.entries[id]
		if !e.Enabled {
			continue
		}
		if e.LastRun == nil || now.Sub(*e.LastRun) > e.Interval() {
			toCatchUp = append(toCatchUp, e)
		}
	}
	for _, e := range toCatchUp {
		e.LastRun = timePtr(now)
	}
	if len(toCatchUp) > 0 {
		s.persistLocked()
	}
	s.mu.Unlock()

	for _, e := range toCatchUp {
		s.enqueueEntry(e, queue.Low)
	}

	s.mu.Lock()
	for _, id := range s.order {
		e := s.entries[id]
		if e.Enabled {
			s.armLocked(e)
		}
	}
	s.mu.Unlock()
}

// Reload re-reads the persisted overrides file and re-arms every
// enabled entry's timer against the refreshed state. Unlike Start, it
// never performs catch-up — a reload is not a cold start.
func (s *Scheduler) Reload() {
	s.mu.Lock()
	s.mergeOverridesLocked()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	for _, id := range s.order {
		e := s.entries[id]
		if e.Enabled {
			s.armLocked(e)
		}
	}
	s.mu.Unlock()
}

// Stop cancels every armed timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// SetEnabled flips an entry's enabled flag, arming or cancelling its
// timer immediately, and persists.
func (s *Scheduler) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("unknown schedule entry: %s", id)
	}
	e.Enabled = enabled
	s.persistLocked()

	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	if enabled && s.running {
		s.armLocked(e)
	}
	if s.bus != nil {
		s.bus.Emit(bus.ScheduleUpdated, map[string]any{"id": id, "enabled": enabled})
	}
	return nil
}

// Entries returns a deep copy of every schedule entry.
func (s *Scheduler) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneEntry(s.entries[id]))
	}
	return out
}

func (s *Scheduler) armLocked(e *Entry) {
	now := time.Now()
	delay := time.Duration(0)
	if e.NextRun != nil {
		if d := e.NextRun.Sub(now); d > 0 {
			delay = d
		}
	}
	delay += s.jitter(e.Interval())

	id := e.ID
	s.timers[id] = time.AfterFunc(delay, func() { s.fire(id) })
}

func (s *Scheduler) jitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	upper := float64(interval) * s.jitterFrac
	if upper <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * upper)
}

// fire runs when an entry's timer elapses: it enqueues the scanner,
// records a new lastRun/nextRun, persists, and re-arms.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	e, ok := s.entries[id]
	if !ok || !e.Enabled {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	e.LastRun = timePtr(now)
	e.NextRun = timePtr(now.Add(e.Interval()))
	s.persistLocked()
	s.mu.Unlock()

	s.enqueueEntry(e, queue.Normal)

	if s.bus != nil {
		s.bus.Emit(bus.ScheduleTriggered, map[string]any{"id": id, "scanner": e.Scanner})
	}

	s.mu.Lock()
	if s.running && e.Enabled {
		s.armLocked(e)
	}
	s.mu.Unlock()
}

func (s *Scheduler) enqueueEntry(e *Entry, priority queue.Priority) {
	if s.enqueuer == nil {
		return
	}
	s.enqueuer.Enqueue(scanner.ID(e.Scanner), queue.SourceScheduler, priority, nil, e.Options)
}

func (s *Scheduler) mergeOverridesLocked() {
	if s.persistPath == "" {
		return
	}
	raw, err := os.ReadFile(s.persistPath)
	if err != nil {
		return
	}
	var overrides []*Entry
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return
	}
	for _, o := range overrides {
		e, ok := s.entries[o.ID]
		if !ok {
			continue // removed defaults vanish
		}
		e.LastRun = o.LastRun
		e.NextRun = o.NextRun
		e.Enabled = o.Enabled
	}
}

// persistLocked writes the full entry set to disk. Must be called with
// s.mu held. Failures are logged and swallowed.
func (s *Scheduler) persistLocked() {
	if s.persistPath == "" {
		return
	}
	entries := make([]*Entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.entries[id])
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		s.logger.Printf("warning: failed to marshal schedule state: %v", err)
		return
	}
	tmp := s.persistPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Printf("warning: failed to write schedule state: %v", err)
		return
	}
	if err := os.Rename(tmp, s.persistPath); err != nil {
		os.Remove(tmp)
		s.logger.Printf("warning: failed to persist schedule state: %v", err)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
