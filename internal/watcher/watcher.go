// Package watcher implements the daemon's reactive file watcher:
// pattern-based mapping of change events to scanners with per-rule
// debouncing and batching.
package watcher

import (
	"log"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dcyfr/guardian/internal/bus"
	"github.com/dcyfr/guardian/internal/queue"
	"github.com/dcyfr/guardian/internal/scanner"
)

const defaultDebounce = 500 * time.Millisecond

// DefaultIgnores are the directories always excluded from watching. The
// state directory is always ignored to prevent self-triggering loops.
var DefaultIgnores = []*regexp.Regexp{
	regexp.MustCompile(`(^|/)\.git(/|$)`),
	regexp.MustCompile(`(^|/)node_modules(/|$)`),
	regexp.MustCompile(`(^|/)vendor(/|$)`),
	regexp.MustCompile(`(^|/)\.dcyfr(/|$)`),
}

// Enqueuer is the subset of the task queue the watcher needs.
type Enqueuer interface {
	Enqueue(scannerID scanner.ID, source queue.Source, priority queue.Priority, files []string, options map[string]any) (string, bool)
}

type batch struct {
	files    map[string]struct{}
	scanners []scanner.ID
	timer    *time.Timer
}

// Watcher observes a set of roots and dispatches debounced batches of
// file events to the task queue.
type Watcher struct {
	mu              sync.Mutex
	fsw             *fsnotify.Watcher
	roots           []string
	ignores         []*regexp.Regexp
	rules           []Rule
	enqueuer        Enqueuer
	bus             *bus.Bus
	logger          *log.Logger
	defaultDebounce time.Duration
	batches         map[string]*batch

	stopCh chan struct{}
	doneCh chan struct{}
}

// Config configures a Watcher.
type Config struct {
	Roots           []string
	Ignores         []*regexp.Regexp
	Rules           []Rule
	Enqueuer        Enqueuer
	Bus             *bus.Bus
	Logger          *log.Logger
	DefaultDebounce time.Duration
}

// New creates a Watcher. Call Start to begin watching.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.DefaultDebounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	ignores := cfg.Ignores
	if ignores == nil {
		ignores = DefaultIgnores
	} else {
		// Custom ignores never drop the state directory.
		ignores = append(append([]*regexp.Regexp{}, cfg.Ignores...), regexp.MustCompile(`(^|/)\.dcyfr(/|$)`))
	}

	return &Watcher{
		fsw:             fsw,
		roots:           cfg.Roots,
		ignores:         ignores,
		rules:           cfg.Rules,
		enqueuer:        cfg.Enqueuer,
		bus:             cfg.Bus,
		logger:          logger,
		defaultDebounce: debounce,
		batches:         make(map[string]*batch),
	}, nil
}

// Start adds every configured root to the underlying OS watcher and
// begins the event loop.
func (w *Watcher) Start() error {
	for _, root := range w.roots {
		if err := w.fsw.Add(root); err != nil {
			return err
		}
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.loop()
	return nil
}

// Stop cancels every open debounce timer and closes the OS watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	for key, b := range w.batches {
		b.timer.Stop()
		delete(w.batches, key)
	}
	w.mu.Unlock()

	w.fsw.Close()
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emit(bus.WatcherError, map[string]any{"error": err.Error()})
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel := w.relativize(ev.Name)
	if w.ignored(rel) {
		return
	}
	w.emit(bus.WatcherChange, map[string]any{"path": rel, "op": ev.Op.String()})

	for _, rule := range w.rules {
		if !rule.Pattern.MatchString(rel) {
			continue
		}
		w.addToBatch(rule, rel)
	}
}

func (w *Watcher) relativize(path string) string {
	for _, root := range w.roots {
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") {
			return filepath.ToSlash(r)
		}
	}
	return filepath.ToSlash(path)
}

func (w *Watcher) ignored(path string) bool {
	for _, re := range w.ignores {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// batchKey computes the sorted concatenation of a rule's target
// scanners. Two rules targeting overlapping but unequal scanner sets
// produce different keys and therefore different batches — this is an
// intentional asymmetry, not a bug: do not key on individual scanner id.
func batchKey(scanners []scanner.ID) string {
	ids := make([]string, len(scanners))
	for i, s := range scanners {
		ids[i] = string(s)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func (w *Watcher) addToBatch(rule Rule, path string) {
	key := batchKey(rule.Scanners)

	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.batches[key]
	if !ok {
		b = &batch{files: make(map[string]struct{}), scanners: rule.Scanners}
		w.batches[key] = b
	}
	b.files[path] = struct{}{}

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(rule.Debounce(w.defaultDebounce), func() {
		w.flush(key)
	})
}

func (w *Watcher) flush(key string) {
	w.mu.Lock()
	b, ok := w.batches[key]
	if !ok {
		w.mu.Unlock()
		return
	}
	delete(w.batches, key)
	files := make([]string, 0, len(b.files))
	for f := range b.files {
		files = append(files, f)
	}
	sort.Strings(files)
	scanners := b.scanners
	w.mu.Unlock()

	if w.enqueuer == nil {
		return
	}
	for _, s := range scanners {
		w.enqueuer.Enqueue(s, queue.SourceWatcher, queue.High, files, nil)
	}
}

func (w *Watcher) emit(t bus.Type, data map[string]any) {
	if w.bus == nil {
		return
	}
	w.bus.Emit(t, data)
}
