package scanner

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrUnknownScanner is returned when a requested scanner id is not registered.
var ErrUnknownScanner = fmt.Errorf("unknown-scanner")

// ErrDuplicateID is returned when registering a scanner whose id already exists.
var ErrDuplicateID = fmt.Errorf("duplicate-id")

// Registry holds the set of known scanners and dispatches by id.
type Registry struct {
	mu       sync.RWMutex
	scanners map[ID]Scanner
	order    []ID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		scanners: make(map[ID]Scanner),
	}
}

// Register adds a scanner to the registry. Fails with ErrDuplicateID if
// the id already exists.
func (r *Registry) Register(s Scanner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := s.ID()
	if _, exists := r.scanners[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	r.scanners[id] = s
	r.order = append(r.order, id)
	return nil
}

// GetByID returns the scanner registered under id, if any.
func (r *Registry) GetByID(id ID) (Scanner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scanners[id]
	return s, ok
}

// ListIDs returns every registered id in registration order.
func (r *Registry) ListIDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ID, len(r.order))
	copy(out, r.order)
	return out
}

// ListAll returns every registered scanner in registration order.
func (r *Registry) ListAll() []Scanner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Scanner, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.scanners[id])
	}
	return out
}

// ListByCategory returns registered scanners matching category, in
// registration order.
func (r *Registry) ListByCategory(category Category) []Scanner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Scanner
	for _, id := range r.order {
		s := r.scanners[id]
		if s.Category() == category {
			out = append(out, s)
		}
	}
	return out
}

// ListForProject returns scanners whose project set is absent or
// contains project, in registration order.
func (r *Registry) ListForProject(project string) []Scanner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Scanner
	for _, id := range r.order {
		s := r.scanners[id]
		if AppliesToProject(s, project) {
			out = append(out, s)
		}
	}
	return out
}

// Run looks up id and invokes its Scan. If id is unknown, fails with
// ErrUnknownScanner and the current list of ids in the message.
func (r *Registry) Run(id ID, ctx Context) (result Result, err error) {
	s, ok := r.GetByID(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s (known: %s)", ErrUnknownScanner, id, strings.Join(idsToStrings(r.ListIDs()), ", "))
	}
	return runRecovered(s, ctx)
}

// RunAll runs every applicable scanner (filtered by ctx.Project when
// present) in registration order. Any panic or error from a scanner is
// caught per-scanner and converted to a status=error result — never
// propagated. Callers that require isolation should schedule through the
// task queue instead.
func (r *Registry) RunAll(ctx Context) []Result {
	scanners := r.ListForProject(ctx.Project)
	results := make([]Result, 0, len(scanners))
	for _, s := range scanners {
		result, err := runRecovered(s, ctx)
		if err != nil {
			result = Result{
				Scanner:   s.ID(),
				Status:    StatusError,
				Summary:   err.Error(),
				Timestamp: time.Now(),
			}
		}
		results = append(results, result)
	}
	return results
}

// runRecovered invokes a scanner's Scan, converting panics into errors so
// one misbehaving scanner can never bring down a caller.
func runRecovered(s Scanner, ctx Context) (result Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scanner %s panicked: %v", s.ID(), p)
		}
	}()
	return s.Scan(ctx)
}

func idsToStrings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
