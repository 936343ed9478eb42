// Package scanner defines the scanner contract and the registry that holds it.
package scanner

import "time"

// ID is a short stable identifier for a scanner, unique per registry.
type ID string

// Category classifies what a scanner evaluates.
type Category string

const (
	CategoryCompliance    Category = "compliance"
	CategorySecurity      Category = "security"
	CategoryDocumentation Category = "documentation"
	CategoryCleanup       Category = "cleanup"
	CategoryTesting       Category = "testing"
	CategoryGovernance    Category = "governance"
)

// Status is the outcome of a single scan.
type Status string

const (
	StatusPass    Status = "pass"
	StatusWarn    Status = "warn"
	StatusFail    Status = "fail"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Severity classifies a single violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Context is the immutable view a scanner receives for one invocation.
type Context struct {
	WorkspaceRoot string
	Files         []string
	Project       string
	Options       map[string]any
	DryRun        bool
	Verbose       bool
}

// Scoped reports whether this context is scoped to a specific file set.
func (c Context) Scoped() bool {
	return c.Files != nil
}

// Violation is a single finding produced by a scan.
type Violation struct {
	ID          string   `json:"id"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	File        string   `json:"file,omitempty"`
	Line        int      `json:"line,omitempty"`
	Column      int      `json:"column,omitempty"`
	Fix         string   `json:"fix,omitempty"`
	AutoFixable bool     `json:"autoFixable,omitempty"`
}

// Result is what a scan produces.
type Result struct {
	Scanner    ID                 `json:"scanner"`
	Status     Status             `json:"status"`
	Violations []Violation        `json:"violations"`
	Warnings   []Violation        `json:"warnings"`
	Metrics    map[string]float64 `json:"metrics"`
	DurationMs int64              `json:"duration_ms"`
	Timestamp  time.Time          `json:"timestamp"`
	Summary    string             `json:"summary"`
}

// FixResult is returned by a scanner's optional Fix capability.
type FixResult struct {
	Fixed   []string `json:"fixed"`
	Failed  []string `json:"failed"`
	Summary string   `json:"summary"`
}

// Scanner is the uniform contract every analyzer implements.
//
// Scan may block on I/O and must be reentrant: two invocations with
// different contexts may overlap if the caller's queue allows it. Scan
// must never panic on business-level failures — those belong in the
// returned Result. Unexpected panics are recovered by the registry:
// Registry.Run returns them as an error (the queue then marks the task
// failed), and Registry.RunAll converts them into an error-status result.
type Scanner interface {
	ID() ID
	Name() string
	Description() string
	Category() Category
	// Projects returns the project names this scanner applies to, or nil
	// for all projects.
	Projects() []string
	Scan(ctx Context) (Result, error)
}

// Fixer is an optional capability a Scanner may also implement.
type Fixer interface {
	Fix(ctx Context, violations []Violation) (FixResult, error)
}

// AppliesToProject reports whether a scanner's project scope includes
// the given project name. An empty project set applies to everything.
func AppliesToProject(s Scanner, project string) bool {
	if project == "" {
		return true
	}
	projects := s.Projects()
	if len(projects) == 0 {
		return true
	}
	for _, p := range projects {
		if p == project {
			return true
		}
	}
	return false
}
