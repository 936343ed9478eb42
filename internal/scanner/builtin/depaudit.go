package builtin

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/modfile"

	"github.com/dcyfr/guardian/internal/scanner"
)

// DependencyAuditScanner shells out to `go list -m -u all` to find
// modules with available updates. It owns its own subprocess timeout —
// the queue has no opinion on how long a scanner may run internally.
type DependencyAuditScanner struct {
	Timeout time.Duration
}

// NewDependencyAuditScanner returns a scanner with the given subprocess
// timeout, defaulting to 30s.
func NewDependencyAuditScanner(timeout time.Duration) *DependencyAuditScanner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DependencyAuditScanner{Timeout: timeout}
}

func (s *DependencyAuditScanner) ID() scanner.ID             { return "dependency-freshness" }
func (s *DependencyAuditScanner) Name() string               { return "Dependency Freshness" }
func (s *DependencyAuditScanner) Description() string         { return "flags modules with available updates" }
func (s *DependencyAuditScanner) Category() scanner.Category  { return scanner.CategoryGovernance }
func (s *DependencyAuditScanner) Projects() []string          { return nil }

func (s *DependencyAuditScanner) Scan(ctx scanner.Context) (scanner.Result, error) {
	started := time.Now()

	directCount, err := countDirectRequires(ctx.WorkspaceRoot)
	if err != nil {
		directCount = 0
	}

	cctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "go", "list", "-m", "-u", "all")
	cmd.Dir = ctx.WorkspaceRoot

	var out bytes.Buffer
	cmd.Stdout = &out
	runErr := cmd.Run()

	if cctx.Err() == context.DeadlineExceeded {
		return scanner.Result{
			Scanner:    s.ID(),
			Status:     scanner.StatusError,
			Summary:    "dependency audit timed out",
			DurationMs: time.Since(started).Milliseconds(),
			Timestamp:  time.Now(),
		}, nil
	}
	if runErr != nil {
		return scanner.Result{
			Scanner:    s.ID(),
			Status:     scanner.StatusError,
			Summary:    "go list failed: " + runErr.Error(),
			DurationMs: time.Since(started).Milliseconds(),
			Timestamp:  time.Now(),
		}, nil
	}

	var warnings []scanner.Violation
	scan := bufio.NewScanner(&out)
	for scan.Scan() {
		line := scan.Text()
		if idx := strings.Index(line, "["); idx >= 0 {
			warnings = append(warnings, scanner.Violation{
				ID:       "outdated-dependency",
				Severity: scanner.SeverityWarning,
				Message:  strings.TrimSpace(line),
			})
		}
	}

	status := scanner.StatusPass
	if len(warnings) > 0 {
		status = scanner.StatusWarn
	}

	return scanner.Result{
		Scanner:    s.ID(),
		Status:     status,
		Warnings:   warnings,
		Metrics: map[string]float64{
			"outdated":       float64(len(warnings)),
			"direct_modules": float64(directCount),
		},
		DurationMs: time.Since(started).Milliseconds(),
		Timestamp:  time.Now(),
		Summary:    "dependency freshness audit complete",
	}, nil
}

// countDirectRequires parses go.mod directly (no `go list` round trip)
// to count non-indirect require entries.
func countDirectRequires(workspaceRoot string) (int, error) {
	data, err := os.ReadFile(filepath.Join(workspaceRoot, "go.mod"))
	if err != nil {
		return 0, err
	}
	f, err := modfile.Parse("go.mod", data, nil)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range f.Require {
		if !r.Indirect {
			count++
		}
	}
	return count, nil
}
