package builtin

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dcyfr/guardian/internal/scanner"
)

// TODOCensusScanner counts and reports TODO/FIXME markers as warnings.
// It never fails the build on its own — stale markers are a governance
// signal, not a compliance error.
type TODOCensusScanner struct {
	Markers []string
}

// NewTODOCensusScanner returns a scanner looking for the given markers,
// defaulting to TODO and FIXME.
func NewTODOCensusScanner(markers ...string) *TODOCensusScanner {
	if len(markers) == 0 {
		markers = []string{"TODO", "FIXME"}
	}
	return &TODOCensusScanner{Markers: markers}
}

func (s *TODOCensusScanner) ID() scanner.ID             { return "todo-census" }
func (s *TODOCensusScanner) Name() string               { return "TODO Census" }
func (s *TODOCensusScanner) Description() string        { return "counts outstanding TODO/FIXME markers" }
func (s *TODOCensusScanner) Category() scanner.Category  { return scanner.CategoryCleanup }
func (s *TODOCensusScanner) Projects() []string          { return nil }

func (s *TODOCensusScanner) Scan(ctx scanner.Context) (scanner.Result, error) {
	started := time.Now()
	files := ctx.Files
	if files == nil {
		var err error
		files, err = discoverGoFiles(ctx.WorkspaceRoot)
		if err != nil {
			return scanner.Result{}, err
		}
	}

	var warnings []scanner.Violation
	for _, f := range files {
		hits, err := s.scanFile(f)
		if err != nil {
			continue
		}
		warnings = append(warnings, hits...)
	}

	return scanner.Result{
		Scanner:    s.ID(),
		Status:     scanner.StatusPass,
		Warnings:   warnings,
		Metrics:    map[string]float64{"markers_found": float64(len(warnings))},
		DurationMs: time.Since(started).Milliseconds(),
		Timestamp:  time.Now(),
		Summary:    fmt.Sprintf("%d outstanding markers", len(warnings)),
	}, nil
}

func (s *TODOCensusScanner) scanFile(path string) ([]scanner.Violation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []scanner.Violation
	lineNum := 0
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		lineNum++
		line := scan.Text()
		for _, m := range s.Markers {
			if strings.Contains(line, m) {
				out = append(out, scanner.Violation{
					ID:       "outstanding-marker",
					Severity: scanner.SeverityInfo,
					Message:  strings.TrimSpace(line),
					File:     path,
					Line:     lineNum,
				})
				break
			}
		}
	}
	return out, nil
}

func discoverGoFiles(root string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".go") {
			matches = append(matches, path)
		}
		return nil
	})
	return matches, err
}
