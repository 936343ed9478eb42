// Package builtin supplies a handful of concrete Scanner implementations
// that exercise the registry end to end. The actual rule logic for real
// analyzers (design-token regexes, license-header patterns, AI prompts)
// is out of scope; these stand in as simple, self-contained examples.
package builtin

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dcyfr/guardian/internal/scanner"
)

// LicenseHeaderScanner flags source files missing a required header line.
type LicenseHeaderScanner struct {
	Header string
	Globs  []string
}

// NewLicenseHeaderScanner returns a scanner that requires header to
// appear within the first few lines of every file matching globs.
func NewLicenseHeaderScanner(header string, globs []string) *LicenseHeaderScanner {
	if header == "" {
		header = "Copyright"
	}
	if len(globs) == 0 {
		globs = []string{"*.go"}
	}
	return &LicenseHeaderScanner{Header: header, Globs: globs}
}

func (s *LicenseHeaderScanner) ID() scanner.ID            { return "license-headers" }
func (s *LicenseHeaderScanner) Name() string              { return "License Headers" }
func (s *LicenseHeaderScanner) Description() string       { return "checks source files for a required license header" }
func (s *LicenseHeaderScanner) Category() scanner.Category { return scanner.CategoryCompliance }
func (s *LicenseHeaderScanner) Projects() []string         { return nil }

func (s *LicenseHeaderScanner) Scan(ctx scanner.Context) (scanner.Result, error) {
	started := time.Now()
	files := ctx.Files
	if files == nil {
		var err error
		files, err = s.discover(ctx.WorkspaceRoot)
		if err != nil {
			return scanner.Result{}, err
		}
	}

	var violations []scanner.Violation
	for _, f := range files {
		ok, err := s.hasHeader(f)
		if err != nil {
			continue
		}
		if !ok {
			violations = append(violations, scanner.Violation{
				ID:       "missing-license-header",
				Severity: scanner.SeverityError,
				Message:  "missing required license header",
				File:     f,
			})
		}
	}

	status := scanner.StatusPass
	if len(violations) > 0 {
		status = scanner.StatusFail
	}

	return scanner.Result{
		Scanner:    s.ID(),
		Status:     status,
		Violations: violations,
		Metrics:    map[string]float64{"files_checked": float64(len(files))},
		DurationMs: time.Since(started).Milliseconds(),
		Timestamp:  time.Now(),
		Summary:    summarize(len(violations), len(files)),
	}, nil
}

func (s *LicenseHeaderScanner) discover(root string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		for _, g := range s.Globs {
			if ok, _ := filepath.Match(g, d.Name()); ok {
				matches = append(matches, path)
				break
			}
		}
		return nil
	})
	return matches, err
}

func (s *LicenseHeaderScanner) hasHeader(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scan := bufio.NewScanner(f)
	for i := 0; i < 5 && scan.Scan(); i++ {
		if strings.Contains(scan.Text(), s.Header) {
			return true, nil
		}
	}
	return false, nil
}

func summarize(violations, files int) string {
	if violations == 0 {
		return "all files carry the required header"
	}
	return "missing header in one or more files"
}
