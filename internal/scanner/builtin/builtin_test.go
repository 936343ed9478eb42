package builtin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcyfr/guardian/internal/scanner"
)

func TestLicenseHeaderScannerFlagsMissingHeader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.go"), []byte("// Copyright 2026\npackage foo\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.go"), []byte("package foo\n"), 0o644))

	s := NewLicenseHeaderScanner("Copyright", []string{"*.go"})
	result, err := s.Scan(scanner.Context{WorkspaceRoot: dir})
	require.NoError(t, err)

	assert.Equal(t, scanner.StatusFail, result.Status)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, filepath.Join(dir, "bad.go"), result.Violations[0].File)
}

func TestTODOCensusScannerReportsMarkersAsWarnings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package foo\n// TODO: fix this\n"), 0o644))

	s := NewTODOCensusScanner()
	result, err := s.Scan(scanner.Context{WorkspaceRoot: dir})
	require.NoError(t, err)

	assert.Equal(t, scanner.StatusPass, result.Status, "an outstanding TODO is a warning, never a failure")
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, 2, result.Warnings[0].Line)
}

func TestDependencyAuditScannerCountsDirectRequires(t *testing.T) {
	dir := t.TempDir()
	goMod := "module example.com/demo\n\ngo 1.25\n\nrequire (\n\tgithub.com/foo/bar v1.0.0\n\tgithub.com/baz/qux/v2 v2.0.0 // indirect\n)\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte(goMod), 0o644))

	count, err := countDirectRequires(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
