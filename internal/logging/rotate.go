// Package logging implements the daemon's single rotating log file as an
// io.Writer; the supervisor builds its *log.Logger on top of it.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const defaultMaxGenerations = 5

// RotatingFile is an io.Writer appending to a single file, rotating it
// out once it crosses a size threshold. All failures are non-fatal: a
// rotation error leaves the current file in place and writes continue.
type RotatingFile struct {
	mu            sync.Mutex
	path          string
	maxSizeBytes  int64
	maxGenerations int
	file          *os.File
	size          int64
}

// Config configures a RotatingFile.
type Config struct {
	Path           string
	MaxSizeBytes   int64
	MaxGenerations int
}

// Open opens (creating if needed) the log file at cfg.Path.
func Open(cfg Config) (*RotatingFile, error) {
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = 10 * 1024 * 1024
	}
	if cfg.MaxGenerations <= 0 {
		cfg.MaxGenerations = defaultMaxGenerations
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", cfg.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log file %s: %w", cfg.Path, err)
	}

	return &RotatingFile{
		path:           cfg.Path,
		maxSizeBytes:   cfg.MaxSizeBytes,
		maxGenerations: cfg.MaxGenerations,
		file:           f,
		size:           info.Size(),
	}, nil
}

// Write implements io.Writer, rotating first if the file has already
// crossed the size threshold.
func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size >= r.maxSizeBytes {
		if err := r.rotateLocked(); err != nil {
			// Non-fatal: keep appending to the oversized file rather than
			// losing the write.
			_ = err
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Close closes the underlying file.
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

// rotateLocked performs the cascade: delete <log>.N, rename .i -> .i+1
// for i = N-1..1, rename <log> -> <log>.1, open a fresh <log>. Must be
// called with r.mu held.
func (r *RotatingFile) rotateLocked() error {
	n := r.maxGenerations

	if err := os.Remove(r.generation(n)); err != nil && !os.IsNotExist(err) {
		return err
	}
	for i := n - 1; i >= 1; i-- {
		from, to := r.generation(i), r.generation(i+1)
		if _, err := os.Stat(from); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(from, to); err != nil {
			return err
		}
	}

	err := r.file.Close()
	if err == nil {
		err = os.Rename(r.path, r.generation(1))
	}
	if err != nil {
		// The current file was not moved: reopen it so writes continue.
		if f, oerr := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); oerr == nil {
			r.file = f
		}
		return err
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = 0
	return nil
}

func (r *RotatingFile) generation(n int) string {
	return fmt.Sprintf("%s.%d", r.path, n)
}

// Generations returns the paths of every existing rotated generation, in
// ascending order, for callers that want to inspect rotation state.
func (r *RotatingFile) Generations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for i := 1; i <= r.maxGenerations; i++ {
		p := r.generation(i)
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// Dir ensures the parent directory of path exists.
func Dir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
