package watcher

import (
	"regexp"
	"time"

	"github.com/dcyfr/guardian/internal/scanner"
)

// Rule maps a workspace-relative path pattern to the scanners it should
// trigger, with an optional per-rule debounce override.
type Rule struct {
	Pattern     *regexp.Regexp
	Scanners    []scanner.ID
	DebounceMs  int
}

// Debounce returns the rule's debounce duration, falling back to def.
func (r Rule) Debounce(def time.Duration) time.Duration {
	if r.DebounceMs <= 0 {
		return def
	}
	return time.Duration(r.DebounceMs) * time.Millisecond
}

// MustRule compiles pattern and panics on failure. Intended for
// constructing the default rule set at startup, where a bad pattern is a
// programming error, not a runtime condition.
func MustRule(pattern string, debounceMs int, scanners ...scanner.ID) Rule {
	return Rule{
		Pattern:    regexp.MustCompile(pattern),
		Scanners:   scanners,
		DebounceMs: debounceMs,
	}
}
