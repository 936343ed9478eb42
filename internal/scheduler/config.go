package scheduler

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig is the on-disk shape of the scheduler's built-in defaults
// file, merged with persisted per-entry state at startup.
type YAMLConfig struct {
	Entries []YAMLEntry `yaml:"schedules"`
}

// YAMLEntry mirrors Entry but with a human-friendly interval string
// (e.g. "24h", "7d", "2w") instead of a millisecond integer.
type YAMLEntry struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Scanner  string `yaml:"scanner"`
	Interval string `yaml:"interval"`
	Enabled  bool   `yaml:"enabled"`
}

// LoadConfig loads the scheduler's default schedule list from a YAML
// file.
func LoadConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scheduler config: %w", err)
	}
	var cfg YAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing scheduler config YAML: %w", err)
	}
	return &cfg, nil
}

// ToEntries converts the YAML config into scheduler Entry values.
func (c *YAMLConfig) ToEntries() ([]*Entry, error) {
	out := make([]*Entry, 0, len(c.Entries))
	for _, y := range c.Entries {
		d, err := parseDuration(y.Interval)
		if err != nil {
			return nil, fmt.Errorf("entry %q: invalid interval %q: %w", y.ID, y.Interval, err)
		}
		out = append(out, &Entry{
			ID:         y.ID,
			Name:       y.Name,
			Scanner:    y.Scanner,
			IntervalMs: d.Milliseconds(),
			Enabled:    y.Enabled,
		})
	}
	return out, nil
}

// parseDuration extends time.ParseDuration to support day ("7d") and
// week ("2w") suffixes.
func parseDuration(s string) (time.Duration, error) {
	var days int
	if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
		return time.Duration(days) * 24 * time.Hour, nil
	}
	var weeks int
	if _, err := fmt.Sscanf(s, "%dw", &weeks); err == nil {
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// DefaultConfig returns the daemon's built-in schedule defaults.
func DefaultConfig() *YAMLConfig {
	return &YAMLConfig{
		Entries: []YAMLEntry{
			{ID: "license-headers-daily", Name: "License Headers", Scanner: "license-headers", Interval: "24h", Enabled: true},
			{ID: "todo-census-daily", Name: "TODO Census", Scanner: "todo-census", Interval: "24h", Enabled: true},
			{ID: "dependency-freshness-weekly", Name: "Dependency Freshness", Scanner: "dependency-freshness", Interval: "7d", Enabled: true},
		},
	}
}

// SaveDefaultConfig writes the built-in defaults to path.
func SaveDefaultConfig(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshaling scheduler defaults: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
