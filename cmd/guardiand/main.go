// Command guardiand is the workspace guardian daemon: it discovers the
// workspace root, wires the scanner registry, task queue, scheduler, and
// file watcher, and runs until it receives SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dcyfr/guardian/internal/scanner"
	"github.com/dcyfr/guardian/internal/scanner/builtin"
	"github.com/dcyfr/guardian/internal/scheduler"
	"github.com/dcyfr/guardian/internal/supervisor"
	"github.com/dcyfr/guardian/internal/watcher"
	"github.com/dcyfr/guardian/internal/workspace"
)

func main() {
	root := flag.String("root", ".", "workspace root directory")
	scheduleConfig := flag.String("schedules", "", "path to a schedule overrides YAML file (defaults to built-ins)")
	watch := flag.Bool("watch", true, "enable the reactive file watcher")
	flag.Parse()

	if err := run(*root, *scheduleConfig, *watch); err != nil {
		fmt.Fprintln(os.Stderr, "guardiand:", err)
		os.Exit(1)
	}
}

func run(rootFlag, scheduleConfigPath string, watchEnabled bool) error {
	root, err := workspace.Discover(rootFlag)
	if err != nil {
		return err
	}
	paths := workspace.ForRoot(root)
	if err := paths.EnsureStateDir(); err != nil {
		return err
	}

	registry := scanner.NewRegistry()
	for _, s := range builtinScanners() {
		if err := registry.Register(s); err != nil {
			return fmt.Errorf("registering builtin scanners: %w", err)
		}
	}

	entries, err := loadScheduleEntries(scheduleConfigPath)
	if err != nil {
		return err
	}

	var roots []string
	var rules []watcher.Rule
	if watchEnabled {
		roots = []string{root}
		rules = defaultWatchRules()
	}

	sup, err := supervisor.New(supervisor.Config{
		WorkspaceRoot:    root,
		StateDir:         paths.StateDir,
		Registry:         registry,
		ScheduleDefaults: entries,
		WatcherRoots:     roots,
		WatcherRules:     rules,
	})
	if err != nil {
		return fmt.Errorf("building supervisor: %w", err)
	}

	ctx := context.Background()
	if err := sup.Start(ctx); err != nil {
		if errors.Is(err, supervisor.ErrAlreadyRunning) {
			return err
		}
		return fmt.Errorf("starting daemon: %w", err)
	}

	sup.Wait()
	return nil
}

func builtinScanners() []scanner.Scanner {
	return []scanner.Scanner{
		builtin.NewLicenseHeaderScanner("Copyright", []string{"*.go"}),
		builtin.NewTODOCensusScanner(),
		builtin.NewDependencyAuditScanner(0),
	}
}

func loadScheduleEntries(path string) ([]*scheduler.Entry, error) {
	var cfg *scheduler.YAMLConfig
	if path == "" {
		cfg = scheduler.DefaultConfig()
	} else {
		loaded, err := scheduler.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	return cfg.ToEntries()
}

func defaultWatchRules() []watcher.Rule {
	return []watcher.Rule{
		watcher.MustRule(`\.go$`, 0, "license-headers", "todo-census"),
		watcher.MustRule(`go\.(mod|sum)$`, 0, "dependency-freshness"),
	}
}
