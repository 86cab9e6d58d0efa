// Command sandkasten runs commands under a stored sandbox profile.
//
// When respawned by its own executor it carries activation markers in the
// environment and restricts itself before doing anything else; otherwise it
// acts as the driver: compile the active profile, spawn the target, stream
// its output.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/codefionn/sandkasten/internal/config"
	"github.com/codefionn/sandkasten/internal/logger"
	"github.com/codefionn/sandkasten/internal/policy"
	"github.com/codefionn/sandkasten/internal/profile"
	"github.com/codefionn/sandkasten/internal/sandbox"
)

func main() {
	// Self-activation must be the first thing this process does: before
	// flag parsing, config loading, or any file access. A failure here is
	// fatal by design; continuing would mean running unsandboxed while
	// the parent believes isolation is active.
	if err := sandbox.ActivateIfRequested(); err != nil {
		fmt.Fprintf(os.Stderr, "sandkasten: fatal: %v\n", err)
		os.Exit(1)
	}

	if err := run(os.Args[1:]); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "sandkasten: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("sandkasten", flag.ContinueOnError)
	configPath := flags.String("config", config.DefaultPath(), "path to the config file")
	logLevel := flags.String("log-level", "", "override the configured log level")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	if err := logger.Init(logger.ParseLevel(level), cfg.LogFile); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer logger.Global().Close()

	rest := flags.Args()
	if len(rest) == 0 {
		return errors.New("usage: sandkasten [flags] run|profiles|violations ...")
	}

	switch rest[0] {
	case "run":
		return cmdRun(cfg, *configPath, rest[1:])
	case "profiles":
		return cmdProfiles(cfg)
	case "violations":
		return cmdViolations(cfg, rest[1:])
	default:
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func cmdRun(cfg *config.Config, configPath string, args []string) error {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	profileName := flags.String("profile", "", "profile name (default: the active profile)")
	cwd := flags.String("cwd", "", "working directory of the target (default: current directory)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	target := flags.Args()
	if len(target) == 0 {
		return errors.New("usage: sandkasten run [-profile name] [-cwd dir] command [args...]")
	}

	workDir := *cwd
	if workDir == "" {
		var err error
		if workDir, err = os.Getwd(); err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
	}
	projectPath, err := filepath.Abs(workDir)
	if err != nil {
		return fmt.Errorf("resolve project path: %w", err)
	}

	store, err := policy.OpenStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	selected, err := selectProfile(store, *profileName)
	if err != nil {
		return err
	}

	rules, err := store.ListRules(selected.ID)
	if err != nil {
		return err
	}
	compiled := profile.Compile(rules, projectPath)
	logger.Info("profile %q compiled to %d operations for %s",
		selected.Name, len(compiled.Operations), projectPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Hot-reload keeps long runs observable without restarting them.
	if err := config.Watch(ctx, configPath, func(c *config.Config) {
		logger.Global().SetLevel(logger.ParseLevel(c.LogLevel))
	}); err != nil {
		logger.Warn("config watcher unavailable: %v", err)
	}

	executor := sandbox.FromConfig(compiled, cfg, sandbox.WithProfileID(selected.ID))
	cmd := executor.PrepareAsyncCommand(ctx, target[0], target[1:], projectPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	logger.Info("run %s: %v", executor.RunID(), target)
	return cmd.Run()
}

func selectProfile(store *policy.Store, name string) (*policy.Profile, error) {
	if name == "" {
		active, err := store.GetActiveProfile()
		if err != nil {
			return nil, err
		}
		if active == nil {
			return nil, errors.New("no active sandbox profile; pass -profile or activate one")
		}
		return active, nil
	}
	profiles, err := store.ListProfiles()
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].Name == name {
			return &profiles[i], nil
		}
	}
	return nil, fmt.Errorf("profile %q not found", name)
}

func cmdProfiles(cfg *config.Config) error {
	store, err := policy.OpenStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	profiles, err := store.ListProfiles()
	if err != nil {
		return err
	}
	for _, p := range profiles {
		marker := " "
		if p.IsActive {
			marker = "*"
		}
		def := ""
		if p.IsDefault {
			def = " (default)"
		}
		fmt.Printf("%s %-20s %s%s\n", marker, p.Name, p.Description, def)
	}
	return nil
}

func cmdViolations(cfg *config.Config, args []string) error {
	flags := flag.NewFlagSet("violations", flag.ContinueOnError)
	limit := flags.Int("limit", 20, "maximum number of violations to show")
	if err := flags.Parse(args); err != nil {
		return err
	}

	store, err := policy.OpenStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	violations, err := store.ListViolations(*limit)
	if err != nil {
		return err
	}
	for _, v := range violations {
		pattern := ""
		if v.PatternValue != nil {
			pattern = *v.PatternValue
		}
		process := "?"
		if v.ProcessName != nil {
			process = *v.ProcessName
		}
		fmt.Printf("%s  %-18s %-30s %s\n",
			v.DeniedAt.Format("2006-01-02 15:04:05"), v.OperationType, pattern, process)
	}
	return nil
}
