// cmd/library/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"libranexus/internal/circulation"
	"libranexus/internal/config"
	"libranexus/internal/library"
	"libranexus/internal/shell"
	"libranexus/internal/storage"
	"libranexus/internal/telemetry"
)

const usage = `usage: library [-config file] <command> [flags]

commands:
  demo      run the sample circulation scenario on an empty library
  shell     interactive shell on the stored library (-f file runs a script)
  overdue   list overdue books (-watch "cron expr" repeats on a schedule)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "library:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	global := flag.NewFlagSet("library", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	configPath := global.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "YAML configuration file")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(cfg.Log, cfg.Telemetry.ServiceName, os.Stderr)
	if err != nil {
		return err
	}
	providers, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.LogMetrics(shutdownCtx, logger); err != nil {
			logger.Warn("metrics unavailable", "error", err)
		}
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	newLibrary := func() *library.Library {
		return library.New(
			library.WithPolicy(circulation.Policy{
				MaxCheckouts: cfg.Policy.MaxCheckouts,
				DueInterval:  cfg.Policy.DueInterval(),
			}),
			library.WithRegistrationLimit(cfg.Membership.RegistrationsPerMinute, cfg.Membership.Burst),
			library.WithLogger(logger),
			library.WithTracerProvider(providers.TracerProvider),
			library.WithMeterProvider(providers.MeterProvider),
		)
	}

	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "demo":
		return runDemo(ctx, cmdArgs, newLibrary, store, cfg.Storage.Key, logger)
	case "shell":
		lib := newLibrary()
		if err := loadExisting(ctx, lib, store, cfg.Storage.Key, logger); err != nil {
			return err
		}
		return runShell(ctx, cmdArgs, lib, store, cfg.Storage.Key)
	case "overdue":
		return runOverdue(ctx, cmdArgs, newLibrary, store, cfg.Storage.Key, logger)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// loadExisting restores the stored snapshot; a missing snapshot leaves lib empty.
func loadExisting(ctx context.Context, lib *library.Library, store storage.Store, key string, logger *slog.Logger) error {
	err := lib.Load(ctx, store, key)
	if errors.Is(err, storage.ErrNotFound) {
		logger.InfoContext(ctx, "no stored library, starting empty", "key", key)
		return nil
	}
	return err
}

func runShell(ctx context.Context, args []string, lib *library.Library, store storage.Store, key string) error {
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)
	script := fs.String("f", "", "run commands from file instead of the terminal")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sh := shell.New(lib, store, key, os.Stdout)
	if *script == "" {
		home, _ := os.UserHomeDir()
		return sh.Interactive(ctx, filepath.Join(home, ".library_history"))
	}

	f, err := os.Open(*script)
	if err != nil {
		return fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return sh.Script(ctx, f)
}
