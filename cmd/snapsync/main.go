// Package main is the entry point for the snapsync synchronizer.
//
// snapsync keeps remote document collections and local tab-delimited
// snapshot files on a file-storage service in sync, in both directions.
// Configuration is read from CLI flags and a YAML config file; API
// tokens come from environment variables.
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

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/vibevesselio/snapsync/internal/audit"
	"github.com/vibevesselio/snapsync/internal/config"
	"github.com/vibevesselio/snapsync/internal/drive"
	"github.com/vibevesselio/snapsync/internal/engine"
	"github.com/vibevesselio/snapsync/internal/locksvc"
	"github.com/vibevesselio/snapsync/internal/notion"
	"github.com/vibevesselio/snapsync/internal/registry"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "snapsync: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	configPath := flag.String("config", "snapsync.yaml", "Path to the YAML config file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	once := flag.Bool("once", false, "Run a single pass and exit even if the config sets an interval")
	interval := flag.Duration("interval", 0, "Time between passes in daemon mode (overrides config)")
	rootFolder := flag.String("root-folder", "", "Storage folder id holding collection folders (overrides config)")
	allowDestructive := flag.Bool("allow-destructive-schema", false, "Allow remote property deletion during schema reconciliation (overrides config)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			val := a.Value.Any()
			skip := false
			switch t := val.(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case int64:
				skip = t == 0
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if set["root-folder"] {
		cfg.RootFolderID = *rootFolder
	}
	if set["allow-destructive-schema"] {
		cfg.AllowDestructiveSchema = *allowDestructive
	}
	if set["interval"] {
		cfg.Interval = config.Duration(*interval)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	remoteToken := os.Getenv("SNAPSYNC_REMOTE_TOKEN")
	if remoteToken == "" {
		return fmt.Errorf("SNAPSYNC_REMOTE_TOKEN is not set")
	}
	storageToken := os.Getenv("SNAPSYNC_STORAGE_TOKEN")
	if storageToken == "" {
		return fmt.Errorf("SNAPSYNC_STORAGE_TOKEN is not set")
	}

	remote := notion.NewClient(remoteToken)
	if cfg.Remote.BaseURL != "" {
		remote.SetBaseURL(cfg.Remote.BaseURL)
	}
	store := drive.NewClient(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: storageToken}))
	if cfg.Storage.BaseURL != "" {
		store.SetBaseURLs(cfg.Storage.BaseURL, cfg.Storage.UploadURL)
	}

	var locks locksvc.Locker
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
		locks = locksvc.NewRedisLocker(rdb, "snapsync")
	} else {
		locks = locksvc.NewMemoryLocker()
	}

	log := audit.NewSlog(logger)
	eng := engine.New(remote, store, locks, log, engine.Options{
		ConflictMode:           engine.ConflictMode(cfg.ConflictMode),
		AllowDestructiveSchema: cfg.AllowDestructiveSchema,
		ArchiveRetention:       cfg.ArchiveRetention,
		LifecycleProperty:      cfg.Lifecycle.Property,
		LifecycleInitial:       cfg.Lifecycle.Initial,
		LifecycleDisabled:      cfg.Lifecycle.Disabled,
	})

	stateDir := cfg.StateDir
	if stateDir == "" {
		stateDir = filepath.Dir(*configPath)
	}
	sink, err := audit.NewFileSink(filepath.Join(stateDir, "runs.jsonl"), &audit.LogSink{Log: log})
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	pub, err := registry.NewFilePublisher(filepath.Join(stateDir, "registry.jsonl"))
	if err != nil {
		return fmt.Errorf("open registry projection: %w", err)
	}
	runner := engine.NewRunner(eng, engine.RunnerConfig{
		RootFolderID: cfg.RootFolderID,
		Collections:  cfg.Collections,
		StatePath:    filepath.Join(stateDir, "rotation.json"),
		MaxRuntime:   cfg.MaxRuntime.Std(),
	}, sink, pub)

	if cfg.Interval <= 0 || *once {
		_, err := runner.Run(ctx)
		return err
	}
	return runDaemon(ctx, runner, *configPath, cfg.Interval.Std())
}

// runDaemon runs a pass every interval until the context is canceled.
// A write to the config file triggers an immediate pass; config changes
// take effect on the next process start.
func runDaemon(ctx context.Context, runner *engine.Runner, configPath string, interval time.Duration) error {
	kick := make(chan struct{}, 1)
	if err := watchConfig(ctx, configPath, kick); err != nil {
		slog.WarnContext(ctx, "config watch unavailable", "err", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := runner.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "pass failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-kick:
			slog.InfoContext(ctx, "config touched, starting immediate pass")
			ticker.Reset(interval)
		}
	}
}

// watchConfig signals kick when the config file is written.
func watchConfig(ctx context.Context, path string, kick chan<- struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					select {
					case kick <- struct{}{}:
					default:
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "error watching config", "err", err)
			}
		}
	}()
	return nil
}
