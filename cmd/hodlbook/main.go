package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/hodlbook/config"
	"github.com/alejandrodnm/hodlbook/internal/adapters/backend"
	"github.com/alejandrodnm/hodlbook/internal/adapters/notify"
	"github.com/alejandrodnm/hodlbook/internal/adapters/storage"
	"github.com/alejandrodnm/hodlbook/internal/adapters/stream"
	"github.com/alejandrodnm/hodlbook/internal/application/engine"
	"github.com/alejandrodnm/hodlbook/internal/domain"
	tracker "github.com/alejandrodnm/hodlbook/internal/notify"
	"github.com/alejandrodnm/hodlbook/internal/views"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "wait for the initial sync, print one view and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full table + fills (default: compact 1-line)")
	modeName := flag.String("mode", "book", "view to print: book|mine|filtered")
	wallet := flag.String("wallet", "", "wallet address for the personal streams (overrides config)")
	filter := flag.String("filter", "", "address for the filtered stream (overrides config)")
	shared := flag.String("order", "", "shared order uuid to load into the book")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *wallet != "" {
		cfg.Wallet.Address = *wallet
	}
	if *filter != "" {
		cfg.Wallet.FilterAddress = *filter
	}
	setupLogger(cfg.Log)

	mode, err := views.ParseMode(*modeName)
	if err != nil {
		slog.Error("invalid mode", "err", err)
		os.Exit(1)
	}

	slog.Info("hodlbook starting",
		"config", *configPath,
		"api", cfg.API.BaseURL,
		"ws", cfg.API.WSBaseURL,
		"wallet", cfg.Wallet.Address != "",
		"filter", cfg.Wallet.FilterAddress != "",
		"mode", mode,
		"once", *once,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN, cfg.Storage.NotificationsKey)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notes := tracker.NewTracker(store, nil, cfg.Engine.MaxNotifications)
	if err := notes.Load(ctx); err != nil {
		slog.Warn("failed to load notifications, starting empty", "err", err)
	}

	notifier := notify.NewConsole(*table || *once)
	notes.Subscribe(func(n domain.Notification) {
		if err := notifier.Alert(ctx, n); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	})

	eng := engine.New(
		backend.NewClient(cfg.API.BaseURL),
		stream.Factory{Base: cfg.API.WSBaseURL},
		notes,
		nil,
		engine.Config{
			Wallet:         cfg.Wallet.Address,
			Filter:         cfg.Wallet.FilterAddress,
			TickWindow:     cfg.TickWindow(),
			HighlightTTL:   cfg.HighlightTTL(),
			LoadedFallback: cfg.LoadedFallback(),
			Tombstones:     cfg.Engine.TombstoneCapacity,
		},
	)

	if *once {
		if err := runOnce(ctx, eng, notifier, mode, *shared); err != nil {
			slog.Error("snapshot failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := runWatch(ctx, cfg, eng, notifier, mode, *shared); err != nil {
		slog.Error("hodlbook exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("hodlbook stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
