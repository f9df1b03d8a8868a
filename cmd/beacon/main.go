package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hypernymai/beacon/internal/announce"
	"github.com/hypernymai/beacon/internal/api"
	"github.com/hypernymai/beacon/internal/autofork"
	"github.com/hypernymai/beacon/internal/config"
	"github.com/hypernymai/beacon/internal/detect"
	"github.com/hypernymai/beacon/internal/forwarder"
	"github.com/hypernymai/beacon/internal/poller"
	slacknotify "github.com/hypernymai/beacon/internal/slack"
	"github.com/hypernymai/beacon/internal/store"
	"github.com/hypernymai/beacon/internal/weave"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("beacon starting",
		"port", cfg.Port,
		"autofork_url", cfg.AutoForkURL,
		"poll_interval", cfg.PollInterval,
		"watch_limit", cfg.WatchLimit,
		"ticker_max", cfg.TickerMax,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: Connect to database.
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	// Step 2: Session source and experiment store clients.
	sessions := autofork.New(cfg.AutoForkURL, cfg.FetchTimeout+time.Second)
	patterns := weave.NewSubprocessClient(cfg.WeavePython, cfg.WeaveScript, cfg.WeaveProject, cfg.SubmitTimeout)

	// Conditionally create the Slack notifier for forward notices.
	var notifier forwarder.Notifier
	if cfg.SlackBotToken != "" && cfg.SlackNotifyChannel != "" {
		notifier = slacknotify.NewNotifier(cfg.SlackBotToken, cfg.SlackNotifyChannel)
		slog.Info("Slack forward notifier enabled", "channel", cfg.SlackNotifyChannel)
	}

	// Step 3: Forwarder, with its contribution list restored from the store.
	fwd := forwarder.New(sessions, db, patterns, notifier, cfg.ContributionMax)
	fwd.LoadContributions(ctx)

	// Step 4: Poller.
	p := poller.New(sessions, db, fwd, poller.Config{
		PollInterval:    cfg.PollInterval,
		HealthInterval:  cfg.HealthInterval,
		FetchTimeout:    cfg.FetchTimeout,
		WatchLimit:      cfg.WatchLimit,
		SessionListSize: cfg.SessionListSize,
		TickerMax:       cfg.TickerMax,
	})

	// Step 5: Optionally announce admitted events over NATS.
	if cfg.NatsURL != "" {
		ann, err := announce.New(cfg.NatsURL)
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer ann.Close()
		p.SetPublisher(ann.PublishEvent)
		ann.AnnounceStartup()
		slog.Info("NATS announcer started", "nats_url", cfg.NatsURL)
	}

	p.Start(ctx)
	slog.Info("session poller started")

	// Step 6: HTTP API.
	srv := api.NewServer(db, p, fwd, sessions, detect.Detect, cfg.Port)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("beacon ready", "port", cfg.Port)

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	slog.Info("shutting down", "signal", sig)
	cancel()
	p.Wait()
	slog.Info("beacon stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
