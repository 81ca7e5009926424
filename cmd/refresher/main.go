package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"feedsync/internal/config"
	"feedsync/internal/fetcher"
	"feedsync/internal/ledger"
	"feedsync/internal/lock"
	"feedsync/internal/parser"
	"feedsync/internal/publisher"
	"feedsync/internal/reconciler"
	"feedsync/internal/scheduler"
	"feedsync/internal/service"
	"feedsync/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	feedStore := postgres.NewFeedStore(db)
	storyStore := postgres.NewStoryStore(db)
	subscriptionStore := postgres.NewSubscriptionStore(db)
	readMarkerStore := postgres.NewReadMarkerStore(db)
	txManager := postgres.NewTransactionManager(db)

	feedFetcher := fetcher.New(fetcher.Config{
		Timeout:        cfg.Fetch.Timeout,
		UserAgent:      cfg.Fetch.UserAgent,
		MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
		MaxAttempts:    cfg.Fetch.Retry.MaxAttempts,
		InitialBackoff: cfg.Fetch.Retry.InitialBackoff,
		MaxBackoff:     cfg.Fetch.Retry.MaxBackoff,
	}, logger)

	feedParser := parser.New(logger)
	storyReconciler := reconciler.New(storyStore, logger)
	unreadLedger := ledger.New(
		storyStore,
		subscriptionStore,
		readMarkerStore,
		txManager,
		rabbitMQ,
		cfg.Refresh.UnreadDays,
		logger,
	)
	leases := lock.NewManager(cfg.Refresh.LeaseTTL)

	refreshService := service.NewRefreshService(
		feedFetcher,
		feedParser,
		storyReconciler,
		unreadLedger,
		feedStore,
		leases,
		rabbitMQ,
		logger,
	)

	sched := scheduler.NewScheduler(
		refreshService,
		feedStore,
		cfg.Refresh.Interval,
		cfg.Refresh.Workers,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting feed refresher",
		"interval", cfg.Refresh.Interval,
		"workers", cfg.Refresh.Workers,
		"unread_days", cfg.Refresh.UnreadDays,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
