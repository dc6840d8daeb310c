package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/petnest/settlement/internal/config"
	"github.com/petnest/settlement/internal/infra"
	"github.com/petnest/settlement/internal/logging"
	"github.com/petnest/settlement/internal/notification"
	"github.com/petnest/settlement/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if cfg.RunMigrations {
			if err := infra.Migrate(cfg.DatabaseURL, logger); err != nil {
				logger.Error("run migrations", "error", err)
				os.Exit(1)
			}
		}
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	notifier, closeNotifier, err := buildNotifier(cfg, cache, logger)
	if err != nil {
		logger.Error("build notifier", "error", err)
		os.Exit(1)
	}
	defer closeNotifier()

	srv, err := server.New(cfg, db, cache, notifier, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

// buildNotifier selects the event sink named by EVENT_SINK.
func buildNotifier(cfg config.Config, cache *redis.Client, logger *slog.Logger) (notification.Notifier, func(), error) {
	noop := func() {}
	switch cfg.Events.Sink {
	case "redis":
		if cache == nil {
			return nil, noop, fmt.Errorf("EVENT_SINK=redis requires REDIS_URL")
		}
		return notification.NewRedisNotifier(cache, cfg.Events.Channel), noop, nil
	case "kafka":
		n := notification.NewKafkaNotifier(notification.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.Channel, logger))
		return n, func() {
			if err := n.Close(); err != nil {
				logger.Warn("close kafka writer", "error", err)
			}
		}, nil
	default:
		return notification.NewLoggerNotifier(logger), noop, nil
	}
}
