package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"leadflow_backend/internal/conversation"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/kv"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg, log)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	clock := clockwork.NewRealClock()
	followUps := scheduler.NewFollowUpRepository(pool)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize follow-up client", "error", err)
		panic("failed to initialize follow-up client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	dispatcher := scheduler.NewFollowUpDispatcher(client, followUps, clock, log)
	go dispatcher.Run(ctx)

	cleanupInterval := getDurationEnv("FOLLOW_UP_CLEANUP_INTERVAL", time.Hour)
	retention := time.Duration(getPositiveIntEnv("FOLLOW_UP_RETENTION_DAYS", 30)) * 24 * time.Hour
	cleanup := scheduler.NewFollowUpCleanup(followUps, clock, log, cleanupInterval, retention)
	go cleanup.Run(ctx)

	// With a shared store the retention sweep can also run here; the API
	// instances sweep their own in-process store.
	if cfg.GetKVBackend() == "redis" {
		redisClient, err := kv.NewRedisClient(cfg)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			panic("failed to connect to redis: " + err.Error())
		}
		defer func() { _ = redisClient.Close() }()

		store := kv.NewRedis(redisClient, "leadflow:", uuid.NewString(), log)
		sweeper := conversation.NewSweeper(conversation.NewStore(store, clock, log), clock, log,
			cfg.GetConversationRetention(), cfg.GetConversationSweepInterval(), cfg.GetConversationSweepDelay())
		go sweeper.Run(ctx)
	}

	worker, err := scheduler.NewWorker(cfg, followUps, clock, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

func getPositiveIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
