package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/envioex/backend-envioex/internal/config"
	"github.com/envioex/backend-envioex/internal/events"
	"github.com/envioex/backend-envioex/internal/lock"
	"github.com/envioex/backend-envioex/internal/notify"
	"github.com/envioex/backend-envioex/internal/obs"
	"github.com/envioex/backend-envioex/internal/queue"
	"github.com/envioex/backend-envioex/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "json"), envOrDefault("OBS_LOG_LEVEL", "info")).
		With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := openPostgres(ctx, cfg, logger)
	defer pool.Close()

	redisClient := openRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	taskQueue := queue.Enqueuer{
		R:           redisClient,
		Prefix:      cfg.QueueRedisPrefix,
		DedupTTL:    cfg.IdempotencyTTL,
		MaxAttempts: cfg.WebhookDefaultMaxAttempts,
	}
	dispatcher := &notify.Dispatcher{
		Store:              notify.NewStore(pool),
		Events:             events.NewStore(pool),
		Client:             notify.HttpClient(int(cfg.WebhookRequestTimeout/time.Millisecond), cfg.WebhookAllowInsecureTLS),
		Breaker:            resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("webhook"),
		Queue:              taskQueue,
		BackoffBaseSec:     cfg.WebhookBackoffBaseSec,
		DefaultMaxAttempts: cfg.WebhookDefaultMaxAttempts,
		Enabled:            cfg.WebhookDeliveryEnabled,
		Replay:             notify.RedisReplayProtector{Client: redisClient},
		ReplayTTL:          cfg.WebhookReplayTTL,
	}

	deliveryWorker := notify.DeliveryWorker{
		Dispatcher: dispatcher,
		Locker:     lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL:    cfg.LockTTL,
	}

	webhookQueueWorker := queue.Worker{
		R:                 redisClient,
		Store:             queue.NewStore(pool),
		Logger:            &logger,
		Prefix:            cfg.QueueRedisPrefix,
		Kind:              notify.JobKindDelivery,
		Concurrency:       cfg.QueueConcurrencyWebhook,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		SoftDeadline:      cfg.QueueSoftDeadline,
		RetryBase:         cfg.QueueBackoffBase,
		RetryJitter:       cfg.QueueBackoffJitter,
		Handler: func(jobCtx context.Context, job queue.Job) error {
			return deliveryWorker.Handle(jobCtx, job.Payload)
		},
	}

	// Deliveries whose next_attempt_at has passed are re-dispatched by polling
	// independently of the queue, so failed attempts are never stranded.
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := dispatcher.WorkOnce(ctx, 50); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error().Err(err).Msg("dispatch due webhooks")
				}
			}
		}
	}()

	logger.Info().Msg("worker starting")
	if err := webhookQueueWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

// openPostgres applies the pool sizing knobs the worker shares with the API,
// then verifies connectivity before any loop starts.
func openPostgres(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if cfg.DBStatementCacheCapacity >= 0 {
		poolConfig.ConnConfig.StatementCacheCapacity = cfg.DBStatementCacheCapacity
	}
	if cfg.DBMaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.DBMaxIdleConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func envOrDefault(key, fallback string) string {
	if trimmed := strings.TrimSpace(os.Getenv(key)); trimmed != "" {
		return trimmed
	}
	return fallback
}
