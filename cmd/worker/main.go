package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"absensi/internal/config"
	"absensi/internal/logging"
	"absensi/internal/messaging"
	"absensi/internal/notify"
	"absensi/internal/queue"
	"absensi/internal/store"
)

// Worker consumes notification ids from the Redis queue, delivers them
// through the messaging gateway and periodically re-enqueues stale outbox rows.
func main() {
	cfg := config.Load()
	log := logging.Must(cfg.Env).Named("worker")
	defer func() { _ = log.Sync() }()

	if cfg.QueueBackend == "memory" {
		log.Fatal("worker needs QUEUE_BACKEND=redis; the api consumes the memory queue itself")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	if !redisClient.Healthy(ctx) {
		log.Warn("redis not reachable, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	sender := messaging.New(cfg.MessagingBaseURL, cfg.MessagingToken, cfg.NotifyTimeout)
	if err := sender.Health(ctx); err != nil {
		log.Warn("messaging gateway not available", zap.Error(err))
	} else {
		log.Info("messaging gateway connected")
	}

	templates, err := notify.NewTemplates(cfg.Location())
	if err != nil {
		log.Fatal("templates", zap.Error(err))
	}
	dispatcher := notify.NewDispatcher(notify.NewRepository(db.Client), sender,
		queue.NewRedisQueue(redisClient.Client, ""), templates,
		notify.Options{Timeout: cfg.NotifyTimeout}, log)

	sweeper, err := notify.StartSweeper(ctx, cfg.OutboxSweepSpec, cfg.OutboxGrace, dispatcher, log)
	if err != nil {
		log.Fatal("invalid OUTBOX_SWEEP_SPEC", zap.String("spec", cfg.OutboxSweepSpec), zap.Error(err))
	}

	log.Info("worker started, waiting for messages")
	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped", zap.Error(err))
	}

	<-sweeper.Stop().Done()
	log.Info("worker stopped")
}
