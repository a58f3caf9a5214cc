package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/logger"
	"github.com/hackgods/clinic-appointments/internal/notify"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	lg.Info("notify-worker starting up",
		zap.String("env", cfg.Env),
		zap.String("queue", cfg.Notify.Queue),
		zap.Bool("smtp", cfg.SMTP.Enabled()),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		lg.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			lg.Warn("error closing redis", zap.Error(err))
		}
	}()
	lg.Info("connected to Redis")

	var notifier notify.Notifier = notify.NewLogNotifier(lg.Named("notifier"))
	if cfg.SMTP.Enabled() {
		notifier = notify.NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	}

	queue := redisclient.NewNotificationQueue(rdb, cfg.Notify.Queue)
	dispatcher := notify.NewDispatcher(queue, queue, notifier, notify.DispatcherConfig{
		MaxAttempts:  cfg.Notify.MaxAttempts,
		RetryBackoff: cfg.Notify.RetryBackoff,
	}, lg.Named("dispatcher"))

	if err := dispatcher.Run(rootCtx); err != nil {
		lg.Error("dispatcher stopped with error", zap.Error(err))
	}

	lg.Info("notify-worker stopped")
}
