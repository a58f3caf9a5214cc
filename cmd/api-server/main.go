package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/api"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/directory"
	"github.com/hackgods/clinic-appointments/internal/logger"
	"github.com/hackgods/clinic-appointments/internal/notify"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

var version = "dev"

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

	lg.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: cfg.PostgresPool.MaxConns,
		MinConns: cfg.PostgresPool.MinConns,
	})
	cancelPg()
	if err != nil {
		lg.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	lg.Info("connected to Postgres")

	if cfg.MigrateOnStart {
		if err := db.Migrate(rootCtx, pgPool); err != nil {
			lg.Fatal("migration error", zap.Error(err))
		}
		v, _ := db.MigrationVersion(rootCtx, pgPool)
		lg.Info("migrations applied", zap.Int64("version", v))
	}

	// Connect Redis
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

	queue := redisclient.NewNotificationQueue(rdb, cfg.Notify.Queue)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)

	dirStore := directory.NewPgStore(pgPool)
	svc := appointment.NewService(appointment.NewPgRepository(pgPool), dirStore, locker, queue, lg.Named("appointment"))
	doctors := directory.NewStatusService(dirStore, svc, lg.Named("directory"))

	if cfg.Notify.Inline {
		dispatcher := notify.NewDispatcher(queue, queue, newNotifier(cfg, lg), notify.DispatcherConfig{
			MaxAttempts:  cfg.Notify.MaxAttempts,
			RetryBackoff: cfg.Notify.RetryBackoff,
		}, lg.Named("notify"))
		go func() {
			if err := dispatcher.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("inline dispatcher stopped", zap.Error(err))
			}
		}()
		lg.Info("inline notification dispatcher started", zap.String("queue", cfg.Notify.Queue))
	}

	router := api.NewRouter(api.RouterConfig{
		Appointments: svc,
		Doctors:      doctors,
		Health:       api.NewHealthHandler(pgPool, rdb, cfg.Env, version),
		JWTSecret:    cfg.JWTSecret,
		Logger:       lg.Named("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		lg.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	lg.Info("shutting down api-server", zap.Duration("timeout", cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newNotifier(cfg config.Config, lg *zap.Logger) notify.Notifier {
	if cfg.SMTP.Enabled() {
		return notify.NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	}
	return notify.NewLogNotifier(lg.Named("notifier"))
}
