package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/clinovia/clinic-scheduling/internal/api"
	"github.com/clinovia/clinic-scheduling/internal/appointment"
	"github.com/clinovia/clinic-scheduling/internal/availability"
	"github.com/clinovia/clinic-scheduling/internal/booking"
	"github.com/clinovia/clinic-scheduling/internal/config"
	"github.com/clinovia/clinic-scheduling/internal/db"
	"github.com/clinovia/clinic-scheduling/internal/hold"
	"github.com/clinovia/clinic-scheduling/internal/ledger"
	"github.com/clinovia/clinic-scheduling/internal/logging"
	"github.com/clinovia/clinic-scheduling/internal/metrics"
	"github.com/clinovia/clinic-scheduling/internal/notify"
	redisclient "github.com/clinovia/clinic-scheduling/internal/redis"
	"github.com/clinovia/clinic-scheduling/internal/schedule"
	"github.com/clinovia/clinic-scheduling/internal/storage"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	var notifier notify.Notifier = notify.Nop{}
	if cfg.AMQPURL != "" {
		amqpConn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			logger.Fatal("amqp connection error", zap.Error(err))
		}
		defer func() { _ = amqpConn.Close() }()

		n, err := notify.NewAMQPNotifier(amqpConn, logger)
		if err != nil {
			logger.Fatal("amqp notifier init error", zap.Error(err))
		}
		notifier = n
		logger.Info("connected to AMQP", zap.String("queue", notify.QueueName))
	}

	var artifacts storage.Store = storage.Disabled{}
	if cfg.MinioEndpoint != "" {
		store, err := storage.NewMinioStore(rootCtx, storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, logger)
		if err != nil {
			logger.Fatal("object storage init error", zap.Error(err))
		}
		artifacts = store
	}

	engineMetrics := metrics.NewEngineMetrics(nil)

	locker := redisclient.NewRedisKeyLocker(rdb, cfg.LockTTL)
	holds := hold.NewRedisManager(rdb)

	schedRepo := schedule.NewPgRepository(pgPool)
	apptRepo := appointment.NewPgRepository(pgPool)
	ledgerRepo := ledger.NewPgRepository(pgPool)

	ledgerSvc := ledger.NewService(ledgerRepo, logger)
	apptSvc := appointment.NewService(apptRepo, ledgerSvc, locker, notifier, engineMetrics, logger)
	availSvc := availability.NewService(schedRepo, apptRepo, holds, logger)
	orchestrator := booking.NewOrchestrator(schedRepo, apptRepo, holds, ledgerSvc, availSvc, locker, engineMetrics, logger)

	router := api.NewRouter(api.RouterConfig{
		Booking:         orchestrator,
		Availability:    availSvc,
		Appointments:    apptSvc,
		Ledger:          ledgerSvc,
		BlockedDates:    schedRepo,
		Artifacts:       artifacts,
		PgPool:          pgPool,
		Redis:           rdb,
		Log:             logger,
		Env:             cfg.Env,
		Version:         version,
		PublicRateLimit: cfg.PublicRateLimit,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()
	logger.Info("api-server listening", zap.String("addr", srv.Addr))

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}
}
