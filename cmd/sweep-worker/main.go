package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clinovia/clinic-scheduling/internal/config"
	"github.com/clinovia/clinic-scheduling/internal/hold"
	"github.com/clinovia/clinic-scheduling/internal/logging"
	"github.com/clinovia/clinic-scheduling/internal/metrics"
	redisclient "github.com/clinovia/clinic-scheduling/internal/redis"
)

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

	logger.Info("sweep-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.SweepInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	holds := hold.NewRedisManager(rdb)
	engineMetrics := metrics.NewEngineMetrics(nil)

	// Run once at startup.
	runOnce(rootCtx, holds, engineMetrics, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping sweep worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, holds, engineMetrics, logger)
		}
	}
}

func runOnce(ctx context.Context, holds hold.Manager, m *metrics.EngineMetrics, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	removed, err := holds.SweepExpired(runCtx)
	if err != nil {
		logger.Error("sweep run error", zap.Error(err))
		return
	}
	m.ObserveSwept(removed)

	logger.Info("sweep run complete",
		zap.Int("removed", removed),
		zap.Duration("took", time.Since(start)),
	)
}
