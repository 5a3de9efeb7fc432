package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ignite/delivery-engine/internal/config"
	"github.com/ignite/delivery-engine/internal/pkg/distlock"
	"github.com/ignite/delivery-engine/internal/pkg/logger"
	"github.com/ignite/delivery-engine/internal/platform"
	"github.com/ignite/delivery-engine/internal/service/sending"
	"github.com/ignite/delivery-engine/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	platform.ConfigureLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := platform.OpenDB(ctx, cfg.Database)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := platform.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Error("redis misconfigured", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	svcs := platform.NewServices(db, cfg.Delivery)

	var sender sending.Sender = sending.NewLogSender()
	if cfg.SES.Enabled {
		ses, err := worker.NewSESSender(ctx, cfg.SES)
		if err != nil {
			logger.Error("ses sender unavailable", "error", err)
			os.Exit(1)
		}
		sender = ses
	}
	logger.Info("sender configured", "provider", sender.Name())

	var limiter *worker.RateLimiter
	if rdb != nil {
		limiter = worker.NewRateLimiter(rdb, cfg.Dispatcher.SendRatePerSecond)
	}

	dispatcher := worker.NewDispatcher(svcs.Messages, sender, worker.DispatcherOptions{
		Interval:  cfg.Dispatcher.Interval(),
		BatchSize: cfg.Dispatcher.BatchSize,
		Workers:   cfg.Dispatcher.Workers,
		Limiter:   limiter,
	})

	lock := distlock.New(rdb, db, "stale-recovery", 2*cfg.Dispatcher.RecoveryInterval())
	recovery := worker.NewRecoveryWorker(svcs.Messages, lock, cfg.Dispatcher.RecoveryInterval(), cfg.Dispatcher.StaleAfter())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); dispatcher.Start(ctx) }()
	go func() { defer wg.Done(); recovery.Start(ctx) }()
	logger.Info("worker running",
		"workers", cfg.Dispatcher.Workers,
		"batch", cfg.Dispatcher.BatchSize,
		"rate_limited", limiter != nil)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	cancel()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("worker shutdown timed out")
	}
	logger.Info("worker stopped", "stats", dispatcher.Stats())
}
