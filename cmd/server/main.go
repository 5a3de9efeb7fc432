package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/delivery-engine/internal/api"
	"github.com/ignite/delivery-engine/internal/config"
	"github.com/ignite/delivery-engine/internal/pkg/httpretry"
	"github.com/ignite/delivery-engine/internal/pkg/logger"
	"github.com/ignite/delivery-engine/internal/platform"
	"github.com/ignite/delivery-engine/internal/worker"
)

var version = "dev"

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
	logger.Info("connected to database")

	rdb, err := platform.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Error("redis misconfigured", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		logger.Info("connected to redis")
	}

	svcs := platform.NewServices(db, cfg.Delivery)
	confirm := httpretry.New(&http.Client{Timeout: 10 * time.Second}, httpretry.Options{})

	server := api.NewServer(cfg.Server, api.Deps{
		Messages:     svcs.Messages,
		Suppressions: svcs.Suppressions,
		Gate:         svcs.Gate,
		Webhooks:     worker.NewWebhookReceiver(svcs.Messages, confirm),
		Health:       api.NewHealthChecker(db, rdb, version),
	})

	go func() {
		addr := cfg.Server.Addr()
		logger.Info("http server listening", "addr", addr, "version", version)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
