// Package platform opens the shared connections and assembles the services
// used by the server and worker binaries.
package platform

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/delivery-engine/internal/config"
	"github.com/ignite/delivery-engine/internal/pkg/logger"
	"github.com/ignite/delivery-engine/internal/repository/postgres"
	"github.com/ignite/delivery-engine/internal/service/deliverability"
	"github.com/ignite/delivery-engine/internal/service/messaging"
	"github.com/ignite/delivery-engine/internal/service/suppression"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// OpenDB connects to Postgres with the configured pool and verifies the
// connection.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenRedis returns nil without error when no URL is configured. A
// configured but unreachable Redis is logged and skipped.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, continuing without it", "error", err)
		client.Close()
		return nil, nil
	}
	return client, nil
}

// Services is the wired service graph.
type Services struct {
	Messages     *messaging.Service
	Suppressions *suppression.Service
	Gate         *deliverability.Gate
}

// NewServices builds the service graph over a Postgres handle.
func NewServices(db *sql.DB, cfg config.DeliveryConfig) *Services {
	ledger := postgres.NewSuppressionRepo(db)
	recorder := suppression.NewRecorder()
	gate := deliverability.NewGate(ledger, cfg.HardBounceThreshold)

	return &Services{
		Messages: messaging.NewService(postgres.NewMessageRepo(db), gate, recorder, messaging.Config{
			MaxAttempts:           cfg.MaxAttempts,
			BackoffBase:           cfg.BackoffBase(),
			ComplaintUnsubscribes: cfg.ComplaintUnsubscribes,
		}),
		Suppressions: suppression.NewService(ledger, recorder),
		Gate:         gate,
	}
}

// ConfigureLogger applies the log section of cfg to the default logger.
func ConfigureLogger(cfg config.LogConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.ShouldRedact())
}
