package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/delivery-engine/internal/domain"
	"github.com/ignite/delivery-engine/internal/service/messaging"
)

var messageFields = []string{
	"id", "tenant_id", "idempotency_key", "recipient", "from_name", "from_address",
	"subject", "body", "category", "metadata", "status", "attempt_count", "max_attempts",
	"next_attempt_at", "provider_message_id", "last_error_code", "last_error_message",
	"created_at", "updated_at", "sent_at", "delivered_at",
}

func messageColumns(alias string) string {
	if alias == "" {
		return strings.Join(messageFields, ", ")
	}
	cols := make([]string, len(messageFields))
	for i, f := range messageFields {
		cols[i] = alias + "." + f
	}
	return strings.Join(cols, ", ")
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	var metadata []byte
	err := row.Scan(
		&m.ID, &m.TenantID, &m.IdempotencyKey, &m.Recipient, &m.FromName, &m.FromAddress,
		&m.Subject, &m.Body, &m.Category, &metadata, &m.Status, &m.AttemptCount, &m.MaxAttempts,
		&m.NextAttemptAt, &m.ProviderMessageID, &m.LastErrorCode, &m.LastErrorMessage,
		&m.CreatedAt, &m.UpdatedAt, &m.SentAt, &m.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return m, nil
}

// MessageRepo implements messaging.Repository against PostgreSQL.
type MessageRepo struct{ db *sql.DB }

// NewMessageRepo creates a Postgres-backed message repository.
func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

func (r *MessageRepo) getOne(ctx context.Context, op, where string, args ...interface{}) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns("")+` FROM messages WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) || isMalformedKey(err) {
		return nil, messaging.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	return r.getOne(ctx, "get message", `id = $1`, id)
}

func (r *MessageRepo) GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*domain.Message, error) {
	return r.getOne(ctx, "get message by idempotency key",
		`tenant_id = $1 AND idempotency_key = $2`, tenantID, key)
}

func (r *MessageRepo) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.Message, error) {
	return r.getOne(ctx, "get message by provider id",
		`provider_message_id = $1 ORDER BY created_at DESC LIMIT 1`, providerMessageID)
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message, created *domain.DeliveryEvent) (string, bool, error) {
	metadata, err := encodeMetadata(msg.Metadata)
	if err != nil {
		return "", false, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages
			(id, tenant_id, idempotency_key, recipient, from_name, from_address,
			 subject, body, category, metadata, status, attempt_count, max_attempts,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
		RETURNING id
	`, msg.ID, msg.TenantID, msg.IdempotencyKey, msg.Recipient, msg.FromName, msg.FromAddress,
		msg.Subject, msg.Body, msg.Category, metadata, msg.Status, msg.AttemptCount, msg.MaxAttempts,
		msg.CreatedAt, msg.UpdatedAt,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		// The conflicting insert has committed by the time DO NOTHING returns.
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM messages WHERE tenant_id = $1 AND idempotency_key = $2`,
			msg.TenantID, msg.IdempotencyKey,
		).Scan(&id)
		if err != nil {
			return "", false, fmt.Errorf("read existing message: %w", err)
		}
		return id, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("insert message: %w", err)
	}

	if err := insertEvent(ctx, tx, created); err != nil {
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("commit create: %w", err)
	}
	return id, true, nil
}

func (r *MessageRepo) Transition(ctx context.Context, id, providerEventID string, fn messaging.TransitionFunc) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	cur, err := scanMessage(tx.QueryRowContext(ctx,
		`SELECT `+messageColumns("")+` FROM messages WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) || isMalformedKey(err) {
		return false, messaging.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("lock message: %w", err)
	}

	duplicate := false
	if providerEventID != "" {
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM delivery_events WHERE provider_event_id = $1)`,
			providerEventID,
		).Scan(&duplicate)
		if err != nil {
			return false, fmt.Errorf("check provider event: %w", err)
		}
	}

	change, err := fn(ctx, cur, duplicate, ledgerTx(tx))
	if err != nil {
		return false, err
	}
	if change == nil {
		return false, nil
	}

	m := change.Message
	_, err = tx.ExecContext(ctx, `
		UPDATE messages SET
			status = $2, attempt_count = $3, next_attempt_at = $4,
			provider_message_id = $5, last_error_code = $6, last_error_message = $7,
			sent_at = $8, delivered_at = $9, updated_at = $10
		WHERE id = $1
	`, m.ID, m.Status, m.AttemptCount, m.NextAttemptAt,
		m.ProviderMessageID, m.LastErrorCode, m.LastErrorMessage,
		m.SentAt, m.DeliveredAt, m.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update message: %w", err)
	}

	if err := insertEvent(ctx, tx, change.Event); err != nil {
		// Another message's transition recorded the same provider event id
		// after our existence check.
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transition: %w", err)
	}
	return true, nil
}

func (r *MessageRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH due AS (
			SELECT id FROM messages
			WHERE status = 'queued'
			   OR (status = 'soft_bounced' AND next_attempt_at <= $1)
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		), claimed AS (
			UPDATE messages m
			SET status = 'processing', next_attempt_at = NULL, updated_at = $1
			FROM due
			WHERE m.id = due.id
			RETURNING `+messageColumns("m")+`
		), logged AS (
			INSERT INTO delivery_events (message_id, event_type, created_at)
			SELECT id, 'processing', $1 FROM claimed
		)
		SELECT `+messageColumns("")+` FROM claimed ORDER BY created_at
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed message: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed: %w", err)
	}
	return out, nil
}

func (r *MessageRepo) ListStale(ctx context.Context, status domain.MessageStatus, olderThan time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM messages
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3
	`, status, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *MessageRepo) Events(ctx context.Context, messageID string) ([]domain.DeliveryEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_id, event_type, COALESCE(provider_event_id, ''), provider_timestamp, created_at
		FROM delivery_events
		WHERE message_id = $1
		ORDER BY id
	`, messageID)
	if isMalformedKey(err) {
		return nil, messaging.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.DeliveryEvent
	for rows.Next() {
		var e domain.DeliveryEvent
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Type, &e.ProviderEventID, &e.ProviderTimestamp, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ping verifies connectivity for health checks.
func (r *MessageRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func insertEvent(ctx context.Context, tx *sql.Tx, e *domain.DeliveryEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO delivery_events (message_id, event_type, provider_event_id, provider_timestamp, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	`, e.MessageID, e.Type, e.ProviderEventID, e.ProviderTimestamp, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func encodeMetadata(md map[string]string) ([]byte, error) {
	if md == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}
