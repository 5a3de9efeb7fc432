package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/delivery-engine/internal/domain"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
// Both ledger tables are append-only: this type only ever inserts.
type SuppressionRepo struct{ db dbtx }

// NewSuppressionRepo creates a Postgres-backed suppression ledger.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

// ledgerTx returns a ledger whose appends join tx.
func ledgerTx(tx *sql.Tx) *SuppressionRepo { return &SuppressionRepo{db: tx} }

func (r *SuppressionRepo) CountBounces(ctx context.Context, address string, kind domain.BounceKind) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppression_bounces WHERE address = $1 AND kind = $2`,
		address, kind,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count bounces: %w", err)
	}
	return n, nil
}

func (r *SuppressionRepo) HasUnsubscribe(ctx context.Context, address, tenantID string, category domain.Category) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM suppression_unsubscribes
			WHERE address = $1 AND category = $2 AND (tenant_id IS NULL OR tenant_id = $3)
		)`, address, category, tenantID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check unsubscribe: %w", err)
	}
	return exists, nil
}

func (r *SuppressionRepo) AppendBounce(ctx context.Context, b *domain.Bounce) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppression_bounces (id, address, kind, tenant_id, message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.Address, b.Kind, b.TenantID, b.MessageID, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("append bounce: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) AppendUnsubscribe(ctx context.Context, u *domain.Unsubscribe) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppression_unsubscribes (id, address, tenant_id, category, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Address, u.TenantID, u.Category, u.Source, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("append unsubscribe: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) History(ctx context.Context, address string) ([]domain.Unsubscribe, []domain.Bounce, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, address, tenant_id, category, source, created_at
		FROM suppression_unsubscribes
		WHERE address = $1
		ORDER BY created_at, id
	`, address)
	if err != nil {
		return nil, nil, fmt.Errorf("list unsubscribes: %w", err)
	}
	defer rows.Close()

	var unsubs []domain.Unsubscribe
	for rows.Next() {
		var u domain.Unsubscribe
		if err := rows.Scan(&u.ID, &u.Address, &u.TenantID, &u.Category, &u.Source, &u.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan unsubscribe: %w", err)
		}
		unsubs = append(unsubs, u)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate unsubscribes: %w", err)
	}

	brows, err := r.db.QueryContext(ctx, `
		SELECT id, address, kind, tenant_id, message_id, created_at
		FROM suppression_bounces
		WHERE address = $1
		ORDER BY created_at, id
	`, address)
	if err != nil {
		return nil, nil, fmt.Errorf("list bounces: %w", err)
	}
	defer brows.Close()

	var bounces []domain.Bounce
	for brows.Next() {
		var b domain.Bounce
		if err := brows.Scan(&b.ID, &b.Address, &b.Kind, &b.TenantID, &b.MessageID, &b.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan bounce: %w", err)
		}
		bounces = append(bounces, b)
	}
	if err := brows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate bounces: %w", err)
	}
	return unsubs, bounces, nil
}
