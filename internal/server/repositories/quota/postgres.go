// Package quota implements the QuotaLedger: atomic per-user byte counters
// with a tier-bounded reservation check expressed as a single conditional
// database update.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/thilojaeggi/fynncloud-backend/internal/common"
	"github.com/thilojaeggi/fynncloud-backend/internal/dbx"
)

// Ledger is the QuotaLedger contract.
type Ledger interface {
	// Reserve succeeds iff used_bytes + amount <= tier.limit_bytes, in
	// which case used_bytes is incremented by amount in the same
	// statement. Fails with common.ErrQuotaExceeded otherwise.
	Reserve(ctx context.Context, ownerID string, amount int64) error

	// Release decrements used_bytes by amount, clamped at zero.
	Release(ctx context.Context, ownerID string, amount int64) error

	// Adjust applies a signed delta to used_bytes, clamped at zero on the
	// negative side. It does not perform the tier-bounded check Reserve
	// does; callers use it for update-in-place reconciliation where the
	// bound was already enforced by a prior Reserve.
	Adjust(ctx context.Context, ownerID string, delta int64) error

	// GetUsage returns the owner's current usage and tier limit.
	GetUsage(ctx context.Context, ownerID string) (usedBytes, limitBytes int64, err error)
}

// PostgresLedger implements Ledger over a dbx.DBTX.
type PostgresLedger struct {
	db dbx.DBTX
}

// NewPostgresLedger constructs a ledger bound to the given DBTX.
func NewPostgresLedger(db dbx.DBTX) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Reserve(ctx context.Context, ownerID string, amount int64) error {
	query := `
		UPDATE user_quotas uq
		SET used_bytes = uq.used_bytes + $1, updated_at = now()
		FROM tiers t
		WHERE uq.owner_id = $2
		  AND uq.tier_id = t.id
		  AND uq.used_bytes + $1 <= t.limit_bytes`

	res, err := l.db.ExecContext(ctx, query, amount, ownerID)
	if err != nil {
		return fmt.Errorf("reserve quota: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve quota rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrQuotaExceeded
	}
	return nil
}

func (l *PostgresLedger) Release(ctx context.Context, ownerID string, amount int64) error {
	query := `
		UPDATE user_quotas
		SET used_bytes = GREATEST(used_bytes - $1, 0), updated_at = now()
		WHERE owner_id = $2`

	res, err := l.db.ExecContext(ctx, query, amount, ownerID)
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return requireUserRow(res)
}

func (l *PostgresLedger) Adjust(ctx context.Context, ownerID string, delta int64) error {
	query := `
		UPDATE user_quotas
		SET used_bytes = GREATEST(used_bytes + $1, 0), updated_at = now()
		WHERE owner_id = $2`

	res, err := l.db.ExecContext(ctx, query, delta, ownerID)
	if err != nil {
		return fmt.Errorf("adjust quota: %w", err)
	}
	return requireUserRow(res)
}

func requireUserRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// GetUsage returns the owner's current usage and tier limit. It is a
// read-only convenience alongside the core reserve/release/adjust triad;
// neither the service nor the HTTP layer calls it.
func (l *PostgresLedger) GetUsage(ctx context.Context, ownerID string) (usedBytes, limitBytes int64, err error) {
	query := `
		SELECT uq.used_bytes, t.limit_bytes
		FROM user_quotas uq JOIN tiers t ON t.id = uq.tier_id
		WHERE uq.owner_id = $1`

	row := l.db.QueryRowContext(ctx, query, ownerID)
	if err := row.Scan(&usedBytes, &limitBytes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, common.ErrNotFound
		}
		return 0, 0, fmt.Errorf("get usage: %w", err)
	}
	return usedBytes, limitBytes, nil
}
