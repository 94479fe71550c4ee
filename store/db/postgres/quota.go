package postgres

import (
	"context"
	"database/sql"

	"github.com/personakit/personakit/store"
)

func (d *DB) GetQuotaUsage(ctx context.Context, userID string) (*store.QuotaUsage, error) {
	query := `SELECT user_id, tier, used_count, window_reset_at FROM quota_usage WHERE user_id = $1`
	usage := &store.QuotaUsage{}
	err := d.db.QueryRowContext(ctx, query, userID).Scan(&usage.UserID, &usage.Tier, &usage.UsedCount, &usage.WindowResetAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return usage, nil
}

func (d *DB) UpsertQuotaUsage(ctx context.Context, upsert *store.UpsertQuotaUsage) (*store.QuotaUsage, error) {
	stmt := `
		INSERT INTO quota_usage (user_id, tier, used_count, window_reset_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			used_count = EXCLUDED.used_count,
			window_reset_at = EXCLUDED.window_reset_at`
	if _, err := d.db.ExecContext(ctx, stmt, upsert.UserID, upsert.Tier, upsert.UsedCount, upsert.WindowResetAt); err != nil {
		return nil, err
	}
	return d.GetQuotaUsage(ctx, upsert.UserID)
}

func (d *DB) IncrementQuotaUsage(ctx context.Context, userID string) (int32, error) {
	var used int32
	stmt := `UPDATE quota_usage SET used_count = used_count + 1 WHERE user_id = $1 RETURNING used_count`
	if err := d.db.QueryRowContext(ctx, stmt, userID).Scan(&used); err != nil {
		return 0, err
	}
	return used, nil
}
