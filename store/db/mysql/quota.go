package mysql

import (
	"context"
	"database/sql"

	"github.com/personakit/personakit/store"
)

func (d *DB) GetQuotaUsage(ctx context.Context, userID string) (*store.QuotaUsage, error) {
	query := "SELECT `user_id`, `tier`, `used_count`, `window_reset_at` FROM `quota_usage` WHERE `user_id` = ?"
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
	stmt := "INSERT INTO `quota_usage` (`user_id`, `tier`, `used_count`, `window_reset_at`) VALUES (?, ?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE `tier` = VALUES(`tier`), `used_count` = VALUES(`used_count`), `window_reset_at` = VALUES(`window_reset_at`)"
	if _, err := d.db.ExecContext(ctx, stmt, upsert.UserID, upsert.Tier, upsert.UsedCount, upsert.WindowResetAt); err != nil {
		return nil, err
	}
	return d.GetQuotaUsage(ctx, upsert.UserID)
}

func (d *DB) IncrementQuotaUsage(ctx context.Context, userID string) (int32, error) {
	stmt := "UPDATE `quota_usage` SET `used_count` = `used_count` + 1 WHERE `user_id` = ?"
	if _, err := d.db.ExecContext(ctx, stmt, userID); err != nil {
		return 0, err
	}
	var used int32
	if err := d.db.QueryRowContext(ctx, "SELECT `used_count` FROM `quota_usage` WHERE `user_id` = ?", userID).Scan(&used); err != nil {
		return 0, err
	}
	return used, nil
}
