package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/personakit/personakit/server/profile"
)

// QuotaUsage is the persisted per-user usage row for the current window.
type QuotaUsage struct {
	UserID        string
	Tier          string
	UsedCount     int32
	WindowResetAt int64
}

// UpsertQuotaUsage creates (or resets) a user's usage row for a new window.
type UpsertQuotaUsage struct {
	UserID        string
	Tier          string
	UsedCount     int32
	WindowResetAt int64
}

// QuotaRecord is a usage row joined with the limit of the user's tier.
type QuotaRecord struct {
	UserID        string
	Tier          string
	DailyLimit    int32
	UsedCount     int32
	WindowResetAt int64
}

func (r *QuotaRecord) Remaining() int32 {
	remaining := r.DailyLimit - r.UsedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetQuotaRecord returns the user's usage for the current daily window,
// creating the row on first use. An expired window is rolled forward
// lazily so a deployment without the external reset job stays correct.
func (s *Store) GetQuotaRecord(ctx context.Context, userID, tier string) (*QuotaRecord, error) {
	if tier == "" {
		tier = profile.DefaultTier
	}
	now := time.Now().UTC()

	usage, err := s.driver.GetQuotaUsage(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get quota usage")
	}
	if usage == nil || usage.WindowResetAt <= now.Unix() {
		usage, err = s.driver.UpsertQuotaUsage(ctx, &UpsertQuotaUsage{
			UserID:        userID,
			Tier:          tier,
			UsedCount:     0,
			WindowResetAt: nextWindowReset(now),
		})
		if err != nil {
			return nil, errors.Wrap(err, "reset quota window")
		}
	}
	return &QuotaRecord{
		UserID:        usage.UserID,
		Tier:          usage.Tier,
		DailyLimit:    s.profile.DailyLimit(usage.Tier),
		UsedCount:     usage.UsedCount,
		WindowResetAt: usage.WindowResetAt,
	}, nil
}

// ChargeQuota increments the user's usage by one and returns the new count.
// The increment is a single atomic UPDATE at the storage layer, so
// concurrent requests from the same user cannot lose updates.
//
// Charging happens before generation is awaited: a request that later
// fails downstream still costs one unit. That trade-off avoids holding
// any quota state across the full streaming duration.
func (s *Store) ChargeQuota(ctx context.Context, userID string) (int32, error) {
	used, err := s.driver.IncrementQuotaUsage(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "increment quota usage")
	}
	return used, nil
}

// nextWindowReset returns the next UTC midnight after now.
func nextWindowReset(now time.Time) int64 {
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1).Unix()
}
