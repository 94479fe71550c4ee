package store

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/personakit/personakit/server/profile"
)

// memDriver is an in-memory Driver for facade tests.
type memDriver struct {
	quota   map[string]*QuotaUsage
	turns   []*ChatTurn
	getErr  error
	incErr  error
	upserts int
	nextID  int32
}

func newMemDriver() *memDriver {
	return &memDriver{quota: map[string]*QuotaUsage{}}
}

func (d *memDriver) Migrate(context.Context) error { return nil }
func (d *memDriver) Close() error                  { return nil }

func (d *memDriver) GetQuotaUsage(_ context.Context, userID string) (*QuotaUsage, error) {
	if d.getErr != nil {
		return nil, d.getErr
	}
	usage, ok := d.quota[userID]
	if !ok {
		return nil, nil
	}
	cp := *usage
	return &cp, nil
}

func (d *memDriver) UpsertQuotaUsage(_ context.Context, upsert *UpsertQuotaUsage) (*QuotaUsage, error) {
	d.upserts++
	usage := &QuotaUsage{
		UserID:        upsert.UserID,
		Tier:          upsert.Tier,
		UsedCount:     upsert.UsedCount,
		WindowResetAt: upsert.WindowResetAt,
	}
	d.quota[upsert.UserID] = usage
	cp := *usage
	return &cp, nil
}

func (d *memDriver) IncrementQuotaUsage(_ context.Context, userID string) (int32, error) {
	if d.incErr != nil {
		return 0, d.incErr
	}
	usage, ok := d.quota[userID]
	if !ok {
		return 0, errors.Errorf("no quota row for %s", userID)
	}
	usage.UsedCount++
	return usage.UsedCount, nil
}

func (d *memDriver) CreateChatTurn(_ context.Context, create *CreateChatTurn) (*ChatTurn, error) {
	d.nextID++
	turn := &ChatTurn{
		ID:        d.nextID,
		UID:       create.UID,
		UserID:    create.UserID,
		PersonaID: create.PersonaID,
		Role:      create.Role,
		Content:   create.Content,
		CreatedTs: create.CreatedTs,
	}
	d.turns = append(d.turns, turn)
	return turn, nil
}

func (d *memDriver) ListChatTurns(_ context.Context, find *FindChatTurn) ([]*ChatTurn, error) {
	var out []*ChatTurn
	for _, turn := range d.turns {
		if turn.UserID == find.UserID && turn.PersonaID == find.PersonaID {
			out = append(out, turn)
		}
	}
	return out, nil
}

func (d *memDriver) DeleteChatTurns(_ context.Context, userID, personaID string) error {
	kept := d.turns[:0]
	for _, turn := range d.turns {
		if turn.UserID != userID || turn.PersonaID != personaID {
			kept = append(kept, turn)
		}
	}
	d.turns = kept
	return nil
}

func testProfile() *profile.Profile {
	return &profile.Profile{
		QuotaLimits: map[string]int32{profile.DefaultTier: 30, "pro": 200},
	}
}

func TestGetQuotaRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("first use creates a fresh window", func(t *testing.T) {
		driver := newMemDriver()
		s := New(driver, testProfile())

		record, err := s.GetQuotaRecord(ctx, "u1", "free")
		require.NoError(t, err)
		require.Equal(t, int32(0), record.UsedCount)
		require.Equal(t, int32(30), record.DailyLimit)
		require.Equal(t, 1, driver.upserts)
		require.Greater(t, record.WindowResetAt, time.Now().Unix())
	})

	t.Run("current window is returned as is", func(t *testing.T) {
		driver := newMemDriver()
		s := New(driver, testProfile())

		reset := time.Now().Add(2 * time.Hour).Unix()
		driver.quota["u1"] = &QuotaUsage{UserID: "u1", Tier: "free", UsedCount: 7, WindowResetAt: reset}

		record, err := s.GetQuotaRecord(ctx, "u1", "free")
		require.NoError(t, err)
		require.Equal(t, int32(7), record.UsedCount)
		require.Equal(t, reset, record.WindowResetAt)
		require.Zero(t, driver.upserts)
	})

	t.Run("expired window rolls forward with zero usage", func(t *testing.T) {
		driver := newMemDriver()
		s := New(driver, testProfile())

		driver.quota["u1"] = &QuotaUsage{
			UserID:        "u1",
			Tier:          "free",
			UsedCount:     30,
			WindowResetAt: time.Now().Add(-time.Minute).Unix(),
		}

		record, err := s.GetQuotaRecord(ctx, "u1", "free")
		require.NoError(t, err)
		require.Equal(t, int32(0), record.UsedCount)
		require.Greater(t, record.WindowResetAt, time.Now().Unix())
		require.Equal(t, 1, driver.upserts)
	})

	t.Run("empty tier falls back to the default tier", func(t *testing.T) {
		driver := newMemDriver()
		s := New(driver, testProfile())

		record, err := s.GetQuotaRecord(ctx, "u1", "")
		require.NoError(t, err)
		require.Equal(t, profile.DefaultTier, record.Tier)
		require.Equal(t, int32(30), record.DailyLimit)
	})

	t.Run("pro tier carries its own limit", func(t *testing.T) {
		driver := newMemDriver()
		s := New(driver, testProfile())

		record, err := s.GetQuotaRecord(ctx, "u1", "pro")
		require.NoError(t, err)
		require.Equal(t, int32(200), record.DailyLimit)
	})

	t.Run("driver failure surfaces", func(t *testing.T) {
		driver := newMemDriver()
		driver.getErr = errors.New("db gone")
		s := New(driver, testProfile())

		_, err := s.GetQuotaRecord(ctx, "u1", "free")
		require.Error(t, err)
	})
}

func TestChargeQuota(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the incremented count", func(t *testing.T) {
		driver := newMemDriver()
		s := New(driver, testProfile())

		_, err := s.GetQuotaRecord(ctx, "u1", "free")
		require.NoError(t, err)

		used, err := s.ChargeQuota(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, int32(1), used)

		used, err = s.ChargeQuota(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, int32(2), used)
	})

	t.Run("driver failure surfaces", func(t *testing.T) {
		driver := newMemDriver()
		driver.incErr = errors.New("db gone")
		s := New(driver, testProfile())

		_, err := s.ChargeQuota(ctx, "u1")
		require.Error(t, err)
	})
}

func TestQuotaRecordRemaining(t *testing.T) {
	record := &QuotaRecord{DailyLimit: 10, UsedCount: 4}
	require.Equal(t, int32(6), record.Remaining())

	record.UsedCount = 12
	require.Equal(t, int32(0), record.Remaining())
}

func TestNextWindowReset(t *testing.T) {
	now := time.Date(2025, 6, 15, 13, 45, 0, 0, time.UTC)
	reset := nextWindowReset(now)
	require.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC).Unix(), reset)

	// Just before midnight still rolls to the next day.
	now = time.Date(2025, 6, 15, 23, 59, 59, 0, time.UTC)
	require.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC).Unix(), nextWindowReset(now))
}
