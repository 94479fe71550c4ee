package store

import (
	"context"

	"github.com/personakit/personakit/server/profile"
)

// Store wraps the database driver with quota-window and archive semantics.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// Driver is the set of database primitives each backend implements.
type Driver interface {
	Migrate(ctx context.Context) error
	Close() error

	GetQuotaUsage(ctx context.Context, userID string) (*QuotaUsage, error)
	UpsertQuotaUsage(ctx context.Context, upsert *UpsertQuotaUsage) (*QuotaUsage, error)
	IncrementQuotaUsage(ctx context.Context, userID string) (int32, error)

	CreateChatTurn(ctx context.Context, create *CreateChatTurn) (*ChatTurn, error)
	ListChatTurns(ctx context.Context, find *FindChatTurn) ([]*ChatTurn, error)
	DeleteChatTurns(ctx context.Context, userID, personaID string) error
}

func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		profile: profile,
		driver:  driver,
	}
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}
