package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/personakit/personakit/server/profile"
	"github.com/personakit/personakit/store"

	// postgres driver.
	_ "github.com/lib/pq"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a postgres connection using the profile's DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres db")
	}
	return &DB{db: db, profile: profile}, nil
}

func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS quota_usage (
			user_id         TEXT NOT NULL PRIMARY KEY,
			tier            TEXT NOT NULL DEFAULT 'free',
			used_count      INTEGER NOT NULL DEFAULT 0,
			window_reset_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_turn (
			id         SERIAL PRIMARY KEY,
			uid        TEXT NOT NULL UNIQUE,
			user_id    TEXT NOT NULL,
			persona_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_turn_user_persona ON chat_turn(user_id, persona_id)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate postgres schema")
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
