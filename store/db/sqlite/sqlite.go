package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/personakit/personakit/server/profile"
	"github.com/personakit/personakit/store"

	// sqlite driver.
	_ "modernc.org/sqlite"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the sqlite database under the profile's data directory.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	dsn := profile.DSN
	if dsn == "" {
		dsn = filepath.Join(profile.Data, "personakit.db")
	}
	dsn = fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", dsn)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite db %s", dsn)
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
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
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
			return errors.Wrap(err, "migrate sqlite schema")
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
