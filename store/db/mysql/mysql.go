package mysql

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/personakit/personakit/server/profile"
	"github.com/personakit/personakit/store"

	// mysql driver.
	_ "github.com/go-sql-driver/mysql"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a mysql connection using the profile's DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	db, err := sql.Open("mysql", profile.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql db")
	}
	return &DB{db: db, profile: profile}, nil
}

func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS `quota_usage` (" +
			"`user_id` VARCHAR(256) NOT NULL PRIMARY KEY, " +
			"`tier` VARCHAR(64) NOT NULL DEFAULT 'free', " +
			"`used_count` INT NOT NULL DEFAULT 0, " +
			"`window_reset_at` BIGINT NOT NULL" +
			")",
		"CREATE TABLE IF NOT EXISTS `chat_turn` (" +
			"`id` INT NOT NULL AUTO_INCREMENT PRIMARY KEY, " +
			"`uid` VARCHAR(256) NOT NULL UNIQUE, " +
			"`user_id` VARCHAR(256) NOT NULL, " +
			"`persona_id` VARCHAR(256) NOT NULL, " +
			"`role` VARCHAR(32) NOT NULL, " +
			"`content` TEXT NOT NULL, " +
			"`created_ts` BIGINT NOT NULL, " +
			"INDEX `idx_chat_turn_user_persona` (`user_id`, `persona_id`)" +
			")",
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate mysql schema")
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
