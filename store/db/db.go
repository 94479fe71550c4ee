// Package db selects the concrete storage driver for a profile.
package db

import (
	"github.com/pkg/errors"

	"github.com/personakit/personakit/server/profile"
	"github.com/personakit/personakit/store"
	"github.com/personakit/personakit/store/db/mysql"
	"github.com/personakit/personakit/store/db/postgres"
	"github.com/personakit/personakit/store/db/sqlite"
)

// NewDBDriver creates the driver named by the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "sqlite":
		return sqlite.NewDB(profile)
	case "mysql":
		return mysql.NewDB(profile)
	case "postgres":
		return postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q", profile.Driver)
	}
}
