package db

import (
	"errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/gravitational/trace"
)

// Migrate applies all pending migrations from the embedded filesystem.
// Running against an up-to-date schema is a no-op.
func Migrate(databaseURL string) error {
	source, err := iofs.New(MigrationFS, "migrations")
	if err != nil {
		return trace.Wrap(err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return trace.Wrap(err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return trace.Wrap(err)
	}
	return nil
}
