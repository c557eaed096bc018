// Package migrations embeds the history schema and applies it with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var schemaFiles embed.FS

// ErrNoSchema means the history database was never migrated.
var ErrNoSchema = errors.New("history database has no schema version")

// Latest returns the newest schema version shipped with the binary.
func Latest() (uint, error) {
	src, err := iofs.New(schemaFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("reading schema files: %w", err)
	}
	defer src.Close()
	return lastVersion(src)
}

// Status returns the schema version of db and whether a migration failed midway.
// An unmigrated database is ErrNoSchema.
func Status(db *sql.DB) (version uint, dirty bool, err error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, false, err
	}
	// m is not closed: that would close db, which the caller owns.
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, ErrNoSchema
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading schema version: %w", err)
	}
	return version, dirty, nil
}

// CheckDBMigrationStatus returns nil when db is at the latest schema version.
func CheckDBMigrationStatus(db *sql.DB) error {
	version, dirty, err := Status(db)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("history schema is dirty at version %d (a migration failed)", version)
	}
	latest, err := Latest()
	if err != nil {
		return err
	}
	switch {
	case version < latest:
		return fmt.Errorf("history schema is at version %d, latest is %d", version, latest)
	case version > latest:
		return fmt.Errorf("history schema version %d is newer than this binary (%d)", version, latest)
	}
	return nil
}

// MigrateUp applies every pending migration. An up-to-date database is left alone.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating history schema: %w", err)
	}
	return nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("reading schema files: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("wrapping history database: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// lastVersion walks the source from its first migration to its last.
func lastVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no schema files: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("reading schema files: %w", err)
		}
		v = next
	}
}
