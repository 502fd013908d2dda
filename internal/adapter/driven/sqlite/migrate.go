package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Schema names one of the embedded migration sets. The issuer and the
// verifier each own a separate database file with its own schema.
type Schema string

const (
	SchemaIssuer   Schema = "issuer"
	SchemaVerifier Schema = "verifier"
)

// RunMigrations applies all pending migrations of the given schema. It is safe
// to call on every startup; already-applied migrations are skipped. The first
// issuer migration seeds the worker sequence row, so a fresh database starts
// as an empty, already-persisted store.
func RunMigrations(db *sql.DB, schema Schema) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations/"+string(schema))
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run %s migrations: %w", schema, err)
	}

	return nil
}
