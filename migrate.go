package main

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrateDatabase applies any pending migrations to the SQLite database at
// databasePath and records the resulting schema version in telemetry.
// Running it repeatedly is a no-op and records the same version each time.
func MigrateDatabase(databasePath string, telemetry TelemetrySink) (string, error) {
	trimmed := strings.TrimSpace(databasePath)
	if trimmed == "" {
		return "", &PersistenceError{Kind: PersistenceBlankDatabaseURL}
	}

	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return "", &PersistenceError{Kind: PersistenceConnectionFailed, Message: err.Error()}
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return "", &PersistenceError{Kind: PersistenceForeignKeysEnableFailed, Message: err.Error()}
	}

	migrationFS, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return "", &PersistenceError{Kind: PersistenceMigrationFailed, Message: err.Error()}
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrationFS)
	if err != nil {
		return "", &PersistenceError{Kind: PersistenceMigrationFailed, Message: err.Error()}
	}
	if _, err := provider.Up(context.Background()); err != nil {
		return "", &PersistenceError{Kind: PersistenceMigrationFailed, Message: err.Error()}
	}

	version, err := readSchemaVersion(db)
	if err != nil {
		return "", err
	}

	telemetry.Record(SchemaVersionEvent(version))
	return version, nil
}
