// Package database opens the directory database and applies its schema.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver for database/sql
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database types.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

//go:embed migrations
var migrations embed.FS

// DriverName returns the database/sql driver for a database type.
func DriverName(dbType string) (string, error) {
	switch dbType {
	case TypeSQLite:
		return "sqlite3", nil
	case TypePostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported database type %q", dbType)
	}
}

// Connect creates a database connection using sqlx.
func Connect(ctx context.Context, dbType, dsn string) (*sqlx.DB, error) {
	driverName, err := DriverName(dbType)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dbType == TypeSQLite {
		// SQLite allows one writer; a single connection also keeps in-memory databases alive.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	return db, nil
}

func newMigrate(db *sqlx.DB, dbType string) (*migrate.Migrate, error) {
	var (
		driver database.Driver
		err    error
	)
	switch dbType {
	case TypeSQLite:
		driver, err = sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	case TypePostgres:
		driver, err = postgres.WithInstance(db.DB, &postgres.Config{})
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("creating migration driver: %w", err)
	}

	src, err := iofs.New(migrations, "migrations/"+dbType)
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dbType, driver)
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}
	return m, nil
}

// The migrate instances below are not closed: closing them closes db.

// Migrate applies all pending migrations.
func Migrate(db *sqlx.DB, dbType string) error {
	m, err := newMigrate(db, dbType)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown reverts all migrations.
func MigrateDown(db *sqlx.DB, dbType string) error {
	m, err := newMigrate(db, dbType)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Version returns the applied schema version. A database without
// migrations reports version 0.
func Version(db *sqlx.DB, dbType string) (uint, bool, error) {
	m, err := newMigrate(db, dbType)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading migration version: %w", err)
	}
	return v, dirty, nil
}
