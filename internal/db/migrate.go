package db

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Supported DATABASE_URL backends.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// ParseURL splits a DATABASE_URL into its dialect and driver DSN.
// postgres:// and postgresql:// URLs are passed to pgx unchanged; sqlite://
// and sqlite: prefixes are stripped to a file path.
func ParseURL(databaseURL string) (dialect, dsn string, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DialectPostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return DialectSQLite, strings.TrimPrefix(databaseURL, "sqlite://"), nil
	case strings.HasPrefix(databaseURL, "sqlite:"):
		return DialectSQLite, strings.TrimPrefix(databaseURL, "sqlite:"), nil
	case strings.HasPrefix(databaseURL, "file:"):
		return DialectSQLite, databaseURL, nil
	}
	return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %q", databaseURL)
}

// Migrate applies all pending embedded migrations for dialect.
func Migrate(db *sql.DB, dialect string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations/"+dialect); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// RunMigrations opens a connection to the database and runs all pending
// migrations.
func RunMigrations(databaseURL string) error {
	dialect, dsn, err := ParseURL(databaseURL)
	if err != nil {
		return err
	}

	var conn *sql.DB
	if dialect == DialectSQLite {
		conn, err = OpenSQLite(dsn)
	} else {
		conn, err = sql.Open("pgx", dsn)
	}
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	return Migrate(conn, dialect)
}
