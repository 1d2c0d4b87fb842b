package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/khlayyel/alertsystem/internal/config"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB provides access to the SQLite database.
type DB struct {
	db  *sql.DB
	log *slog.Logger
}

// Options holds configuration for creating a new DB instance.
type Options struct {
	Logger *slog.Logger
	Config config.SQLiteConfig
}

// New opens the SQLite database, runs migrations and returns a DB ready for
// use. Writes are serialized through a single connection; SQLite allows only
// one writer at a time.
func New(opts Options) (*DB, error) {
	log := opts.Logger.With("component", "sqlite")

	if err := setupAndRunMigrations(opts.Config.Path, log); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", opts.Config.Path)
	if err != nil {
		log.Error("failed to open database", "error", err, "path", opts.Config.Path)
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := setPragmas(db); err != nil {
		db.Close()
		log.Error("failed to set pragmas", "error", err)
		return nil, fmt.Errorf("error setting pragmas: %w", err)
	}

	log.Debug("sqlite initialized", "path", opts.Config.Path)
	return &DB{db: db, log: log}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.db.Close()
}

func setPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("error executing %q: %w", pragma, err)
		}
	}
	return nil
}

// setupAndRunMigrations runs embedded migrations over a temporary connection.
func setupAndRunMigrations(dsn string, log *slog.Logger) error {
	migrationDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Error("failed to open migration database", "error", err, "path", dsn)
		return fmt.Errorf("error opening migration database: %w", err)
	}
	defer func() {
		_ = migrationDB.Close()
	}()

	if _, err := migrationDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("error setting busy_timeout on migration database: %w", err)
	}

	sourceFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("error accessing embedded migrations: %w", err)
	}
	sourceDriver, err := iofs.New(sourceFS, ".")
	if err != nil {
		return fmt.Errorf("error creating migration source: %w", err)
	}
	dbDriver, err := sqlite3.WithInstance(migrationDB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return fmt.Errorf("error creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migrations: %w", err)
	}
	log.Debug("migrations applied")
	return nil
}

// nullableTime converts a sql.NullTime into a *time.Time.
func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// timeArg converts a *time.Time into a driver-friendly value.
func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
