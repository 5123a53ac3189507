package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chunkvault/internal/cv"
	"chunkvault/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// batchSize bounds the number of ids bound into one statement.
const batchSize = 750

// SQLiteDatabase implements cv.Database using SQLite.
type SQLiteDatabase struct {
	db     *sql.DB
	path   string
	logger cv.Logger
	clock  cv.Clock
}

var _ cv.Database = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens the database at path, or an in-memory database for ":memory:".
// A nil logger or clock selects the defaults.
func NewSQLiteDatabase(path string, logger cv.Logger, clock cv.Clock) (*SQLiteDatabase, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	s := NewSQLiteDatabaseFromDB(db, logger, clock)
	s.path = path
	return s, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection opened with OpenConnection.
func NewSQLiteDatabaseFromDB(db *sql.DB, logger cv.Logger, clock cv.Clock) *SQLiteDatabase {
	if logger == nil {
		logger = cv.NewNopLogger()
	}
	if clock == nil {
		clock = cv.RealClock{}
	}
	return &SQLiteDatabase{db: db, logger: logger, clock: clock}
}

// OpenConnection opens and configures a SQLite connection.
// The pool holds a single connection: an in-memory database exists per connection,
// and it serializes writers so transactions never hit SQLITE_BUSY.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return db, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Migrate applies pending migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// inTx runs fn in a transaction. Only tx may be used inside fn: the pool has one connection.
func (s *SQLiteDatabase) inTx(fn func(tx *sql.Tx) error) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// inBatches calls fn with consecutive slices of at most batchSize elements.
func inBatches[T any](items []T, fn func(batch []T) error) error {
	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))
		if err := fn(items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// placeholders returns "?,?,...,?" with n placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func args[T any](items []T, extra ...any) []any {
	a := make([]any, 0, len(extra)+len(items))
	a = append(a, extra...)
	for _, it := range items {
		a = append(a, it)
	}
	return a
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
