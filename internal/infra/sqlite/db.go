// Package sqlite is the durable store for ledgers, projects and tasks.
// It uses modernc.org/sqlite (pure Go, no CGO) with a single writer
// connection, so every ledger mutation is serialized.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/guildboard/guildboard/internal/domain"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the storage directory.
const FileName = "guild.db"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repos implements domain.Repos over any querier.
type repos struct {
	q querier
}

// DB wraps the SQLite handle. Outside WithinTx each call runs in its own
// implicit transaction.
type DB struct {
	repos
	db   *sql.DB
	path string
}

var _ domain.Store = (*DB)(nil)

// Open creates dir if needed, opens the database inside it and applies the
// schema.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	dsn := "file:" + path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db := &DB{repos: repos{q: sqlDB}, db: sqlDB, path: path}
	if err := db.migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Close closes the database.
func (db *DB) Close() error {
	return db.db.Close()
}

// Migrate re-applies the schema. Statements are idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	return db.migrate(ctx)
}

func (db *DB) migrate(ctx context.Context) error {
	for _, stmt := range Migrations() {
		if _, err := db.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w (statement: %.60s)", err, strings.TrimSpace(stmt))
		}
	}
	return nil
}

// WithinTx runs fn inside a transaction. fn must only use the Repos it is
// handed; the outer DB shares the same single connection.
func (db *DB) WithinTx(ctx context.Context, fn func(tx domain.Repos) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&repos{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// Reset wipes every ledger, project, task and audit row. Schema stays.
func (db *DB) Reset(ctx context.Context) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range resetOrder {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// ─── Time Encoding ──────────────────────────────────────────────────────────

// timeLayout is fixed-width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullUser(o domain.OptionalUser) sql.NullString {
	id, ok := o.Get()
	return sql.NullString{String: string(id), Valid: ok}
}

func optionalUser(ns sql.NullString) domain.OptionalUser {
	if !ns.Valid {
		return domain.NoUser
	}
	return domain.SomeUser(domain.UserID(ns.String))
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
