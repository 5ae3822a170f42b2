package library

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects the backing store. For sqlite DSN may be left empty
// and Path is used instead.
type DatabaseConfig struct {
	Driver string
	DSN    string
	Path   string
}

// Database provides high-level helpers around a SQL connection.
type Database struct {
	db      *sql.DB
	driver  string
	builder sq.StatementBuilderType
}

// NewDatabase opens (or creates) the database described by cfg and applies
// schema migrations.
func NewDatabase(cfg DatabaseConfig) (*Database, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var dsn string
	switch driver {
	case DriverSQLite:
		dsn = cfg.DSN
		if dsn == "" {
			// Ensure directory exists so first-run succeeds.
			if dir := filepath.Dir(cfg.Path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create db dir: %w", err)
				}
			}
			// Immediate transactions serialize writers so the availability
			// check-and-set cannot interleave.
			dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", cfg.Path)
		}
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres requires a dsn")
		}
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	d := &Database{db: db, driver: driver, builder: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	if driver == DriverPostgres {
		d.builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}

	if err := d.applyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the DB.
func (d *Database) Close() error { return d.db.Close() }

// Ping checks connectivity.
func (d *Database) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func (d *Database) timestampType() string {
	if d.driver == DriverPostgres {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}

func (d *Database) applyMigrations(ctx context.Context) error {
	if d.driver == DriverSQLite {
		// WAL improves write concurrency.
		if _, err := d.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("enable WAL: %w", err)
		}
	}

	if _, err := d.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	q, args, err := d.builder.Select("value").From("meta").Where(sq.Eq{"key": "schema_version"}).ToSql()
	if err != nil {
		return err
	}
	_ = d.db.QueryRowContext(ctx, q, args...).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ts := d.timestampType()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS authors (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            photo_url TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS genres (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            isbn TEXT NOT NULL,
            author_id TEXT REFERENCES authors(id) ON DELETE SET NULL,
            genre_id TEXT REFERENCES genres(id) ON DELETE SET NULL,
            is_available BOOLEAN NOT NULL DEFAULT TRUE,
            summary TEXT NOT NULL DEFAULT '',
            photo_url TEXT NOT NULL DEFAULT '',
            pdf_url TEXT NOT NULL DEFAULT ''
        );`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            dob %[1]s,
            phone TEXT NOT NULL DEFAULT '',
            is_admin BOOLEAN NOT NULL DEFAULT FALSE,
            photo_url TEXT NOT NULL DEFAULT '',
            password_hash TEXT NOT NULL,
            password_salt TEXT NOT NULL,
            created_at %[1]s NOT NULL,
            updated_at %[1]s NOT NULL
        );`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS borrowals (
            id TEXT PRIMARY KEY,
            book_id TEXT NOT NULL REFERENCES books(id),
            member_id TEXT NOT NULL REFERENCES users(id),
            borrowed_date %[1]s NOT NULL,
            due_date %[1]s NOT NULL,
            status TEXT NOT NULL DEFAULT 'borrowed'
        );`, ts),
		`CREATE INDEX IF NOT EXISTS idx_borrowals_member ON borrowals(member_id);`,
		`CREATE INDEX IF NOT EXISTS idx_borrowals_book ON borrowals(book_id);`,
		`CREATE INDEX IF NOT EXISTS idx_books_author ON books(author_id);`,
		`CREATE INDEX IF NOT EXISTS idx_books_genre ON books(genre_id);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	q, args, err = d.builder.Insert("meta").Columns("key", "value").
		Values("schema_version", fmt.Sprint(schemaVersion)).
		Suffix("ON CONFLICT(key) DO UPDATE SET value=excluded.value").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Query helpers
// ---------------------------------------------------------------------------

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlizer interface {
	ToSql() (string, []any, error)
}

func execBuilt(ctx context.Context, q querier, b sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.ExecContext(ctx, query, args...)
}

func queryBuilt(ctx context.Context, q querier, b sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.QueryContext(ctx, query, args...)
}

func queryRowBuilt(ctx context.Context, q querier, b sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.QueryRowContext(ctx, query, args...), nil
}

// inTx runs fn inside a transaction and commits when it returns nil.
func (d *Database) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// exists reports whether table has a row with the given id.
func (d *Database) exists(ctx context.Context, q querier, table, id string) (bool, error) {
	var found bool
	sub, args, err := d.builder.Select("1").From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, err
	}
	if err := q.QueryRowContext(ctx, "SELECT EXISTS("+sub+")", args...).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

func utc(t time.Time) time.Time { return t.UTC() }

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
