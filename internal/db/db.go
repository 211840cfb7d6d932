// Package db opens the SQLite run ledger and brings its schema up to date.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const openTimeout = 10 * time.Second

// pragmas are applied by the driver to every new connection.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(1)",
}

// DB is an open ledger database.
type DB struct {
	conn   *sql.DB
	path   string
	logger *slog.Logger
}

// New opens (creating when needed) the database at dbPath, applies pending
// migrations and closes runs a killed process left in the running state.
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", dbPath, err)
	}
	// One writer at a time; the run loop is sequential anyway.
	conn.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open ledger %s: %w", dbPath, err)
	}

	d := &DB{conn: conn, path: dbPath, logger: logger}
	if err := d.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	if n, err := d.closeStaleRuns(ctx); err != nil {
		logger.Warn("failed to close stale runs", "error", err)
	} else if n > 0 {
		logger.Info("marked runs of an earlier process as interrupted", "count", n)
	}
	return d, nil
}

func dsn(dbPath string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return dbPath + "?" + q.Encode()
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Path is the database file the ledger lives in.
func (d *DB) Path() string {
	return d.path
}

// AppliedMigrations lists applied migration names in order.
func (d *DB) AppliedMigrations(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT name FROM _migrations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// migrate applies every embedded migration not yet recorded, each in its
// own transaction, in file name order.
func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
		name       TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	done, err := d.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	applied := make(map[string]bool, len(done))
	for _, name := range done {
		applied[name] = true
	}

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		name := path.Base(file)
		if applied[name] {
			continue
		}
		if err := d.apply(ctx, file, name); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		d.logger.Info("applied migration", "name", name)
	}
	return nil
}

func (d *DB) apply(ctx context.Context, file, name string) error {
	content, err := migrationsFS.ReadFile(file)
	if err != nil {
		return err
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO _migrations (name) VALUES (?)`, name); err != nil {
		return err
	}
	return tx.Commit()
}

// closeStaleRuns marks runs still in the running state as interrupted.
// Only one process uses a ledger at a time, so any such run was killed.
func (d *DB) closeStaleRuns(ctx context.Context) (int64, error) {
	res, err := d.conn.ExecContext(ctx, `
		UPDATE runs
		SET status = 'interrupted',
		    finished_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now'),
		    error = 'process exited before the run finished'
		WHERE status = 'running'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
