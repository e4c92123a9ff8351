// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside your Go binary as a single file.
// No separate database server to install, configure, or manage. Perfect for:
// - Single-server deployments (which is most apps, honestly)
// - Development and testing (use ":memory:" for an in-memory DB)
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C compiler
// installed and cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code — no C compiler needed, works everywhere Go works.
//
// DOCUMENT-STYLE STORAGE:
// A build log is an aggregate: one root record owning several embedded
// collections (likes, comments, help requests, progress updates, blockers
// with nested solutions). We store each aggregate as ONE row, with the
// embedded collections serialized to JSON TEXT columns. That keeps the
// atomic-update unit aligned with the natural consistency boundary — a
// single log — and avoids a five-table join for every read. The columns we
// filter or sort on (user_id, phase, is_public, created_at) stay as real
// columns with indexes.
package sqlite

import (
	"database/sql"
	"fmt"

	// BLANK IMPORT:
	// The underscore import `_ "modernc.org/sqlite"` is a "side-effect only" import.
	// The sqlite package's init() function registers itself with database/sql as a
	// driver named "sqlite". After this import, sql.Open("sqlite", ...) works.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository interfaces.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/devhub.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (great for tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each pooled connection to ":memory:" would get its OWN empty database,
	// so the pool must be pinned to a single connection for in-memory use.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	// Ping verifies the connection actually works.
	// Without this, a bad path or permissions issue would only surface
	// on the first query — which is much harder to debug.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL (Write-Ahead Logging) mode:
	// Default SQLite locks the entire database during writes. WAL allows
	// concurrent reads WHILE a write is happening — important for a web
	// server where feed reads and engagement writes overlap constantly.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite (for backwards compatibility).
	// We turn them on for referential integrity (build_logs.user_id → users.id).
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	// busy_timeout makes a writer wait (up to 5s) for a competing write
	// transaction to finish instead of failing immediately with SQLITE_BUSY.
	// Two users engaging with the same log at the same moment serialize on
	// this instead of one of them getting an error.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
//
// Wherever you call New(), immediately defer Close() — it flushes the WAL
// and releases the file lock even if a panic occurs.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs all database migrations.
//
// For this project, embedding SQL as string constants is fine; CREATE TABLE
// IF NOT EXISTS is safe to run on every startup. A production system with a
// longer schema history would use golang-migrate to track applied versions.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			github_id     INTEGER NOT NULL DEFAULT 0,
			avatar_url    TEXT NOT NULL DEFAULT '',
			build_logs    TEXT NOT NULL DEFAULT '[]',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// github_id 0 means "no GitHub link", so the uniqueness constraint only
	// applies to real GitHub ids. A partial index expresses exactly that.
	_, err = db.conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id
		ON users(github_id) WHERE github_id != 0;
	`)
	if err != nil {
		return fmt.Errorf("creating users github_id index: %w", err)
	}

	// One row per build-log aggregate. The embedded collections live in the
	// JSON TEXT columns; everything we query by is a plain indexed column.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS build_logs (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL REFERENCES users(id),
			title            TEXT NOT NULL,
			description      TEXT NOT NULL,
			day              INTEGER NOT NULL,
			phase            TEXT NOT NULL,
			progress         INTEGER NOT NULL DEFAULT 0,
			tags             TEXT NOT NULL DEFAULT '[]',
			is_public        INTEGER NOT NULL DEFAULT 1,
			attachments      TEXT NOT NULL DEFAULT '[]',
			likes            TEXT NOT NULL DEFAULT '[]',
			comments         TEXT NOT NULL DEFAULT '[]',
			help_requests    TEXT NOT NULL DEFAULT '[]',
			progress_updates TEXT NOT NULL DEFAULT '[]',
			blockers         TEXT NOT NULL DEFAULT '[]',
			created_at       DATETIME NOT NULL,
			updated_at       DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_build_logs_created_at ON build_logs(created_at);
		CREATE INDEX IF NOT EXISTS idx_build_logs_user_id ON build_logs(user_id);
		CREATE INDEX IF NOT EXISTS idx_build_logs_phase ON build_logs(phase);
	`)
	if err != nil {
		return fmt.Errorf("creating build_logs table: %w", err)
	}

	return nil
}
