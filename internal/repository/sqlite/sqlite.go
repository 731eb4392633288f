// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code; no C compiler needed.
//
// CONNECTION SETTINGS:
// database/sql keeps a pool of connections, and SQLite PRAGMAs are
// per-connection. Running "PRAGMA foreign_keys=ON" once through the pool would
// only configure whichever connection happened to serve it. Instead, the
// settings travel in the DSN (`_pragma=...`) so every new connection applies
// them on open.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/macleann/fountainheadapi/internal/apperror"
)

// connParams are appended to every DSN.
//
//   - foreign_keys(1): game_states.user_id must reference a real user.
//   - busy_timeout(5000): a writer waits up to 5s for the lock instead of
//     failing immediately with SQLITE_BUSY when two requests write at once.
//   - _txlock=immediate: transactions take the write lock at BEGIN, so a
//     registration transaction never deadlocks upgrading a read lock.
const connParams = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"

// DB wraps a sql.DB connection pool and implements
// repository.UserRepository and repository.GameStateRepository.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/fountainhead.db" → file-based database (persistent)
//   - ":memory:"             → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database.
	// Pinning the pool to one connection keeps all callers on the same data.
	if isMemory(dbPath) {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// journal_mode is persistent in the database file, so setting it once is
	// enough. WAL lets readers proceed while a write is in progress.
	if !isMemory(dbPath) {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

func dsn(dbPath string) string {
	if strings.Contains(dbPath, "?") {
		return dbPath + "&" + connParams
	}
	return dbPath + "?" + connParams
}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run
// on every start.
func (db *DB) migrate() error {
	// username and email are both UNIQUE: email is the identity key shared by
	// password and third-party accounts, username is the login handle.
	// password_hash is NULL for accounts created through a third-party login.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			first_name    TEXT NOT NULL DEFAULT '',
			last_name     TEXT NOT NULL DEFAULT '',
			password_hash TEXT,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// UNIQUE(user_id) is what makes get-or-create safe under concurrency:
	// the second concurrent INSERT hits the constraint instead of adding a
	// duplicate row.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS game_states (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
			state        TEXT NOT NULL DEFAULT '{}',
			last_updated DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating game_states table: %w", err)
	}

	return nil
}

// isConstraint reports whether err is a SQLite constraint violation whose
// message contains kind ("UNIQUE" or "FOREIGN KEY"). The low byte of the
// result code is the primary code, so this holds whether or not the driver
// reports extended codes.
func isConstraint(err error, kind string) bool {
	var sqliteErr *sqlitedriver.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(sqliteErr.Error(), kind+" constraint failed")
}

// translateUserInsertErr maps UNIQUE violations on the users table to
// apperror conflicts. Any other error is returned unchanged.
func translateUserInsertErr(err error) error {
	if !isConstraint(err, "UNIQUE") {
		return err
	}
	// The driver message names the column: "UNIQUE constraint failed: users.email"
	switch msg := err.Error(); {
	case strings.Contains(msg, "users.email"):
		return apperror.Conflict("email", "A user with this email already exists.")
	case strings.Contains(msg, "users.username"):
		return apperror.Conflict("username", "A user with this username already exists.")
	}
	return err
}

func isForeignKeyViolation(err error) bool {
	return isConstraint(err, "FOREIGN KEY")
}
