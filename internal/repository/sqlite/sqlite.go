// Package sqlite implements the repository interfaces on SQLite.
//
// WHY SQLITE?
// The blog runs as a single process with a single database, which is exactly
// what an embedded database is for: no server to run, one file to back up,
// and ":memory:" for tests.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the binary builds without a C
// toolchain and cross-compiles like any other Go program.
//
// SCHEMA:
// The schema lives in migrations/*.sql, embedded into the binary and applied
// by goose on startup. goose records applied versions in its own table, so
// New is safe to call against an existing database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/blog-backend/internal/repository/sqlite/migrations"
)

// DB wraps a sql.DB connection pool and implements UserRepository,
// BlogRepository and SessionStore.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// New opens (or creates) the database at dbPath and migrates it to the latest
// schema.
//
// dbPath examples:
//   - "data/blog.db"  → file-based database (persistent)
//   - ":memory:"      → in-memory database (tests; lost on close)
//
// PRAGMAS PER CONNECTION:
// foreign_keys and busy_timeout are connection settings, and sql.DB is a
// pool. Running "PRAGMA foreign_keys=ON" once would only configure whichever
// connection happened to run it. Passing them as _pragma DSN parameters makes
// the driver apply them to every connection it opens.
//
// _txlock=immediate makes BEGIN take the write lock up front, so a
// read-then-write transaction (the like toggle) can't deadlock against
// another one trying to upgrade at the same time.
func New(ctx context.Context, dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database.
	// One connection keeps the whole pool on the same one.
	if isMemory(dbPath) {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func migrate(ctx context.Context, conn *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	return goose.UpContext(ctx, conn, ".")
}

func dsn(path string) string {
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var serr *msqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	code := serr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// nullTime converts an optional time for an INSERT/UPDATE argument.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// timePtr converts a scanned nullable time back to the model's pointer form.
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// limitOffset renders the paging clause for opts. SQLite needs a LIMIT to
// accept an OFFSET; -1 means "no limit".
func limitOffset(limit, offset int) (string, []any) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return " LIMIT ? OFFSET ?", []any{limit, offset}
}
