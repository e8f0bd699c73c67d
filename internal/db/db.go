// Package db is the SQLite (SQLCipher driver) store of the mango3 reference
// application: accounts, sessions, websites and posts, with FTS5 search over
// websites and posts.
package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const (
	// MaxOpenConns bounds file-backed databases. SQLite is single-writer, so
	// high connection counts are counterproductive.
	MaxOpenConns = 10
	MaxIdleConns = 2
)

// Store errors
var (
	ErrNotFound = errors.New("db: not found")
	ErrConflict = errors.New("db: already exists")
)

// DB wraps the sql.DB connection.
type DB struct {
	db *sql.DB
}

// Option configures Open.
type Option func(*options)

type options struct {
	keyHex string
}

// WithKey encrypts the database with a 32-byte SQLCipher key given as hex.
// An empty key leaves the database in plaintext.
func WithKey(keyHex string) Option {
	return func(o *options) { o.keyHex = keyHex }
}

// Open opens (creating if needed) the database at path and applies Schema.
// MemoryPath gives each call its own database.
func Open(path string, opts ...Option) (*DB, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	dsn, err := dataSourceName(path, o)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := prepare(sqlDB, path == MemoryPath); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &DB{db: sqlDB}, nil
}

func dataSourceName(path string, o options) (string, error) {
	if o.keyHex != "" {
		if _, err := hex.DecodeString(o.keyHex); err != nil || len(o.keyHex) != 64 {
			return "", errors.New("database key must be 64 hex characters")
		}
	}
	var dsn string
	if path == MemoryPath {
		dsn = fmt.Sprintf("file:mango3-%s?mode=memory&cache=shared", uuid.NewString())
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return "", fmt.Errorf("create data directory: %w", err)
			}
		}
		dsn = withParams(path, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	}
	if o.keyHex != "" {
		dsn = withParams(dsn, "_pragma_key=x'"+o.keyHex+"'&_pragma_cipher_page_size=4096")
	}
	return dsn, nil
}

// memoryPragmas trade durability for speed on throwaway databases.
var memoryPragmas = []string{
	"PRAGMA journal_mode=MEMORY",
	"PRAGMA synchronous=OFF",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA secure_delete=OFF",
}

// prepare sizes the pool and applies Schema. Shared-cache memory databases
// lock per table, so they get one connection, which also keeps them alive.
func prepare(sqlDB *sql.DB, memory bool) error {
	if memory {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		for _, pragma := range memoryPragmas {
			if _, err := sqlDB.Exec(pragma); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
	} else {
		sqlDB.SetMaxOpenConns(MaxOpenConns)
		sqlDB.SetMaxIdleConns(MaxIdleConns)
	}
	if _, err := sqlDB.Exec(Schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

func withParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// SQL returns the underlying sql.DB for direct access when needed.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Reset deletes every row in one transaction. Shared test servers call it
// between suites.
func (d *DB) Reset(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, table := range resetTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}
