package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const createLocalStorageTable = `
	CREATE TABLE IF NOT EXISTS local_storage (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (namespace, key)
	);`

// DB is a sqlite database holding the local storage of every namespace.
type DB struct {
	db *sql.DB
}

// Open opens (and creates if needed) the sqlite database at path.
func Open(path string) (*DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createLocalStorageTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create local_storage table: %w", err)
	}

	return &DB{db: db}, nil
}

// Namespace returns a Store bound to the given namespace.
func (d *DB) Namespace(name string) *SQLite {
	return &SQLite{db: d.db, namespace: name}
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// SQLite is a Store backed by one namespace of a DB.
type SQLite struct {
	db        *sql.DB
	namespace string
}

var _ Store = (*SQLite)(nil)

// Get returns the value stored under key.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM local_storage WHERE namespace = ? AND key = ?",
		s.namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s/%s: %w", s.namespace, key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO local_storage (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)",
		s.namespace, key, value, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", s.namespace, key, err)
	}
	return nil
}

// Delete removes keys in a single transaction.
func (s *SQLite) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM local_storage WHERE namespace = ? AND key = ?",
			s.namespace, key,
		); err != nil {
			return fmt.Errorf("failed to delete %s/%s: %w", s.namespace, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
