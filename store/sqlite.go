package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore is the on-device store: one kv table keyed by (tbl, key)
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a closed store backed by the database file at path
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Open opens the database with WAL enabled and creates the kv table
func (s *SQLiteStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			tbl TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (tbl, key)
		);
	`)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create kv table: %w", err)
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// conn returns the open handle; callers hold s.mu for reading
func (s *SQLiteStore) conn(table Table) (*sql.DB, error) {
	if s.db == nil {
		return nil, ErrNotReady
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return s.db, nil
}

func (s *SQLiteStore) Get(ctx context.Context, table Table, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn(table)
	if err != nil {
		return nil, err
	}

	var value []byte
	err = db.QueryRowContext(ctx, "SELECT value FROM kv WHERE tbl = ? AND key = ?", string(table), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", table, key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, table Table, key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn(table)
	if err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO kv (tbl, key, value, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(tbl, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		string(table), key, value, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, table Table, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn(table)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM kv WHERE tbl = ? AND key = ?", string(table), key); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, table Table, prefix string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn(table)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT key, value FROM kv WHERE tbl = ? AND substr(key, 1, length(?)) = ?",
		string(table), prefix, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// Reset clears every table and writes meta inside one transaction
func (s *SQLiteStore) Reset(ctx context.Context, meta []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrNotReady
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM kv"); err != nil {
		return fmt.Errorf("failed to clear tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO kv (tbl, key, value, updated_at) VALUES (?, ?, ?, ?)",
		string(TableGlobalCacheInfo), MetaKey, meta, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to write meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
