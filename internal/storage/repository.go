package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"spendlog/internal/kv"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is a kv.Backend persisted in a SQLite table.
type SQLiteRepository struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ kv.Backend = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.db == nil {
		return nil
	}
	r.closed = true
	return r.db.Close()
}

// Get implements kv.Backend
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, false, kv.ErrClosed
	}

	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_items WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements kv.Backend
func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return kv.ErrClosed
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_items (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Remove implements kv.Backend
func (r *SQLiteRepository) Remove(ctx context.Context, key string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return kv.ErrClosed
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// Clear implements kv.Backend
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return kv.ErrClosed
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_items`); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}
