package memo

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Used in tests and in single-shot tool
// runs where persistence across processes is not wanted.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[namespace+"\x00"+key]
	return v, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[namespace+"\x00"+key] = value
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := namespace + "\x00"
	for k := range s.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(s.entries, k)
		}
	}
	return nil
}

// SQLSchema creates the stage cache table. Apply via dbopen.WithSchema.
const SQLSchema = `
CREATE TABLE IF NOT EXISTS stage_cache (
    namespace   TEXT NOT NULL,
    key         TEXT NOT NULL,
    value       BLOB NOT NULL,
    created_at  INTEGER NOT NULL,
    PRIMARY KEY (namespace, key)
);
`

// SQLStore persists stage results in SQLite. Writes are idempotent: two
// flights that raced to the same key store the same bytes, so INSERT OR
// REPLACE is conflict-free by construction.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an already-opened database. The caller applies SQLSchema.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM stage_cache WHERE namespace = ? AND key = ?`,
		namespace, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("stage_cache select: %w", err)
	}
	return v, true, nil
}

func (s *SQLStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO stage_cache (namespace, key, value, created_at) VALUES (?,?,?,?)`,
		namespace, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("stage_cache insert: %w", err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM stage_cache WHERE namespace = ?`, namespace)
	if err != nil {
		return fmt.Errorf("stage_cache clear: %w", err)
	}
	return nil
}
