package store

import (
	"context"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps tables in a process-local go-cache without expiry.
// Used for tests and sessions that must not touch disk.
type MemoryStore struct {
	// Data calls hold mu for reading (go-cache locks itself); Reset and the
	// lifecycle hold it for writing so a Reset is never observed half done.
	mu    sync.RWMutex
	items *gocache.Cache
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func memoryKey(table Table, key string) string {
	return string(table) + "|" + key
}

func (s *MemoryStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = gocache.New(gocache.NoExpiration, 0)
	}
	return nil
}

func (s *MemoryStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items != nil
}

func (s *MemoryStore) Get(ctx context.Context, table Table, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.items == nil {
		return nil, ErrNotReady
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	value, ok := s.items.Get(memoryKey(table, key))
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(value.([]byte)), nil
}

func (s *MemoryStore) Set(ctx context.Context, table Table, key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.items == nil {
		return ErrNotReady
	}
	if err := checkTable(table); err != nil {
		return err
	}
	s.items.Set(memoryKey(table, key), cloneBytes(value), gocache.NoExpiration)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, table Table, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.items == nil {
		return ErrNotReady
	}
	if err := checkTable(table); err != nil {
		return err
	}
	s.items.Delete(memoryKey(table, key))
	return nil
}

func (s *MemoryStore) List(ctx context.Context, table Table, prefix string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.items == nil {
		return nil, ErrNotReady
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	full := memoryKey(table, prefix)
	out := make(map[string][]byte)
	for k, item := range s.items.Items() {
		if strings.HasPrefix(k, full) {
			out[strings.TrimPrefix(k, string(table)+"|")] = cloneBytes(item.Object.([]byte))
		}
	}
	return out, nil
}

func (s *MemoryStore) Reset(ctx context.Context, meta []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		return ErrNotReady
	}
	s.items.Flush()
	s.items.Set(memoryKey(TableGlobalCacheInfo, MetaKey), cloneBytes(meta), gocache.NoExpiration)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
