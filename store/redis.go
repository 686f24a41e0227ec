package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/status-im/market-hydrator/config"
)

// RedisStore keeps one Redis hash per table under the configured key prefix
type RedisStore struct {
	cfg config.RedisConfig

	mu     sync.RWMutex
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	return &RedisStore{cfg: cfg}
}

// Open connects and pings the server
func (s *RedisStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}
	if s.cfg.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.cfg.Addr,
		Password: s.cfg.Password,
		DB:       s.cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to ping redis at %s: %w", s.cfg.Addr, err)
	}
	s.client = client
	return nil
}

func (s *RedisStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// hashKey generates the hash name in the format prefix:table
func (s *RedisStore) hashKey(table Table) string {
	return s.cfg.GetKeyPrefix() + ":" + string(table)
}

func (s *RedisStore) conn(table Table) (*redis.Client, error) {
	if s.client == nil {
		return nil, ErrNotReady
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return s.client, nil
}

func (s *RedisStore) Get(ctx context.Context, table Table, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, err := s.conn(table)
	if err != nil {
		return nil, err
	}

	value, err := client.HGet(ctx, s.hashKey(table), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", table, key, err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, table Table, key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, err := s.conn(table)
	if err != nil {
		return err
	}

	if err := client.HSet(ctx, s.hashKey(table), key, value).Err(); err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, table Table, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, err := s.conn(table)
	if err != nil {
		return err
	}

	if err := client.HDel(ctx, s.hashKey(table), key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, table Table, prefix string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, err := s.conn(table)
	if err != nil {
		return nil, err
	}

	all, err := client.HGetAll(ctx, s.hashKey(table)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	out := make(map[string][]byte, len(all))
	for key, value := range all {
		if strings.HasPrefix(key, prefix) {
			out[key] = []byte(value)
		}
	}
	return out, nil
}

// Reset drops every table hash and writes meta in one MULTI/EXEC
func (s *RedisStore) Reset(ctx context.Context, meta []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return ErrNotReady
	}

	keys := make([]string, 0, len(Tables))
	for _, table := range Tables {
		keys = append(keys, s.hashKey(table))
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.HSet(ctx, s.hashKey(TableGlobalCacheInfo), MetaKey, meta)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset redis store: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
