package coingecko

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/status-im/market-hydrator/config"
)

// KeyType defines the API key type
type KeyType int

const (
	// NoKey means the public API without a key
	NoKey KeyType = iota
	// ProKey means a Pro API key
	ProKey
	// DemoKey means a demo API key
	DemoKey
)

func (t KeyType) String() string {
	switch t {
	case ProKey:
		return "pro"
	case DemoKey:
		return "demo"
	default:
		return "none"
	}
}

// APIKey represents an API key with its type
type APIKey struct {
	Key  string
	Type KeyType
}

// APIKeyManager hands out keys in preference order and benches failing ones
type APIKeyManager struct {
	tokens      *config.APITokens
	lastFailed  map[string]time.Time
	backoffTime time.Duration
	now         func() time.Time
	mu          sync.RWMutex
}

// NewAPIKeyManager creates a new API key manager
func NewAPIKeyManager(tokens *config.APITokens) *APIKeyManager {
	if tokens == nil {
		tokens = &config.APITokens{}
	}
	return &APIKeyManager{
		tokens:      tokens,
		lastFailed:  make(map[string]time.Time),
		backoffTime: 5 * time.Minute,
		now:         time.Now,
	}
}

func (m *APIKeyManager) inBackoff(key string) bool {
	failedAt, ok := m.lastFailed[key]
	return ok && m.now().Sub(failedAt) < m.backoffTime
}

// AvailableKeys returns Pro keys, then demo keys, then the keyless option.
// Keys in backoff are left out, except a lone Pro key which is always tried.
func (m *APIKeyManager) AvailableKeys() []APIKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]APIKey, 0, len(m.tokens.Tokens)+len(m.tokens.DemoTokens)+1)
	for _, key := range m.tokens.Tokens {
		if len(m.tokens.Tokens) == 1 || !m.inBackoff(key) {
			keys = append(keys, APIKey{Key: key, Type: ProKey})
		}
	}
	for _, key := range m.tokens.DemoTokens {
		if !m.inBackoff(key) {
			keys = append(keys, APIKey{Key: key, Type: DemoKey})
		}
	}
	return append(keys, APIKey{Type: NoKey})
}

// MarkKeyAsFailed benches key for the backoff period
func (m *APIKeyManager) MarkKeyAsFailed(key string) {
	if key == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFailed[key] = m.now()
}

// tryWithKeys runs fn with each available key until one succeeds. A failing key is
// benched; context errors stop the rotation immediately.
func tryWithKeys[T any](ctx context.Context, m *APIKeyManager, logger *logrus.Entry, fn func(APIKey) (T, error)) (T, error) {
	var zero T
	var errs []error
	for _, key := range m.AvailableKeys() {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := fn(key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		logger.WithError(err).Warnf("Request failed with %s key", key.Type)
		m.MarkKeyAsFailed(key.Key)
		errs = append(errs, fmt.Errorf("%s key: %w", key.Type, err))
	}
	return zero, fmt.Errorf("all API keys failed: %w", errors.Join(errs...))
}
