package coingecko

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/status-im/market-hydrator/config"
)

func containsKey(keys []APIKey, key string, keyType KeyType) bool {
	for _, k := range keys {
		if k.Key == key && k.Type == keyType {
			return true
		}
	}
	return false
}

func TestAPIKeyManager_AvailableKeys(t *testing.T) {
	manager := NewAPIKeyManager(&config.APITokens{
		Tokens:     []string{"pro1", "pro2"},
		DemoTokens: []string{"demo1", "demo2", "demo3"},
	})

	keys := manager.AvailableKeys()
	if len(keys) != 6 {
		t.Fatalf("Expected 6 available keys (including NoKey), got %d", len(keys))
	}
	if keys[0].Type != ProKey || keys[2].Type != DemoKey {
		t.Errorf("Expected pro keys before demo keys, got %v", keys)
	}
	if last := keys[len(keys)-1]; last.Key != "" || last.Type != NoKey {
		t.Errorf("Expected NoKey to be the last key in the list, got %v", last)
	}

	manager.MarkKeyAsFailed("pro1")
	keys = manager.AvailableKeys()
	if len(keys) != 5 {
		t.Errorf("Expected 5 available keys after marking one as failed, got %d", len(keys))
	}
	if containsKey(keys, "pro1", ProKey) {
		t.Errorf("Expected pro1 to not be available after marking as failed")
	}

	single := NewAPIKeyManager(&config.APITokens{Tokens: []string{"solo-pro"}})
	single.MarkKeyAsFailed("solo-pro")
	if !containsKey(single.AvailableKeys(), "solo-pro", ProKey) {
		t.Errorf("Expected solo pro key to be available even when in backoff")
	}
}

func TestAPIKeyManager_BackoffExpires(t *testing.T) {
	now := time.Now()
	manager := NewAPIKeyManager(&config.APITokens{DemoTokens: []string{"demo1"}})
	manager.now = func() time.Time { return now }

	manager.MarkKeyAsFailed("demo1")
	if containsKey(manager.AvailableKeys(), "demo1", DemoKey) {
		t.Fatalf("Expected demo1 to be in backoff")
	}

	now = now.Add(manager.backoffTime + time.Second)
	if !containsKey(manager.AvailableKeys(), "demo1", DemoKey) {
		t.Errorf("Expected demo1 to be available after backoff")
	}
}

func TestAPIKeyManager_NilTokens(t *testing.T) {
	keys := NewAPIKeyManager(nil).AvailableKeys()
	if len(keys) != 1 || keys[0].Type != NoKey {
		t.Errorf("Expected only NoKey, got %v", keys)
	}
}

func TestTryWithKeys(t *testing.T) {
	logger := logrus.New().WithField("component", "test")

	t.Run("falls through to the next key", func(t *testing.T) {
		manager := NewAPIKeyManager(&config.APITokens{Tokens: []string{"pro1", "pro2"}})
		var tried []string
		got, err := tryWithKeys(context.Background(), manager, logger, func(key APIKey) (string, error) {
			tried = append(tried, key.Key)
			if key.Key == "pro1" {
				return "", errors.New("unauthorized")
			}
			return "ok:" + key.Key, nil
		})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != "ok:pro2" {
			t.Errorf("Expected result from pro2, got %q", got)
		}
		if len(tried) != 2 {
			t.Errorf("Expected 2 attempts, got %v", tried)
		}
		if containsKey(manager.AvailableKeys(), "pro1", ProKey) {
			t.Errorf("Expected pro1 to be benched")
		}
	})

	t.Run("all keys fail", func(t *testing.T) {
		manager := NewAPIKeyManager(&config.APITokens{DemoTokens: []string{"demo1"}})
		_, err := tryWithKeys(context.Background(), manager, logger, func(key APIKey) (int, error) {
			return 0, errors.New("boom")
		})
		if err == nil {
			t.Fatal("Expected an error")
		}
	})

	t.Run("context error stops rotation", func(t *testing.T) {
		manager := NewAPIKeyManager(&config.APITokens{Tokens: []string{"pro1", "pro2"}})
		calls := 0
		_, err := tryWithKeys(context.Background(), manager, logger, func(key APIKey) (int, error) {
			calls++
			return 0, context.DeadlineExceeded
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected deadline error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("Expected a single attempt, got %d", calls)
		}
	})
}
