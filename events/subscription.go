package events

import (
	"context"
	"sync"
)

// Kind classifies a state change
type Kind string

const (
	// KindPreloadResolved fires when a coin's preload landed in the caches
	KindPreloadResolved Kind = "preload-resolved"
	// KindPreloadFailed fires when a coin's preload was abandoned
	KindPreloadFailed Kind = "preload-failed"
	// KindHydration fires on every hydration state transition
	KindHydration Kind = "hydration"
	// KindCurrency fires when the active currency changes
	KindCurrency Kind = "currency"
)

// Signal describes what changed. ID is the coin ID or domain kind it concerns.
type Signal struct {
	Kind Kind
	ID   string
}

// Filter selects the signals a subscriber is interested in
type Filter func(Signal) bool

// ForKind accepts signals of the given kinds
func ForKind(kinds ...Kind) Filter {
	return func(s Signal) bool {
		for _, k := range kinds {
			if s.Kind == k {
				return true
			}
		}
		return false
	}
}

// ForID accepts signals about id of the given kinds
func ForID(id string, kinds ...Kind) Filter {
	byKind := ForKind(kinds...)
	return func(s Signal) bool {
		return s.ID == id && byKind(s)
	}
}

// SubscriptionManager handles event subscriptions and notifications.
// Each subscriber channel holds one pending signal; further signals are dropped
// until it is drained, so receivers re-read state instead of counting signals.
type SubscriptionManager struct {
	mu          sync.RWMutex
	subscribers map[chan Signal]Filter
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		subscribers: make(map[chan Signal]Filter),
	}
}

// Subscribe creates a new subscription and returns a channel that will receive every signal
func (s *SubscriptionManager) Subscribe() chan Signal {
	return s.SubscribeFiltered(nil)
}

// SubscribeFiltered creates a subscription receiving only the signals accepted by filter
func (s *SubscriptionManager) SubscribeFiltered(filter Filter) chan Signal {
	ch := make(chan Signal, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[ch] = filter
	return ch
}

// Unsubscribe removes a subscription and closes its channel
func (s *SubscriptionManager) Unsubscribe(ch chan Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exist := s.subscribers[ch]; !exist {
		return
	}
	delete(s.subscribers, ch)
	close(ch)
}

// Emit sends a signal to all matching subscribers
func (s *SubscriptionManager) Emit(ctx context.Context, signal Signal) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for subscriber, filter := range s.subscribers {
		if filter != nil && !filter(signal) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case subscriber <- signal:
		default:
			// Skip notification if the subscriber's channel is full (non-blocking)
		}
	}
}

// Count returns the number of live subscriptions
func (s *SubscriptionManager) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
