package cache

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// GoCache is a typed wrapper around go-cache
type GoCache[T any] struct {
	cache *cache.Cache
}

// NewGoCache creates a new GoCache instance
// defaultExpiration: default expiration time for items
// cleanupInterval: interval for cleaning up expired items
func NewGoCache[T any](defaultExpiration, cleanupInterval time.Duration) *GoCache[T] {
	return &GoCache[T]{
		cache: cache.New(defaultExpiration, cleanupInterval),
	}
}

// GetOne returns the value stored under key. Values of an unexpected type count as missing.
func (gc *GoCache[T]) GetOne(key string) (T, bool) {
	var zero T
	value, found := gc.cache.Get(key)
	if !found {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Set stores a value. A timeout of 0 uses the default expiration,
// cache.NoExpiration (-1) keeps the item forever.
func (gc *GoCache[T]) Set(key string, value T, timeout time.Duration) {
	gc.cache.Set(key, value, timeout)
}

// Delete removes items from cache by keys
func (gc *GoCache[T]) Delete(keys []string) {
	for _, key := range keys {
		gc.cache.Delete(key)
	}
}

// Clear removes all items from cache
func (gc *GoCache[T]) Clear() {
	gc.cache.Flush()
}

// ItemCount returns the number of items in cache, expired ones included until cleanup
func (gc *GoCache[T]) ItemCount() int {
	return gc.cache.ItemCount()
}

// Items returns every unexpired item
func (gc *GoCache[T]) Items() map[string]T {
	items := gc.cache.Items()
	out := make(map[string]T, len(items))
	for key, item := range items {
		if item.Expired() {
			continue
		}
		if typed, ok := item.Object.(T); ok {
			out[key] = typed
		}
	}
	return out
}
