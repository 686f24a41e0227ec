package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/status-im/market-hydrator/models"
)

// DetailsCache holds coin details per (coin, currency) with a ceiling on coins.
// Eviction is FIFO by first insertion of a coin: re-putting a coin does not refresh
// its position, and evicting a coin drops it in every currency.
type DetailsCache struct {
	mu      sync.Mutex
	entries *GoCache[models.CoinDetails]
	order   []string
	ttl     time.Duration
	max     int
}

// NewDetailsCache creates a cache holding at most maxCoins coins
func NewDetailsCache(maxCoins int, ttl, cleanupInterval time.Duration) *DetailsCache {
	return &DetailsCache{
		entries: NewGoCache[models.CoinDetails](ttl, cleanupInterval),
		ttl:     ttl,
		max:     maxCoins,
	}
}

func detailsKey(currency models.Currency, id string) string {
	return string(currency) + "/" + id
}

// Get returns the details of id in currency
func (d *DetailsCache) Get(currency models.Currency, id string) (models.CoinDetails, bool) {
	return d.entries.GetOne(detailsKey(currency, id))
}

// Has reports whether id is cached in currency
func (d *DetailsCache) Has(currency models.Currency, id string) bool {
	_, ok := d.Get(currency, id)
	return ok
}

// Put stores every currency of one coin and returns the IDs evicted to make room
func (d *DetailsCache) Put(id string, byCurrency map[models.Currency]models.CoinDetails) []string {
	if len(byCurrency) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.pruneLocked()

	if !d.containsLocked(id) {
		d.order = append(d.order, id)
	}
	for currency, details := range byCurrency {
		d.entries.Set(detailsKey(currency, id), details, d.ttl)
	}

	var evicted []string
	for len(d.order) > d.max {
		oldest := d.order[0]
		d.order = d.order[1:]
		d.deleteCoinLocked(oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}

// IDs returns cached coin IDs, oldest first
func (d *DetailsCache) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pruneLocked()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// InCurrency returns every cached coin's details in currency
func (d *DetailsCache) InCurrency(currency models.Currency) map[string]models.CoinDetails {
	out := make(map[string]models.CoinDetails)
	for _, id := range d.IDs() {
		if details, ok := d.Get(currency, id); ok {
			out[id] = details
		}
	}
	return out
}

// AnyCurrency returns id's details in the first currency of preferred that has them
func (d *DetailsCache) AnyCurrency(id string, preferred []models.Currency) (models.CoinDetails, models.Currency, bool) {
	for _, currency := range preferred {
		if details, ok := d.Get(currency, id); ok {
			return details, currency, true
		}
	}
	return models.CoinDetails{}, "", false
}

// Clear drops everything
func (d *DetailsCache) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.order = nil
	d.entries.Clear()
}

// Capacity returns the maximum number of coins held
func (d *DetailsCache) Capacity() int {
	return d.max
}

// Len returns the number of cached coins
func (d *DetailsCache) Len() int {
	return len(d.IDs())
}

func (d *DetailsCache) containsLocked(id string) bool {
	for _, existing := range d.order {
		if existing == id {
			return true
		}
	}
	return false
}

// pruneLocked forgets coins whose entries all expired
func (d *DetailsCache) pruneLocked() {
	if len(d.order) == 0 {
		return
	}
	live := make(map[string]struct{})
	for key := range d.entries.Items() {
		if _, id, ok := strings.Cut(key, "/"); ok {
			live[id] = struct{}{}
		}
	}
	kept := d.order[:0]
	for _, id := range d.order {
		if _, ok := live[id]; ok {
			kept = append(kept, id)
		}
	}
	d.order = kept
}

func (d *DetailsCache) deleteCoinLocked(id string) {
	var keys []string
	for key := range d.entries.Items() {
		if _, keyID, ok := strings.Cut(key, "/"); ok && keyID == id {
			keys = append(keys, key)
		}
	}
	d.entries.Delete(keys)
}
