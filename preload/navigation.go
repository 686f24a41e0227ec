package preload

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/status-im/market-hydrator/events"
	"github.com/status-im/market-hydrator/interfaces"
	"github.com/status-im/market-hydrator/metrics"
	"github.com/status-im/market-hydrator/models"
	"github.com/status-im/market-hydrator/transform"
)

// ErrPreloadFailed is reported to a navigation waiting on a preload that failed or timed out
var ErrPreloadFailed = errors.New("preload failed")

// NavigationError is returned when a clicked coin has no data to show.
// Navigating again retries; nothing is retried on the caller's behalf.
type NavigationError struct {
	ID  string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.ID, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// Retryable is always true: each new navigation is a fresh attempt
func (e *NavigationError) Retryable() bool {
	return true
}

// RequestNavigation routes to id right away and selects its details once available.
// Cached details are selected immediately. Otherwise the call waits for the coin's
// preload, joining one already in flight, and falls back to an on-demand fetch when
// the registry is full.
func (c *Coordinator) RequestNavigation(ctx context.Context, id string) (models.CoinDetails, error) {
	if id == "" {
		return models.CoinDetails{}, &NavigationError{ID: id, Err: fmt.Errorf("coin ID is required")}
	}
	currency := c.cache.Currency()

	c.mu.Lock()
	navigator := c.navigator
	c.mu.Unlock()
	if navigator != nil {
		if err := navigator.Navigate(ctx, models.CoinDetailsOf{ID: id, Currency: currency}); err != nil {
			c.logger.WithError(err).Warnf("Navigation to %s was not routed", id)
		}
	}

	details, status, err := c.CoinDetails(ctx, id, currency)
	if err != nil {
		metrics.RecordNavigation(outcomeFailed)
		c.logger.WithError(err).Errorf("No data for navigation to %s", id)
		return models.CoinDetails{}, &NavigationError{ID: id, Err: err}
	}
	c.cache.Select(details)
	metrics.RecordNavigation(status.String())
	return details, nil
}

// CoinDetails returns id's details in currency from memory, the trusted store, a
// conversion of another currency's details, or the network, in that order.
func (c *Coordinator) CoinDetails(ctx context.Context, id string, currency models.Currency) (models.CoinDetails, interfaces.CacheStatus, error) {
	if details, ok := c.cache.CoinDetails(currency, id); ok {
		return details, interfaces.CacheStatusHit, nil
	}
	if c.trusted() {
		details, err := c.repo.CoinDetails(ctx, currency, id)
		if err == nil {
			c.cache.SetCoinDetails(id, map[models.Currency]models.CoinDetails{currency: details})
			return details, interfaces.CacheStatusStore, nil
		}
	}
	if details, ok := c.deriveDetails(ctx, id, currency); ok {
		return details, interfaces.CacheStatusDerived, nil
	}
	details, err := c.await(ctx, id, currency)
	return details, interfaces.CacheStatusMiss, err
}

// FetchDetails obtains id's details through the preload path only, joining an
// in-flight preload or starting one
func (c *Coordinator) FetchDetails(ctx context.Context, id string, currency models.Currency) (models.CoinDetails, error) {
	return c.await(ctx, id, currency)
}

// deriveDetails converts id's details known in another currency
func (c *Coordinator) deriveDetails(ctx context.Context, id string, currency models.Currency) (models.CoinDetails, bool) {
	rates, ok := c.cache.Rates()
	if !ok {
		return models.CoinDetails{}, false
	}

	base, source, ok := c.cache.Details().AnyCurrency(id, c.targets())
	if !ok && c.trusted() {
		for _, candidate := range c.targets() {
			details, err := c.repo.CoinDetails(ctx, candidate, id)
			if err == nil {
				base, source, ok = details, candidate, true
				break
			}
		}
	}
	if !ok {
		return models.CoinDetails{}, false
	}

	resp, err := c.transformer.Transform(ctx, transform.Request{Coin: &base, Rates: rates, Currency: source})
	if err != nil {
		c.logger.WithError(err).Warnf("Failed to derive %s from %s", id, source)
		return models.CoinDetails{}, false
	}
	details, ok := resp.TransformedCoin[currency]
	if !ok {
		return models.CoinDetails{}, false
	}
	c.writeDetails(ctx, id, resp.TransformedCoin)
	return details, true
}

// await joins or starts id's preload and waits for it to resolve
func (c *Coordinator) await(ctx context.Context, id string, currency models.Currency) (models.CoinDetails, error) {
	// subscribe before dispatching so the resolution cannot be missed
	sub := c.events.SubscribeFiltered(events.ForID(id, events.KindPreloadResolved, events.KindPreloadFailed))
	defer c.events.Unsubscribe(sub)

	c.setWaiting(id, true)
	defer c.setWaiting(id, false)

	outcome, err := c.preload(id, currency)
	switch {
	case errors.Is(err, ErrCapacity):
		return c.fetchOnDemand(ctx, id, currency)
	case err != nil:
		return models.CoinDetails{}, err
	case outcome == OutcomeCached:
		if details, ok := c.cache.CoinDetails(currency, id); ok {
			return details, nil
		}
		return c.fetchOnDemand(ctx, id, currency)
	}

	select {
	case sig, ok := <-sub:
		if !ok {
			return models.CoinDetails{}, fmt.Errorf("subscription for %s closed", id)
		}
		if details, ok := c.cache.CoinDetails(currency, id); ok {
			return details, nil
		}
		if sig.Kind == events.KindPreloadFailed {
			return models.CoinDetails{}, fmt.Errorf("%w: %s", ErrPreloadFailed, id)
		}
		// resolved in other currencies only
		return c.fetchOnDemand(ctx, id, currency)
	case <-ctx.Done():
		return models.CoinDetails{}, ctx.Err()
	}
}

// fetchOnDemand fetches id outside the registry, deduplicated per currency
func (c *Coordinator) fetchOnDemand(ctx context.Context, id string, currency models.Currency) (models.CoinDetails, error) {
	v, err := c.shared(ctx, &c.onDemand, string(currency)+"/"+id, func(ctx context.Context) (interface{}, error) {
		c.logger.Infof("Fetching %s on demand", id)
		details, err := c.fetcher.FetchCoinDetails(ctx, id, currency)
		if err != nil {
			return nil, err
		}
		return c.storeDetails(ctx, id, currency, details)[currency], nil
	})
	if err != nil {
		return models.CoinDetails{}, err
	}
	return v.(models.CoinDetails), nil
}

func (c *Coordinator) setWaiting(id string, waiting bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if waiting {
		c.waiting[id]++
		return
	}
	if c.waiting[id] <= 1 {
		delete(c.waiting, id)
		return
	}
	c.waiting[id]--
}

// WaitingFor reports whether a navigation is waiting on id's preload
func (c *Coordinator) WaitingFor(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting[id] > 0
}

// Waiting lists the coins navigations are waiting on
func (c *Coordinator) Waiting() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.waiting))
	for id := range c.waiting {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
