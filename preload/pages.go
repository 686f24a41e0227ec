package preload

import (
	"context"

	"github.com/status-im/market-hydrator/interfaces"
	"github.com/status-im/market-hydrator/models"
	"github.com/status-im/market-hydrator/store"
	"github.com/status-im/market-hydrator/transform"
)

type pageResult struct {
	coins  []models.CoinOverview
	status interfaces.CacheStatus
}

// RequestPage returns a popular coins page. Concurrent requests for the same
// currency and page share one load, which outlives any single caller leaving.
func (c *Coordinator) RequestPage(ctx context.Context, currency models.Currency, page int) ([]models.CoinOverview, interfaces.CacheStatus, error) {
	if page < 1 {
		page = 1
	}
	if coins, ok := c.cache.PopularCoins(currency, page); ok {
		return coins, interfaces.CacheStatusHit, nil
	}

	v, err := c.shared(ctx, &c.pages, store.PopularKey(currency, page), func(ctx context.Context) (interface{}, error) {
		return c.loadPage(ctx, currency, page)
	})
	if err != nil {
		return nil, interfaces.CacheStatusMiss, err
	}
	result := v.(pageResult)
	return result.coins, result.status, nil
}

func (c *Coordinator) loadPage(ctx context.Context, currency models.Currency, page int) (pageResult, error) {
	if coins, ok := c.cache.PopularCoins(currency, page); ok {
		return pageResult{coins, interfaces.CacheStatusHit}, nil
	}
	if c.trusted() {
		coins, err := c.repo.PopularCoins(ctx, currency, page)
		if err == nil {
			c.cache.SetPopularCoins(currency, page, coins)
			return pageResult{coins, interfaces.CacheStatusStore}, nil
		}
	}
	if coins, ok := c.derivePage(ctx, currency, page); ok {
		return pageResult{coins, interfaces.CacheStatusDerived}, nil
	}

	coins, err := c.fetchPage(ctx, currency, page)
	return pageResult{coins, interfaces.CacheStatusMiss}, err
}

// FetchPage fetches a popular coins page from the network, skipping memory and the
// store, and writes it converted into every currency
func (c *Coordinator) FetchPage(ctx context.Context, currency models.Currency, page int) ([]models.CoinOverview, error) {
	if page < 1 {
		page = 1
	}
	v, err := c.shared(ctx, &c.pages, "fetch:"+store.PopularKey(currency, page), func(ctx context.Context) (interface{}, error) {
		return c.fetchPage(ctx, currency, page)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.CoinOverview), nil
}

func (c *Coordinator) fetchPage(ctx context.Context, currency models.Currency, page int) ([]models.CoinOverview, error) {
	coins, err := c.fetcher.FetchPopularCoins(ctx, currency, page)
	if err != nil {
		return nil, err
	}
	byCurrency := c.denominateCoins(ctx, coins, currency)
	c.writePage(ctx, page, byCurrency)
	return byCurrency[currency], nil
}

// derivePage converts the page known in another currency
func (c *Coordinator) derivePage(ctx context.Context, currency models.Currency, page int) ([]models.CoinOverview, bool) {
	rates, ok := c.cache.Rates()
	if !ok {
		return nil, false
	}

	base, source, ok := c.cache.AnyPopularCoins(page, c.targets())
	if !ok && c.trusted() {
		for _, candidate := range c.targets() {
			coins, err := c.repo.PopularCoins(ctx, candidate, page)
			if err == nil {
				base, source, ok = coins, candidate, true
				break
			}
		}
	}
	if !ok || base == nil {
		return nil, false
	}

	resp, err := c.transformer.Transform(ctx, transform.Request{Coins: base, Rates: rates, Currency: source})
	if err != nil {
		c.logger.WithError(err).Warnf("Failed to derive popular page %d from %s", page, source)
		return nil, false
	}
	coins, ok := resp.TransformedCoins[currency]
	if !ok {
		return nil, false
	}
	c.writePage(ctx, page, resp.TransformedCoins)
	return coins, true
}

func (c *Coordinator) writePage(ctx context.Context, page int, byCurrency map[models.Currency][]models.CoinOverview) {
	for currency, coins := range byCurrency {
		c.cache.SetPopularCoins(currency, page, coins)
		if err := c.repo.SetPopularCoins(ctx, currency, page, coins); err != nil {
			c.logger.WithError(err).Warnf("Failed to persist popular page %d in %s", page, currency)
		}
	}
}
