package hydration

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/status-im/market-hydrator/events"
	"github.com/status-im/market-hydrator/models"
	"github.com/status-im/market-hydrator/validator"
)

// Navigate records route as the active one. It implements interfaces.Navigator;
// loading the route's data is left to the caller.
func (c *Controller) Navigate(ctx context.Context, route models.Domain) error {
	if err := models.CheckDomain(route); err != nil {
		return err
	}
	c.setRoute(route)
	c.logger.Debugf("Navigated to %s", route.Kind())
	return nil
}

// ChangeRoute re-validates the persisted cache against serverVersion and hydrates
// route. A valid cache is reused and memory that already holds the route is left
// alone; an invalid one drops in-memory prices, reloads the route and asks the rates
// scheduler for an early refresh.
func (c *Controller) ChangeRoute(ctx context.Context, route models.Domain, serverVersion string) error {
	if err := models.CheckDomain(route); err != nil {
		return err
	}
	if serverVersion == "" {
		serverVersion = c.ServerVersion()
	}
	route = models.WithCurrency(route, c.cache.Currency())

	result := c.validator.Validate(ctx, serverVersion)
	if result.Reason == validator.ReasonCancelled {
		return ctx.Err()
	}
	c.SetServerVersion(serverVersion)
	c.setRoute(route)

	if !result.Valid {
		c.logger.Infof("Cache invalid on route change (%s), reloading %s", result.Reason, route.Kind())
		c.cache.InvalidatePrices()
		c.rates.Trigger()
	} else if c.inMemory(route) {
		return nil
	}
	return c.hydrateRoute(ctx, route)
}

// inMemory reports whether route's data is already in memory, selecting it for details
func (c *Controller) inMemory(route models.Domain) bool {
	return models.MatchDomain(route,
		func(p models.PopularCoins) bool {
			_, ok := c.cache.PopularCoins(p.Currency, p.Page)
			return ok
		},
		func(d models.CoinDetailsOf) bool {
			details, ok := c.cache.CoinDetails(d.Currency, d.ID)
			if ok {
				c.cache.Select(details)
			}
			return ok
		},
	)
}

// hydrateRoute loads route through the coordinator: memory, trusted store,
// conversion from another currency, then network
func (c *Controller) hydrateRoute(ctx context.Context, route models.Domain) error {
	kind := route.Kind()
	c.transition(kind, StatusLoading, nil)

	err := models.MatchDomain(route,
		func(p models.PopularCoins) error {
			_, _, err := c.coordinator.RequestPage(ctx, p.Currency, p.Page)
			return err
		},
		func(d models.CoinDetailsOf) error {
			details, _, err := c.coordinator.CoinDetails(ctx, d.ID, d.Currency)
			if err == nil {
				c.cache.Select(details)
			}
			return err
		},
	)
	return c.settle(kind, err)
}

// ChangeCurrency switches the display currency. Entries of the previous currency stay
// in memory and in the store. The popular list and the selected coin are derived in
// the new currency from data known in any currency; the network is only used when
// no such data exists.
func (c *Controller) ChangeCurrency(ctx context.Context, currency models.Currency) error {
	currency, err := models.ParseCurrency(string(currency), c.supported)
	if err != nil {
		return err
	}
	previous := c.cache.SetCurrency(currency)
	if previous == currency {
		return nil
	}
	c.logger.Infof("Currency changed from %s to %s", previous, currency)
	c.events.Emit(ctx, events.Signal{Kind: events.KindCurrency, ID: string(currency)})

	page := 1
	if route := c.Route(); route != nil {
		page = models.MatchDomain(route,
			func(p models.PopularCoins) int { return p.Page },
			func(models.CoinDetailsOf) int { return 1 },
		)
		c.setRoute(models.WithCurrency(route, currency))
	}

	var g errgroup.Group
	g.Go(func() error {
		return c.hydrateRoute(ctx, models.PopularCoins{Currency: currency, Page: page})
	})
	if selected, ok := c.cache.Selected(); ok {
		g.Go(func() error {
			return c.hydrateRoute(ctx, models.CoinDetailsOf{ID: selected.ID, Currency: currency})
		})
	}
	return g.Wait()
}
