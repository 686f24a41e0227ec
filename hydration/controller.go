package hydration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/status-im/market-hydrator/cache"
	"github.com/status-im/market-hydrator/config"
	"github.com/status-im/market-hydrator/events"
	"github.com/status-im/market-hydrator/interfaces"
	"github.com/status-im/market-hydrator/metrics"
	"github.com/status-im/market-hydrator/models"
	"github.com/status-im/market-hydrator/preload"
	"github.com/status-im/market-hydrator/scheduler"
	"github.com/status-im/market-hydrator/store"
	"github.com/status-im/market-hydrator/validator"
)

// InitialPayload is what the server rendered along with the first page.
// Data fields are optional; a client-side navigation carries none of them.
type InitialPayload struct {
	CacheVersion string
	Currency     models.Currency
	Route        models.Domain
	Rates        models.CurrencyRates
	PopularCoins []models.CoinOverview
	CoinDetails  *models.CoinDetails
	// UsePreloaded allows the route's data to be read back from the persistent store
	UsePreloaded bool
}

// Deps are the collaborators of a Controller
type Deps struct {
	Cache       *cache.Service
	Repo        *store.Repository
	Validator   *validator.Validator
	Fetcher     interfaces.CoinFetcher
	Coordinator *preload.Coordinator
	Events      *events.SubscriptionManager
}

// Controller populates the in-memory state from server payloads, the persistent
// store or the network, and tracks a load and a warm state machine per domain.
type Controller struct {
	cfg         config.HydrationConfig
	supported   []models.Currency
	cache       *cache.Service
	repo        *store.Repository
	validator   *validator.Validator
	fetcher     interfaces.CoinFetcher
	coordinator *preload.Coordinator
	events      *events.SubscriptionManager
	rates       *scheduler.Scheduler
	logger      *logrus.Entry

	mu            sync.RWMutex
	states        map[models.DomainKind]*DomainState
	route         models.Domain
	serverVersion string
}

func NewController(cfg config.HydrationConfig, supported []models.Currency, deps Deps, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Controller{
		cfg:         cfg,
		supported:   supported,
		cache:       deps.Cache,
		repo:        deps.Repo,
		validator:   deps.Validator,
		fetcher:     deps.Fetcher,
		coordinator: deps.Coordinator,
		events:      deps.Events,
		logger:      logger.WithField("component", metrics.ComponentHydration),
		states:      make(map[models.DomainKind]*DomainState, len(models.DomainKinds)),
	}
	if c.events == nil {
		c.events = events.NewSubscriptionManager()
	}
	for _, kind := range models.DomainKinds {
		c.states[kind] = &DomainState{Status: StatusIdle, PreloadStatus: PreloadIdle}
	}
	c.rates = scheduler.New(cfg.GetRatesRefreshInterval(), func(ctx context.Context) {
		if err := c.refreshRates(ctx); err != nil {
			c.logger.WithError(err).Warn("Scheduled rates refresh failed")
		}
	})
	return c
}

// Start implements core.Interface and runs the periodic rates refresh
func (c *Controller) Start(ctx context.Context) error {
	if c.cache == nil || c.repo == nil || c.validator == nil || c.fetcher == nil || c.coordinator == nil {
		return fmt.Errorf("hydration controller not properly initialized")
	}
	c.rates.Start(ctx, false)
	return nil
}

// Stop implements core.Interface
func (c *Controller) Stop() {
	c.rates.Stop()
}

// Hydrate runs the start-up flow: validate the persisted cache, hydrate rates, then
// load the route's domain while warming memory from the store.
// The error reports a route domain that could not be loaded.
func (c *Controller) Hydrate(ctx context.Context, payload InitialPayload) error {
	if payload.Route != nil {
		if err := models.CheckDomain(payload.Route); err != nil {
			return err
		}
	}
	if payload.Currency != "" {
		currency, err := models.ParseCurrency(string(payload.Currency), c.supported)
		if err != nil {
			return err
		}
		c.cache.SetCurrency(currency)
	}
	currency := c.cache.Currency()

	version := payload.CacheVersion
	if version == "" {
		version = c.ServerVersion()
	}
	result := c.validator.Validate(ctx, version)
	if result.Reason == validator.ReasonCancelled {
		return ctx.Err()
	}
	c.SetServerVersion(version)
	trusted := result.Valid
	c.logger.Infof("Hydrating in %s, cache version %s: %s", currency, version, result.Reason)

	// rates first, every conversion depends on them
	if err := c.hydrateRates(ctx, payload.Rates, trusted); err != nil {
		c.logger.WithError(err).Warn("Hydrating without exchange rates")
	}

	var g errgroup.Group
	if payload.Route != nil {
		route := models.WithCurrency(payload.Route, currency)
		c.setRoute(route)
		g.Go(func() error {
			return c.loadRoute(ctx, route, payload, trusted && payload.UsePreloaded)
		})
	}
	if trusted {
		g.Go(func() error {
			c.warm(ctx, currency)
			return nil
		})
	}
	return g.Wait()
}

// loadRoute loads the route's domain from the payload, the store when allowed, or the network
func (c *Controller) loadRoute(ctx context.Context, route models.Domain, payload InitialPayload, useStore bool) error {
	kind := route.Kind()
	c.transition(kind, StatusLoading, nil)

	err := models.MatchDomain(route,
		func(p models.PopularCoins) error {
			return c.loadPopular(ctx, p, payload.PopularCoins, useStore)
		},
		func(d models.CoinDetailsOf) error {
			return c.loadDetails(ctx, d, payload.CoinDetails, useStore)
		},
	)
	return c.settle(kind, err)
}

func (c *Controller) loadPopular(ctx context.Context, p models.PopularCoins, seed []models.CoinOverview, useStore bool) error {
	if seed != nil {
		c.cache.SetPopularCoins(p.Currency, p.Page, seed)
		if err := c.repo.SetPopularCoins(ctx, p.Currency, p.Page, seed); err != nil {
			c.logger.WithError(err).Warn("Failed to seed popular coins")
		}
		return nil
	}
	if useStore {
		coins, err := c.repo.PopularCoins(ctx, p.Currency, p.Page)
		if err == nil {
			c.cache.SetPopularCoins(p.Currency, p.Page, coins)
			return nil
		}
	}
	_, err := c.coordinator.FetchPage(ctx, p.Currency, p.Page)
	return err
}

func (c *Controller) loadDetails(ctx context.Context, d models.CoinDetailsOf, seed *models.CoinDetails, useStore bool) error {
	if seed != nil {
		details := *seed
		byCurrency := map[models.Currency]models.CoinDetails{d.Currency: details}
		c.cache.SetCoinDetails(d.ID, byCurrency)
		if err := c.repo.SetCoinDetails(ctx, d.ID, byCurrency); err != nil {
			c.logger.WithError(err).Warn("Failed to seed coin details")
		}
		c.cache.Select(details)
		return nil
	}
	if useStore {
		details, err := c.repo.CoinDetails(ctx, d.Currency, d.ID)
		if err == nil {
			c.cache.SetCoinDetails(d.ID, map[models.Currency]models.CoinDetails{d.Currency: details})
			c.cache.Select(details)
			return nil
		}
	}
	details, err := c.coordinator.FetchDetails(ctx, d.ID, d.Currency)
	if err != nil {
		return err
	}
	c.cache.Select(details)
	return nil
}

// settle moves kind to loaded or failed depending on err
func (c *Controller) settle(kind models.DomainKind, err error) error {
	if err != nil {
		c.transition(kind, StatusFailed, err)
		c.logger.WithError(err).Warnf("Failed to hydrate %s", kind)
		return fmt.Errorf("hydrate %s: %w", kind, err)
	}
	c.transition(kind, StatusLoaded, nil)
	return nil
}

func (c *Controller) ratesBase() models.Currency {
	return models.Currency(c.cfg.GetRatesBase())
}

func (c *Controller) hydrateRates(ctx context.Context, seed models.CurrencyRates, trusted bool) error {
	if len(seed) > 0 {
		c.cache.SetRates(seed)
		if err := c.repo.SetRates(ctx, c.ratesBase(), seed); err != nil {
			c.logger.WithError(err).Warn("Failed to seed rates")
		}
		return nil
	}
	if trusted {
		rates, err := c.repo.Rates(ctx, c.ratesBase())
		if err == nil && len(rates) > 0 {
			c.cache.SetRates(rates)
			return nil
		}
	}
	return c.refreshRates(ctx)
}

// refreshRates fetches rates and writes them to memory and the store
func (c *Controller) refreshRates(ctx context.Context) error {
	rates, err := c.fetcher.FetchRates(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh rates: %w", err)
	}
	c.cache.SetRates(rates)
	if err := c.repo.SetRates(ctx, c.ratesBase(), rates); err != nil {
		c.logger.WithError(err).Warn("Failed to persist rates")
	}
	c.logger.Debugf("Refreshed rates for %d currencies", len(rates))
	return nil
}

// warm copies persisted pages and coin details of currency into memory, without
// replacing what is already there and without evicting coins to make room
func (c *Controller) warm(ctx context.Context, currency models.Currency) {
	c.transitionPreload(models.DomainPopularCoins, PreloadPreloading)
	pages, err := c.repo.PopularPages(ctx, currency)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to warm popular coins")
		c.transitionPreload(models.DomainPopularCoins, PreloadFailed)
	} else {
		for page, coins := range pages {
			if _, ok := c.cache.PopularCoins(currency, page); !ok {
				c.cache.SetPopularCoins(currency, page, coins)
			}
		}
		c.transitionPreload(models.DomainPopularCoins, PreloadPreloaded)
	}

	c.transitionPreload(models.DomainCoinDetails, PreloadPreloading)
	byID, err := c.repo.CoinDetailsIn(ctx, currency)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to warm coin details")
		c.transitionPreload(models.DomainCoinDetails, PreloadFailed)
		return
	}

	coins := make([]models.CoinDetails, 0, len(byID))
	for _, details := range byID {
		coins = append(coins, details)
	}
	// most valuable first, unranked last
	sort.Slice(coins, func(i, j int) bool {
		ri, rj := coins[i].MarketCapRank, coins[j].MarketCapRank
		if (ri == 0) != (rj == 0) {
			return rj == 0
		}
		if ri != rj {
			return ri < rj
		}
		return coins[i].ID < coins[j].ID
	})

	details := c.cache.Details()
	warmed := 0
	for _, coin := range coins {
		if details.Len() >= details.Capacity() {
			break
		}
		if details.Has(currency, coin.ID) {
			continue
		}
		details.Put(coin.ID, map[models.Currency]models.CoinDetails{currency: coin})
		warmed++
	}
	c.logger.Debugf("Warmed %d pages and %d coins in %s", len(pages), warmed, currency)
	c.transitionPreload(models.DomainCoinDetails, PreloadPreloaded)
}

func (c *Controller) transition(kind models.DomainKind, to Status, cause error) {
	c.mu.Lock()
	state := c.states[kind]
	err := statusMachine.advance(&state.Status, to)
	if err == nil {
		state.Error = ""
		if cause != nil {
			state.Error = cause.Error()
		}
	}
	c.mu.Unlock()

	c.afterTransition(kind, statusMachine.name, string(to), statusMachine.names(), err)
}

func (c *Controller) transitionPreload(kind models.DomainKind, to PreloadStatus) {
	c.mu.Lock()
	err := preloadMachine.advance(&c.states[kind].PreloadStatus, to)
	c.mu.Unlock()

	c.afterTransition(kind, preloadMachine.name, string(to), preloadMachine.names(), err)
}

func (c *Controller) afterTransition(kind models.DomainKind, machine, to string, all []string, err error) {
	if err != nil {
		c.logger.WithError(err).Warnf("Rejected %s transition of %s", machine, kind)
		return
	}
	metrics.RecordHydrationState(string(kind), machine, to, all)
	c.events.Emit(context.Background(), events.Signal{Kind: events.KindHydration, ID: string(kind)})
}

// States returns a snapshot of every domain's state
func (c *Controller) States() map[models.DomainKind]DomainState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[models.DomainKind]DomainState, len(c.states))
	for kind, state := range c.states {
		out[kind] = *state
	}
	return out
}

// Route returns the active route, nil before the first navigation
func (c *Controller) Route() models.Domain {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.route
}

func (c *Controller) setRoute(route models.Domain) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.route = route
}

// LastScheduledRatesRefresh is when the rates scheduler last finished a run, zero
// before its first tick or trigger
func (c *Controller) LastScheduledRatesRefresh() time.Time {
	return c.rates.LastRun()
}

// ServerVersion returns the last cache version the server handed out
func (c *Controller) ServerVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverVersion
}

// SetServerVersion records the cache version used when a caller supplies none
func (c *Controller) SetServerVersion(version string) {
	if version == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverVersion = version
}
