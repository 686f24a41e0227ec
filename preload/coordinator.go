package preload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/status-im/market-hydrator/cache"
	"github.com/status-im/market-hydrator/config"
	"github.com/status-im/market-hydrator/events"
	"github.com/status-im/market-hydrator/interfaces"
	"github.com/status-im/market-hydrator/metrics"
	"github.com/status-im/market-hydrator/models"
	"github.com/status-im/market-hydrator/scheduler"
	"github.com/status-im/market-hydrator/store"
	"github.com/status-im/market-hydrator/transform"
	"github.com/status-im/market-hydrator/validator"
)

// Outcome of a preload request
type Outcome string

const (
	// OutcomeCached means the coin is already in memory for the requested currency
	OutcomeCached Outcome = "cached"
	// OutcomeInFlight means another caller already holds the coin's registry slot
	OutcomeInFlight Outcome = "in_flight"
	// OutcomeDispatched means this call started the fetch
	OutcomeDispatched Outcome = "dispatched"
)

const (
	outcomeCapacity = "capacity"
	outcomeResolved = "resolved"
	outcomeFailed   = "failed"
	outcomeTimedOut = "timed_out"
)

// Deps are the collaborators of a Coordinator
type Deps struct {
	Cache       *cache.Service
	Repo        *store.Repository
	Validator   *validator.Validator
	Fetcher     interfaces.CoinFetcher
	Transformer interfaces.Transformer
	Events      *events.SubscriptionManager
}

// Coordinator deduplicates fetches of popular lists and coin details across hover
// preloads, navigations, pagination and hydration.
//
// Nothing is retried automatically: a failed preload only releases its slot, and the
// caller re-invokes to try again.
type Coordinator struct {
	cfg         config.PreloadConfig
	cache       *cache.Service
	repo        *store.Repository
	validator   *validator.Validator
	fetcher     interfaces.CoinFetcher
	transformer interfaces.Transformer
	events      *events.SubscriptionManager
	registry    *Registry
	reaper      *scheduler.Scheduler
	pages       singleflight.Group
	onDemand    singleflight.Group
	logger      *logrus.Entry
	now         func() time.Time

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	navigator interfaces.Navigator
	waiting   map[string]int
	wg        sync.WaitGroup
}

// NewCoordinator creates a coordinator; call Start to run the registry reaper
func NewCoordinator(cfg config.PreloadConfig, deps Deps, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Coordinator{
		cfg:         cfg,
		cache:       deps.Cache,
		repo:        deps.Repo,
		validator:   deps.Validator,
		fetcher:     deps.Fetcher,
		transformer: deps.Transformer,
		events:      deps.Events,
		registry:    NewRegistry(cfg.GetMaxConcurrent()),
		logger:      logger.WithField("component", metrics.ComponentPreload),
		now:         time.Now,
		ctx:         context.Background(),
		waiting:     make(map[string]int),
	}
	if c.events == nil {
		c.events = events.NewSubscriptionManager()
	}
	c.reaper = scheduler.New(cfg.GetReapInterval(), c.reap)
	return c
}

// SetNavigator sets the router told about coin navigations
func (c *Coordinator) SetNavigator(navigator interfaces.Navigator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.navigator = navigator
}

// Start implements core.Interface
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	if c.fetcher == nil || c.transformer == nil || c.cache == nil || c.repo == nil {
		return fmt.Errorf("preload coordinator not properly initialized")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.reaper.Start(c.ctx, false)
	c.logger.Infof("Preload coordinator started, max %d concurrent preloads", c.registry.Max())
	return nil
}

// Stop implements core.Interface. In-flight preloads are cancelled and awaited.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	c.reaper.Stop()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Registry exposes the in-flight set
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Events returns the manager preload signals are emitted on
func (c *Coordinator) Events() *events.SubscriptionManager {
	return c.events
}

func (c *Coordinator) baseContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *Coordinator) trusted() bool {
	return c.validator != nil && c.validator.Trusted()
}

func (c *Coordinator) targets() []models.Currency {
	return c.transformer.Targets()
}

// RequestPreload starts fetching id's details in the current currency unless they are
// cached or already in flight. A full registry returns ErrCapacity and changes nothing.
func (c *Coordinator) RequestPreload(ctx context.Context, id string) (Outcome, error) {
	if id == "" {
		return "", fmt.Errorf("coin ID is required")
	}
	return c.preload(id, c.cache.Currency())
}

func (c *Coordinator) preload(id string, currency models.Currency) (Outcome, error) {
	if c.cache.Details().Has(currency, id) {
		metrics.RecordPreloadOutcome(string(OutcomeCached))
		return OutcomeCached, nil
	}

	ticket, err := c.registry.TryAdd(id, c.slotDeadline())
	switch {
	case errors.Is(err, ErrAlreadyInFlight):
		metrics.RecordPreloadOutcome(string(OutcomeInFlight))
		return OutcomeInFlight, nil
	case errors.Is(err, ErrCapacity):
		c.logger.Warnf("Preload of %s rejected, %d preloads in flight", id, c.registry.Len())
		metrics.RecordPreloadOutcome(outcomeCapacity)
		return "", fmt.Errorf("preload %s: %w", id, err)
	case err != nil:
		return "", err
	}

	// a preload may have landed between the cache check and admission
	if c.cache.Details().Has(currency, id) {
		c.release(id, ticket)
		metrics.RecordPreloadOutcome(string(OutcomeCached))
		return OutcomeCached, nil
	}

	metrics.RecordRegistrySize(c.registry.Len())
	metrics.RecordPreloadOutcome(string(OutcomeDispatched))

	c.wg.Add(1)
	go c.run(id, currency, ticket)
	return OutcomeDispatched, nil
}

// run is the dispatched pipeline: fetch, transform, write memory and store, release, signal
func (c *Coordinator) run(id string, currency models.Currency, ticket uint64) {
	defer c.wg.Done()

	base := c.baseContext()
	ctx, cancel := context.WithTimeout(base, c.cfg.GetFetchTimeout())
	defer cancel()

	start := time.Now()
	details, err := c.fetcher.FetchCoinDetails(ctx, id, currency)
	if err != nil {
		c.release(id, ticket)
		c.logger.WithError(err).Warnf("Preload of %s failed", id)
		metrics.RecordPreloadOutcome(outcomeFailed)
		c.events.Emit(context.Background(), events.Signal{Kind: events.KindPreloadFailed, ID: id})
		return
	}

	c.storeDetails(base, id, currency, details)
	c.release(id, ticket)

	metrics.RecordPreloadOutcome(outcomeResolved)
	c.logger.Debugf("Preloaded %s in %s", id, time.Since(start))
	c.events.Emit(context.Background(), events.Signal{Kind: events.KindPreloadResolved, ID: id})
}

// slotDeadline is when the reaper may take back a slot. It runs one reap interval past
// the fetch timeout so a fetch that returned just in time can still write its result.
func (c *Coordinator) slotDeadline() time.Time {
	return c.now().Add(c.cfg.GetFetchTimeout() + c.cfg.GetReapInterval())
}

// shared runs fn once for all concurrent callers of key. fn runs detached from the
// callers' contexts, bounded by the fetch timeout and by Stop. A caller whose ctx
// ends stops waiting; the others still get the result.
func (c *Coordinator) shared(ctx context.Context, group *singleflight.Group, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := c.baseContext()
	ch := group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.GetFetchTimeout())
		defer cancel()
		stop := context.AfterFunc(base, cancel)
		defer stop()
		return fn(fetchCtx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) release(id string, ticket uint64) {
	if !c.registry.Remove(id, ticket) {
		c.logger.Debugf("Preload slot of %s was already released", id)
	}
	metrics.RecordRegistrySize(c.registry.Len())
}

// reap releases slots of fetches that outlived their deadline
func (c *Coordinator) reap(ctx context.Context) {
	for _, id := range c.registry.Reap(c.now()) {
		c.logger.Warnf("Preload of %s timed out, slot released", id)
		metrics.RecordPreloadOutcome(outcomeTimedOut)
		c.events.Emit(context.Background(), events.Signal{Kind: events.KindPreloadFailed, ID: id})
	}
	metrics.RecordRegistrySize(c.registry.Len())
}

// storeDetails converts details into every currency and writes them to memory and
// the store. Coins evicted from memory are dropped from the store as well.
func (c *Coordinator) storeDetails(ctx context.Context, id string, currency models.Currency, details models.CoinDetails) map[models.Currency]models.CoinDetails {
	byCurrency := c.denominateCoin(ctx, details, currency)
	c.writeDetails(ctx, id, byCurrency)
	return byCurrency
}

func (c *Coordinator) writeDetails(ctx context.Context, id string, byCurrency map[models.Currency]models.CoinDetails) {
	evicted := c.cache.SetCoinDetails(id, byCurrency)
	if err := c.repo.SetCoinDetails(ctx, id, byCurrency); err != nil {
		c.logger.WithError(err).Warnf("Failed to persist details of %s", id)
	}
	for _, gone := range evicted {
		c.logger.Debugf("Evicted %s from preloaded coins", gone)
		if err := c.repo.DeleteCoinDetails(ctx, gone, c.targets()); err != nil {
			c.logger.WithError(err).Warnf("Failed to delete evicted coin %s", gone)
		}
	}
}

// denominateCoin converts details into every currency. When conversion fails the
// record is kept as fetched, in its source currency only.
func (c *Coordinator) denominateCoin(ctx context.Context, details models.CoinDetails, currency models.Currency) map[models.Currency]models.CoinDetails {
	rates, _ := c.cache.Rates()
	out := make(map[models.Currency]models.CoinDetails)

	resp, err := c.transformer.Transform(ctx, transform.Request{Coin: &details, Rates: rates, Currency: currency})
	if err != nil {
		c.logger.WithError(err).Warnf("Failed to transform %s", details.ID)
	}
	for target, converted := range resp.TransformedCoin {
		out[target] = converted
	}
	if _, ok := out[currency]; !ok {
		out[currency] = details
	}
	return out
}

func (c *Coordinator) denominateCoins(ctx context.Context, coins []models.CoinOverview, currency models.Currency) map[models.Currency][]models.CoinOverview {
	rates, _ := c.cache.Rates()
	out := make(map[models.Currency][]models.CoinOverview)

	resp, err := c.transformer.Transform(ctx, transform.Request{Coins: coins, Rates: rates, Currency: currency})
	if err != nil {
		c.logger.WithError(err).Warnf("Failed to transform %d coins", len(coins))
	}
	for target, list := range resp.TransformedCoins {
		out[target] = list
	}
	if _, ok := out[currency]; !ok {
		out[currency] = coins
	}
	return out
}
