package preload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mock_interfaces "github.com/status-im/market-hydrator/interfaces/mocks"

	"github.com/status-im/market-hydrator/cache"
	"github.com/status-im/market-hydrator/config"
	"github.com/status-im/market-hydrator/events"
	"github.com/status-im/market-hydrator/interfaces"
	"github.com/status-im/market-hydrator/models"
	"github.com/status-im/market-hydrator/store"
	"github.com/status-im/market-hydrator/transform"
	"github.com/status-im/market-hydrator/validator"
)

var testCurrencies = []models.Currency{models.USD, models.CAD}

type fixture struct {
	fetcher     *mock_interfaces.MockCoinFetcher
	cache       *cache.Service
	repo        *store.Repository
	validator   *validator.Validator
	coordinator *Coordinator
}

func newFixture(t *testing.T, cfg config.PreloadConfig) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := logrus.New()

	ctrl := gomock.NewController(t)
	fetcher := mock_interfaces.NewMockCoinFetcher(ctrl)

	memory := store.NewMemoryStore()
	require.NoError(t, memory.Open(ctx))
	repo := store.NewRepository(memory)

	worker := transform.NewWorker(config.TransformConfig{}, testCurrencies, logger)
	require.NoError(t, worker.Start(ctx))
	t.Cleanup(worker.Stop)

	cacheService := cache.NewService(cache.DefaultCacheConfig(), models.USD)
	v := validator.New(repo, config.ValidatorConfig{}, logger)

	c := NewCoordinator(cfg, Deps{
		Cache:       cacheService,
		Repo:        repo,
		Validator:   v,
		Fetcher:     fetcher,
		Transformer: worker,
		Events:      events.NewSubscriptionManager(),
	}, logger)
	require.NoError(t, c.Start(ctx))
	t.Cleanup(c.Stop)

	return &fixture{fetcher: fetcher, cache: cacheService, repo: repo, validator: v, coordinator: c}
}

func coin(id string, price float64) models.CoinDetails {
	return models.CoinDetails{
		CoinOverview: models.CoinOverview{
			ID:           id,
			Symbol:       id,
			CurrentPrice: models.Float(price),
			MarketCap:    models.Float(price * 1000),
			TotalVolume:  models.Float(price * 10),
		},
		PriceChange: map[models.Period]float64{models.Period24h: price / 10},
	}
}

// blockingFetch returns details for any ID once release is closed
func blockingFetch(release <-chan struct{}, calls *atomic.Int32) func(context.Context, string, models.Currency) (models.CoinDetails, error) {
	return func(ctx context.Context, id string, currency models.Currency) (models.CoinDetails, error) {
		calls.Add(1)
		select {
		case <-release:
			return coin(id, 100), nil
		case <-ctx.Done():
			return models.CoinDetails{}, ctx.Err()
		}
	}
}

func TestRequestPreload_Idempotent(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{})
	ctx := context.Background()
	f.cache.SetRates(models.CurrencyRates{models.USD: {models.CAD: 1.35}})

	release := make(chan struct{})
	var calls atomic.Int32
	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "bitcoin", models.USD).
		DoAndReturn(blockingFetch(release, &calls)).Times(1)

	outcome, err := f.coordinator.RequestPreload(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDispatched, outcome)

	outcome, err = f.coordinator.RequestPreload(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInFlight, outcome)
	assert.Equal(t, 1, f.coordinator.Registry().Len())

	close(release)
	require.Eventually(t, func() bool {
		return f.coordinator.Registry().Len() == 0
	}, time.Second, 5*time.Millisecond)

	// written in every currency, memory and store
	assert.True(t, f.cache.Details().Has(models.USD, "bitcoin"))
	assert.True(t, f.cache.Details().Has(models.CAD, "bitcoin"))
	stored, err := f.repo.CoinDetails(ctx, models.USD, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 100.0, *stored.CurrentPrice)

	outcome, err = f.coordinator.RequestPreload(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCached, outcome)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRequestPreload_CapacityLeavesRegistryUnchanged(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{MaxConcurrent: 3})
	ctx := context.Background()

	release := make(chan struct{})
	defer close(release)
	var calls atomic.Int32
	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), gomock.Any(), models.USD).
		DoAndReturn(blockingFetch(release, &calls)).Times(3)

	for _, id := range []string{"bitcoin", "ethereum", "solana"} {
		outcome, err := f.coordinator.RequestPreload(ctx, id)
		require.NoError(t, err)
		require.Equal(t, OutcomeDispatched, outcome)
	}
	before := f.coordinator.Registry().Snapshot()

	_, err := f.coordinator.RequestPreload(ctx, "cardano")
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, before, f.coordinator.Registry().Snapshot())
	assert.False(t, f.coordinator.Registry().Contains("cardano"))
}

func TestRequestPreload_FailureReleasesSlot(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{})
	ctx := context.Background()

	failed := f.coordinator.Events().SubscribeFiltered(events.ForID("bitcoin", events.KindPreloadFailed))
	defer f.coordinator.Events().Unsubscribe(failed)

	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "bitcoin", models.USD).
		Return(models.CoinDetails{}, errors.New("network down"))

	outcome, err := f.coordinator.RequestPreload(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDispatched, outcome)

	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatal("no failure signal")
	}
	assert.Equal(t, 0, f.coordinator.Registry().Len())
	assert.False(t, f.cache.Details().Has(models.USD, "bitcoin"), "no partial cache entry")
	_, err = f.repo.CoinDetails(ctx, models.USD, "bitcoin")
	assert.True(t, store.IsNotFound(err))
}

func TestRequestPreload_MalformedRecordCachedInSourceCurrency(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{})
	f.cache.SetRates(models.CurrencyRates{models.USD: {models.CAD: 1.35}})

	broken := coin("bitcoin", 100)
	broken.CurrentPrice = nil
	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "bitcoin", models.USD).Return(broken, nil)

	_, err := f.coordinator.RequestPreload(context.Background(), "bitcoin")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.cache.Details().Has(models.USD, "bitcoin")
	}, time.Second, 5*time.Millisecond)
	assert.False(t, f.cache.Details().Has(models.CAD, "bitcoin"))
}

func TestRequestPreload_ReaperReleasesHungFetch(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{
		FetchTimeout: 30 * time.Millisecond,
		ReapInterval: 10 * time.Millisecond,
	})
	ctx := context.Background()

	// first fetch ignores its context
	hung := make(chan struct{})
	var calls atomic.Int32
	first := f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "bitcoin", models.USD).
		DoAndReturn(func(ctx context.Context, id string, currency models.Currency) (models.CoinDetails, error) {
			calls.Add(1)
			<-hung
			return models.CoinDetails{}, errors.New("gave up")
		})
	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "bitcoin", models.USD).
		Return(coin("bitcoin", 1), nil).After(first)

	_, err := f.coordinator.RequestPreload(ctx, "bitcoin")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.coordinator.Registry().Len() == 0
	}, time.Second, 5*time.Millisecond)

	outcome, err := f.coordinator.RequestPreload(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDispatched, outcome)

	require.Eventually(t, func() bool {
		return f.cache.Details().Has(models.USD, "bitcoin")
	}, time.Second, 5*time.Millisecond)

	close(hung)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRequestNavigation_DeferredUntilPreloadResolves(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{})
	ctx := context.Background()

	navigator := mock_interfaces.NewMockNavigator(gomock.NewController(t))
	navigator.EXPECT().Navigate(gomock.Any(), models.CoinDetailsOf{ID: "bitcoin", Currency: models.USD}).Return(nil)
	f.coordinator.SetNavigator(navigator)

	release := make(chan struct{})
	var calls atomic.Int32
	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "bitcoin", models.USD).
		DoAndReturn(blockingFetch(release, &calls)).Times(1)

	// hover
	outcome, err := f.coordinator.RequestPreload(ctx, "bitcoin")
	require.NoError(t, err)
	require.Equal(t, OutcomeDispatched, outcome)

	// click before the preload resolves
	var (
		wg      sync.WaitGroup
		navErr  error
		details models.CoinDetails
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		details, navErr = f.coordinator.RequestNavigation(ctx, "bitcoin")
	}()

	require.Eventually(t, func() bool {
		return f.coordinator.WaitingFor("bitcoin")
	}, time.Second, 5*time.Millisecond)
	_, selected := f.cache.Selected()
	assert.False(t, selected, "selection waits for the data")

	close(release)
	wg.Wait()

	require.NoError(t, navErr)
	assert.Equal(t, "bitcoin", details.ID)
	assert.False(t, f.coordinator.WaitingFor("bitcoin"))
	assert.Empty(t, f.coordinator.Waiting())

	got, ok := f.cache.Selected()
	require.True(t, ok)
	assert.Equal(t, "bitcoin", got.ID)
	assert.Equal(t, int32(1), calls.Load(), "navigation reuses the preload")
}

func TestRequestNavigation_CachedSelectsImmediately(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{})
	f.cache.SetCoinDetails("bitcoin", map[models.Currency]models.CoinDetails{models.USD: coin("bitcoin", 5)})

	details, err := f.coordinator.RequestNavigation(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 5.0, *details.CurrentPrice)

	selected, ok := f.cache.Selected()
	require.True(t, ok)
	assert.Equal(t, "bitcoin", selected.ID)
}

func TestRequestNavigation_DerivesFromOtherCurrency(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{})
	f.cache.SetRates(models.CurrencyRates{models.CAD: {models.USD: 0.74}})
	f.cache.SetCoinDetails("bitcoin", map[models.Currency]models.CoinDetails{models.CAD: coin("bitcoin", 100)})

	details, status, err := f.coordinator.CoinDetails(context.Background(), "bitcoin", models.USD)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CacheStatusDerived, status)
	assert.InDelta(t, 74.0, *details.CurrentPrice, 1e-9)
	assert.InDelta(t, 7.4, details.PriceChange[models.Period24h], 1e-9)
}

func TestRequestNavigation_FailureIsRetryable(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{})

	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "bitcoin", models.USD).
		Return(models.CoinDetails{}, errors.New("network down"))

	_, err := f.coordinator.RequestNavigation(context.Background(), "bitcoin")
	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, "bitcoin", navErr.ID)
	assert.True(t, navErr.Retryable())
	assert.ErrorIs(t, err, ErrPreloadFailed)
	assert.Equal(t, 0, f.coordinator.Registry().Len())

	// the next click is the retry
	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "bitcoin", models.USD).Return(coin("bitcoin", 1), nil)
	_, err = f.coordinator.RequestNavigation(context.Background(), "bitcoin")
	assert.NoError(t, err)
}

func TestRequestNavigation_CapacityFallsBackToOnDemandFetch(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{MaxConcurrent: 1})
	ctx := context.Background()
	f.cache.SetRates(models.CurrencyRates{models.USD: {models.CAD: 1.35}})

	release := make(chan struct{})
	defer close(release)
	var calls atomic.Int32
	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "ethereum", models.USD).
		DoAndReturn(blockingFetch(release, &calls))
	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "bitcoin", models.USD).
		Return(coin("bitcoin", 3), nil)

	_, err := f.coordinator.RequestPreload(ctx, "ethereum")
	require.NoError(t, err)

	details, err := f.coordinator.RequestNavigation(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 3.0, *details.CurrentPrice)
	require.Len(t, f.coordinator.Registry().Snapshot(), 1)
	assert.Equal(t, "ethereum", f.coordinator.Registry().Snapshot()[0].ID)
	assert.True(t, f.cache.Details().Has(models.CAD, "bitcoin"))
}

func TestRequestPage(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{})
	ctx := context.Background()
	f.cache.SetRates(models.CurrencyRates{models.USD: {models.CAD: 2}})

	page := []models.CoinOverview{coin("bitcoin", 10).CoinOverview, coin("ethereum", 1).CoinOverview}

	release := make(chan struct{})
	f.fetcher.EXPECT().FetchPopularCoins(gomock.Any(), models.USD, 2).
		DoAndReturn(func(ctx context.Context, currency models.Currency, page int) ([]models.CoinOverview, error) {
			<-release
			return []models.CoinOverview{coin("bitcoin", 10).CoinOverview, coin("ethereum", 1).CoinOverview}, nil
		}).Times(1)

	var wg sync.WaitGroup
	statuses := make([]interfaces.CacheStatus, 5)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			coins, status, err := f.coordinator.RequestPage(ctx, models.USD, 2)
			assert.NoError(t, err)
			assert.Equal(t, page, coins)
			statuses[i] = status
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	// every concurrent caller shares the single fetch
	for _, s := range statuses {
		assert.Contains(t, []interfaces.CacheStatus{interfaces.CacheStatusMiss, interfaces.CacheStatusHit}, s)
	}

	coins, status, err := f.coordinator.RequestPage(ctx, models.USD, 2)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CacheStatusHit, status)
	assert.Len(t, coins, 2)

	cad, status, err := f.coordinator.RequestPage(ctx, models.CAD, 2)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CacheStatusHit, status, "other currencies are converted with the fetch")
	assert.Equal(t, 20.0, *cad[0].CurrentPrice)

	stored, err := f.repo.PopularCoins(ctx, models.CAD, 2)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRequestPage_DerivedFromPersistedCurrency(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{})
	ctx := context.Background()

	require.True(t, f.validator.Validate(ctx, "v1").Valid)
	require.NoError(t, f.repo.SetPopularCoins(ctx, models.CAD, 1, []models.CoinOverview{coin("bitcoin", 100).CoinOverview}))
	f.cache.SetRates(models.CurrencyRates{models.CAD: {models.USD: 0.74}})

	// no FetchPopularCoins expectation: any network call fails the test
	coins, status, err := f.coordinator.RequestPage(ctx, models.USD, 1)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CacheStatusDerived, status)
	require.Len(t, coins, 1)
	assert.InDelta(t, 74.0, *coins[0].CurrentPrice, 1e-9)
}

func TestRequestPage_StoreReadOnlyWhenTrusted(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{})
	ctx := context.Background()
	require.NoError(t, f.repo.SetPopularCoins(ctx, models.USD, 1, []models.CoinOverview{coin("stale", 1).CoinOverview}))

	fresh := []models.CoinOverview{coin("bitcoin", 1).CoinOverview}
	f.fetcher.EXPECT().FetchPopularCoins(gomock.Any(), models.USD, 1).Return(fresh, nil)

	coins, status, err := f.coordinator.RequestPage(ctx, models.USD, 1)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CacheStatusMiss, status)
	assert.Equal(t, "bitcoin", coins[0].ID)
}

func TestRequestPreload_ConcurrentSameID(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{MaxConcurrent: 3})
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int32
	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "bitcoin", models.USD).
		DoAndReturn(blockingFetch(release, &calls)).Times(1)

	start := make(chan struct{})
	var wg sync.WaitGroup
	outcomes := make([]Outcome, 20)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			outcome, err := f.coordinator.RequestPreload(ctx, "bitcoin")
			assert.NoError(t, err)
			outcomes[i] = outcome
		}(i)
	}
	close(start)
	wg.Wait()

	dispatched := 0
	for _, outcome := range outcomes {
		if outcome == OutcomeDispatched {
			dispatched++
		} else {
			assert.Equal(t, OutcomeInFlight, outcome)
		}
	}
	assert.Equal(t, 1, dispatched)
	assert.Equal(t, 1, f.coordinator.Registry().Len())

	close(release)
	require.Eventually(t, func() bool {
		return f.coordinator.Registry().Len() == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRequestPreload_ConcurrentDistinctIDsRespectBound(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{MaxConcurrent: 3})
	ctx := context.Background()

	release := make(chan struct{})
	var mu sync.Mutex
	fetched := make(map[string]int)
	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), gomock.Any(), models.USD).
		DoAndReturn(func(ctx context.Context, id string, currency models.Currency) (models.CoinDetails, error) {
			mu.Lock()
			fetched[id]++
			mu.Unlock()
			<-release
			return coin(id, 1), nil
		}).Times(3)

	var maxSeen atomic.Int32
	stopWatching := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		for {
			if n := int32(f.coordinator.Registry().Len()); n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			select {
			case <-stopWatching:
				return
			case <-time.After(100 * time.Microsecond):
			}
		}
	}()

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	start := make(chan struct{})
	var wg sync.WaitGroup
	var dispatched, rejected atomic.Int32
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			outcome, err := f.coordinator.RequestPreload(ctx, id)
			switch {
			case errors.Is(err, ErrCapacity):
				rejected.Add(1)
			case err == nil && outcome == OutcomeDispatched:
				dispatched.Add(1)
			default:
				t.Errorf("unexpected preload result for %s: %q, %v", id, outcome, err)
			}
		}(id)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(3), dispatched.Load())
	assert.Equal(t, int32(7), rejected.Load())
	assert.Equal(t, 3, f.coordinator.Registry().Len())

	close(release)
	require.Eventually(t, func() bool {
		return f.coordinator.Registry().Len() == 0
	}, time.Second, 5*time.Millisecond)
	close(stopWatching)
	<-watched

	assert.LessOrEqual(t, maxSeen.Load(), int32(3))
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, fetched, 3)
	for id, n := range fetched {
		assert.Equal(t, 1, n, id)
	}
}

func TestRequestPreload_SlotOutlivesFetchTimeout(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{FetchTimeout: time.Second, ReapInterval: 500 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)
	var calls atomic.Int32
	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "bitcoin", models.USD).
		DoAndReturn(blockingFetch(release, &calls))

	before := time.Now()
	_, err := f.coordinator.RequestPreload(context.Background(), "bitcoin")
	require.NoError(t, err)
	after := time.Now()

	entries := f.coordinator.Registry().Snapshot()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Deadline.Before(before.Add(1500*time.Millisecond)))
	assert.False(t, entries[0].Deadline.After(after.Add(1500*time.Millisecond)))
	assert.Empty(t, f.coordinator.Registry().Reap(after.Add(time.Second)), "a fetch returning at its timeout keeps its slot")
}

func TestRequestPage_FollowerSurvivesLeaderCancel(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{})

	started := make(chan struct{})
	release := make(chan struct{})
	f.fetcher.EXPECT().FetchPopularCoins(gomock.Any(), models.USD, 1).
		DoAndReturn(func(ctx context.Context, currency models.Currency, page int) ([]models.CoinOverview, error) {
			close(started)
			select {
			case <-release:
				return []models.CoinOverview{coin("bitcoin", 1).CoinOverview}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}).Times(1)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leader := make(chan error, 1)
	go func() {
		_, _, err := f.coordinator.RequestPage(leaderCtx, models.USD, 1)
		leader <- err
	}()
	<-started

	type pageCall struct {
		coins []models.CoinOverview
		err   error
	}
	follower := make(chan pageCall, 1)
	go func() {
		coins, _, err := f.coordinator.RequestPage(context.Background(), models.USD, 1)
		follower <- pageCall{coins, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	assert.ErrorIs(t, <-leader, context.Canceled)

	close(release)
	got := <-follower
	require.NoError(t, got.err)
	require.Len(t, got.coins, 1)
	assert.Equal(t, "bitcoin", got.coins[0].ID)

	_, ok := f.cache.PopularCoins(models.USD, 1)
	assert.True(t, ok)
}

func TestRequestNavigation_OnDemandFollowerSurvivesLeaderCancel(t *testing.T) {
	f := newFixture(t, config.PreloadConfig{MaxConcurrent: 1})

	hold := make(chan struct{})
	defer close(hold)
	var held atomic.Int32
	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "ethereum", models.USD).
		DoAndReturn(blockingFetch(hold, &held))

	started := make(chan struct{})
	release := make(chan struct{})
	f.fetcher.EXPECT().FetchCoinDetails(gomock.Any(), "bitcoin", models.USD).
		DoAndReturn(func(ctx context.Context, id string, currency models.Currency) (models.CoinDetails, error) {
			close(started)
			select {
			case <-release:
				return coin(id, 5), nil
			case <-ctx.Done():
				return models.CoinDetails{}, ctx.Err()
			}
		}).Times(1)

	_, err := f.coordinator.RequestPreload(context.Background(), "ethereum")
	require.NoError(t, err)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leader := make(chan error, 1)
	go func() {
		_, err := f.coordinator.RequestNavigation(leaderCtx, "bitcoin")
		leader <- err
	}()
	<-started

	type navCall struct {
		details models.CoinDetails
		err     error
	}
	follower := make(chan navCall, 1)
	go func() {
		details, err := f.coordinator.RequestNavigation(context.Background(), "bitcoin")
		follower <- navCall{details, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	var navErr *NavigationError
	leaderErr := <-leader
	require.True(t, errors.As(leaderErr, &navErr))
	assert.ErrorIs(t, leaderErr, context.Canceled)

	close(release)
	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, 5.0, *got.details.CurrentPrice)
}
