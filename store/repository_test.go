package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mock_store "github.com/status-im/market-hydrator/store/mocks"

	"github.com/status-im/market-hydrator/models"
	"github.com/status-im/market-hydrator/store"
)

func openRepository(t *testing.T) *store.Repository {
	t.Helper()
	s := store.NewMemoryStore()
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { s.Close() })
	return store.NewRepository(s)
}

func TestRepository_CacheInfo(t *testing.T) {
	ctx := context.Background()
	repo := openRepository(t)

	_, err := repo.CacheInfo(ctx)
	assert.True(t, store.IsNotFound(err))

	info := models.GlobalCacheInfo{Version: "v2", LastUpdated: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, repo.Reset(ctx, info))

	got, err := repo.CacheInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.Version, got.Version)
	assert.True(t, info.LastUpdated.Equal(got.LastUpdated))
}

func TestRepository_PopularPages(t *testing.T) {
	ctx := context.Background()
	repo := openRepository(t)

	page1 := []models.CoinOverview{{ID: "bitcoin", CurrentPrice: models.Float(100)}}
	page2 := []models.CoinOverview{{ID: "dogecoin", CurrentPrice: models.Float(0.1)}}
	require.NoError(t, repo.SetPopularCoins(ctx, models.CAD, 1, page1))
	require.NoError(t, repo.SetPopularCoins(ctx, models.CAD, 2, page2))
	require.NoError(t, repo.SetPopularCoins(ctx, models.USD, 1, page1))

	got, err := repo.PopularCoins(ctx, models.CAD, 2)
	require.NoError(t, err)
	assert.Equal(t, page2, got)

	pages, err := repo.PopularPages(ctx, models.CAD)
	require.NoError(t, err)
	assert.Equal(t, map[int][]models.CoinOverview{1: page1, 2: page2}, pages)
}

func TestRepository_CoinDetails(t *testing.T) {
	ctx := context.Background()
	repo := openRepository(t)

	btc := models.CoinDetails{CoinOverview: models.CoinOverview{ID: "bitcoin", CurrentPrice: models.Float(100)}}
	require.NoError(t, repo.SetCoinDetails(ctx, "bitcoin", map[models.Currency]models.CoinDetails{
		models.USD: btc,
		models.CAD: btc,
	}))

	got, err := repo.CoinDetails(ctx, models.CAD, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "bitcoin", got.ID)

	usd, err := repo.CoinDetailsIn(ctx, models.USD)
	require.NoError(t, err)
	assert.Contains(t, usd, "bitcoin")

	require.NoError(t, repo.DeleteCoinDetails(ctx, "bitcoin", []models.Currency{models.USD, models.CAD}))
	_, err = repo.CoinDetails(ctx, models.USD, "bitcoin")
	assert.True(t, store.IsNotFound(err))
}

func TestRepository_Rates(t *testing.T) {
	ctx := context.Background()
	repo := openRepository(t)

	rates := models.CurrencyRates{models.CAD: {models.USD: 0.74}}
	require.NoError(t, repo.SetRates(ctx, models.USD, rates))

	got, err := repo.Rates(ctx, models.USD)
	require.NoError(t, err)
	assert.Equal(t, rates, got)
}

func TestRepository_PropagatesStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockStore := mock_store.NewMockStore(ctrl)
	repo := store.NewRepository(mockStore)
	ctx := context.Background()

	boom := errors.New("disk I/O error")
	mockStore.EXPECT().Get(gomock.Any(), store.TableGlobalCacheInfo, store.MetaKey).Return(nil, boom)
	_, err := repo.CacheInfo(ctx)
	assert.ErrorIs(t, err, boom)

	mockStore.EXPECT().Get(gomock.Any(), store.TableCurrencyRates, "USD").Return([]byte("not json"), nil)
	_, err = repo.Rates(ctx, models.USD)
	assert.Error(t, err)
	assert.False(t, store.IsNotFound(err))
}
