package interfaces

import (
	"context"

	"github.com/status-im/market-hydrator/models"
)

//go:generate mockgen -destination=mocks/coin_fetcher.go . CoinFetcher

// CoinFetcher fetches market data over the network
type CoinFetcher interface {
	// FetchPopularCoins fetches one page of coins ordered by market cap, priced in currency
	FetchPopularCoins(ctx context.Context, currency models.Currency, page int) ([]models.CoinOverview, error)

	// FetchCoinDetails fetches a coin with its period changes and charts, priced in currency
	FetchCoinDetails(ctx context.Context, id string, currency models.Currency) (models.CoinDetails, error)

	// FetchRates fetches the exchange rates between supported currencies
	FetchRates(ctx context.Context) (models.CurrencyRates, error)
}
