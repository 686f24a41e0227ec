package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/status-im/market-hydrator/config"
	"github.com/status-im/market-hydrator/models"
)

// New builds the backend selected by cfg.Driver. The returned store is closed.
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.GetDriver() {
	case config.StoreDriverSQLite:
		return NewSQLiteStore(cfg.GetPath()), nil
	case config.StoreDriverMemory:
		return NewMemoryStore(), nil
	case config.StoreDriverRedis:
		return NewRedisStore(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Repository gives typed JSON access to the four tables
type Repository struct {
	store Store
}

func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// Store returns the underlying store
func (r *Repository) Store() Store {
	return r.store
}

func (r *Repository) get(ctx context.Context, table Table, key string, out interface{}) error {
	data, err := r.store.Get(ctx, table, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", table, key, err)
	}
	return nil
}

func (r *Repository) set(ctx context.Context, table Table, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", table, key, err)
	}
	return r.store.Set(ctx, table, key, data)
}

// CacheInfo reads the global cache metadata
func (r *Repository) CacheInfo(ctx context.Context) (models.GlobalCacheInfo, error) {
	var info models.GlobalCacheInfo
	err := r.get(ctx, TableGlobalCacheInfo, MetaKey, &info)
	return info, err
}

// Reset clears all tables and records info as the new metadata
func (r *Repository) Reset(ctx context.Context, info models.GlobalCacheInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode cache info: %w", err)
	}
	return r.store.Reset(ctx, data)
}

func (r *Repository) PopularCoins(ctx context.Context, currency models.Currency, page int) ([]models.CoinOverview, error) {
	var coins []models.CoinOverview
	err := r.get(ctx, TablePopularCoins, PopularKey(currency, page), &coins)
	return coins, err
}

func (r *Repository) SetPopularCoins(ctx context.Context, currency models.Currency, page int, coins []models.CoinOverview) error {
	return r.set(ctx, TablePopularCoins, PopularKey(currency, page), coins)
}

// PopularPages returns every stored page of currency keyed by page number
func (r *Repository) PopularPages(ctx context.Context, currency models.Currency) (map[int][]models.CoinOverview, error) {
	entries, err := r.store.List(ctx, TablePopularCoins, string(currency))
	if err != nil {
		return nil, err
	}
	out := make(map[int][]models.CoinOverview)
	for key, data := range entries {
		page := 1
		if key != string(currency) {
			rest, ok := strings.CutPrefix(key, string(currency)+"/")
			if !ok {
				continue
			}
			n, err := strconv.Atoi(rest)
			if err != nil {
				continue
			}
			page = n
		}
		var coins []models.CoinOverview
		if err := json.Unmarshal(data, &coins); err != nil {
			return nil, fmt.Errorf("failed to decode popular page %s: %w", key, err)
		}
		out[page] = coins
	}
	return out, nil
}

func (r *Repository) CoinDetails(ctx context.Context, currency models.Currency, id string) (models.CoinDetails, error) {
	var details models.CoinDetails
	err := r.get(ctx, TableCoinDetails, DetailsKey(currency, id), &details)
	return details, err
}

// SetCoinDetails writes one coin in every given currency
func (r *Repository) SetCoinDetails(ctx context.Context, id string, byCurrency map[models.Currency]models.CoinDetails) error {
	for currency, details := range byCurrency {
		if err := r.set(ctx, TableCoinDetails, DetailsKey(currency, id), details); err != nil {
			return err
		}
	}
	return nil
}

// CoinDetailsIn returns every stored coin of currency keyed by coin ID
func (r *Repository) CoinDetailsIn(ctx context.Context, currency models.Currency) (map[string]models.CoinDetails, error) {
	entries, err := r.store.List(ctx, TableCoinDetails, string(currency)+"/")
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.CoinDetails, len(entries))
	for key, data := range entries {
		_, id, ok := ParseDetailsKey(key)
		if !ok {
			continue
		}
		var details models.CoinDetails
		if err := json.Unmarshal(data, &details); err != nil {
			return nil, fmt.Errorf("failed to decode coin details %s: %w", key, err)
		}
		out[id] = details
	}
	return out, nil
}

// DeleteCoinDetails removes id in every given currency
func (r *Repository) DeleteCoinDetails(ctx context.Context, id string, currencies []models.Currency) error {
	for _, currency := range currencies {
		if err := r.store.Delete(ctx, TableCoinDetails, DetailsKey(currency, id)); err != nil {
			return err
		}
	}
	return nil
}

// Rates reads the rates table stored under base
func (r *Repository) Rates(ctx context.Context, base models.Currency) (models.CurrencyRates, error) {
	var rates models.CurrencyRates
	err := r.get(ctx, TableCurrencyRates, string(base), &rates)
	return rates, err
}

func (r *Repository) SetRates(ctx context.Context, base models.Currency, rates models.CurrencyRates) error {
	return r.set(ctx, TableCurrencyRates, string(base), rates)
}

// IsNotFound reports whether err means the key is absent
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
