package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/status-im/market-hydrator/models"
)

const ratesKey = "rates"

// Service is the in-memory application state: the data the UI renders from.
// Popular lists and details are keyed by currency; entries of other currencies stay
// around inactive after a currency switch.
type Service struct {
	config Config

	popular *GoCache[[]models.CoinOverview]
	details *DetailsCache
	rates   *GoCache[models.CurrencyRates]

	mu       sync.RWMutex
	currency models.Currency
	selected *models.CoinDetails
}

// NewService creates a new cache service with the given configuration
func NewService(config Config, currency models.Currency) *Service {
	cleanup := config.GoCache.GetCleanupInterval()
	pricesTTL := config.GoCache.GetPricesTTL()

	return &Service{
		config:   config,
		popular:  NewGoCache[[]models.CoinOverview](pricesTTL, cleanup),
		details:  NewDetailsCache(config.GetMaxPreloadedCoins(), pricesTTL, cleanup),
		rates:    NewGoCache[models.CurrencyRates](config.GoCache.GetRatesTTL(), cleanup),
		currency: currency,
	}
}

// Start implements core.Interface
func (s *Service) Start(ctx context.Context) error {
	if s.popular == nil || s.details == nil || s.rates == nil {
		return fmt.Errorf("cache service not properly initialized")
	}
	return nil
}

// Stop implements core.Interface
func (s *Service) Stop() {
	s.Clear()
}

// Currency returns the active display currency
func (s *Service) Currency() models.Currency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currency
}

// SetCurrency switches the active currency and returns the previous one
func (s *Service) SetCurrency(currency models.Currency) models.Currency {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.currency
	s.currency = currency
	return previous
}

func popularKey(currency models.Currency, page int) string {
	if page <= 1 {
		return string(currency)
	}
	return string(currency) + "/" + strconv.Itoa(page)
}

// PopularCoins returns a cached popular coins page
func (s *Service) PopularCoins(currency models.Currency, page int) ([]models.CoinOverview, bool) {
	return s.popular.GetOne(popularKey(currency, page))
}

// SetPopularCoins replaces a popular coins page
func (s *Service) SetPopularCoins(currency models.Currency, page int, coins []models.CoinOverview) {
	s.popular.Set(popularKey(currency, page), coins, 0)
}

// AnyPopularCoins returns page in the first currency of preferred that has it
func (s *Service) AnyPopularCoins(page int, preferred []models.Currency) ([]models.CoinOverview, models.Currency, bool) {
	for _, currency := range preferred {
		if coins, ok := s.PopularCoins(currency, page); ok {
			return coins, currency, true
		}
	}
	return nil, "", false
}

// Details exposes the FIFO-bounded coin details cache
func (s *Service) Details() *DetailsCache {
	return s.details
}

// CoinDetails returns the details of id in currency
func (s *Service) CoinDetails(currency models.Currency, id string) (models.CoinDetails, bool) {
	return s.details.Get(currency, id)
}

// HasCoinDetails reports whether id is ready in the active currency
func (s *Service) HasCoinDetails(id string) bool {
	return s.details.Has(s.Currency(), id)
}

// SetCoinDetails stores one coin in several currencies; returns evicted coin IDs
func (s *Service) SetCoinDetails(id string, byCurrency map[models.Currency]models.CoinDetails) []string {
	evicted := s.details.Put(id, byCurrency)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected != nil {
		for _, gone := range evicted {
			if gone == s.selected.ID {
				s.selected = nil
				break
			}
		}
	}
	return evicted
}

// Rates returns the cached exchange rates
func (s *Service) Rates() (models.CurrencyRates, bool) {
	return s.rates.GetOne(ratesKey)
}

// SetRates replaces the exchange rates. Rates use the longer rates TTL.
func (s *Service) SetRates(rates models.CurrencyRates) {
	s.rates.Set(ratesKey, rates.WithSelfRates(), 0)
}

// Select marks details as the coin being viewed
func (s *Service) Select(details models.CoinDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = &details
}

// Selected returns the coin being viewed
func (s *Service) Selected() (models.CoinDetails, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return models.CoinDetails{}, false
	}
	return *s.selected, true
}

// InvalidatePrices drops every currency-dependent entry but keeps rates and currency
func (s *Service) InvalidatePrices() {
	s.popular.Clear()
	s.details.Clear()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
}

// Clear removes everything
func (s *Service) Clear() {
	s.InvalidatePrices()
	s.rates.Clear()
}

// Stats returns statistics about the cache service
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		PopularPages:  s.popular.ItemCount(),
		DetailedCoins: s.details.Len(),
		HasRates:      s.rates.ItemCount() > 0,
	}
}

// ServiceStats represents cache service statistics
type ServiceStats struct {
	PopularPages  int  `json:"popular_pages"`  // Number of cached popular pages across currencies
	DetailedCoins int  `json:"detailed_coins"` // Number of coins with details
	HasRates      bool `json:"has_rates"`      // Whether exchange rates are cached
}
