package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/status-im/market-hydrator/config"
	"github.com/status-im/market-hydrator/metrics"
	"github.com/status-im/market-hydrator/models"
)

// percentage keys of /coins/{id} market_data per period
var percentageSuffix = map[models.Period]string{
	models.Period24h:  "24h",
	models.Period7d:   "7d",
	models.Period30d:  "30d",
	models.Period365d: "1y",
}

// Client fetches popular lists, coin details and exchange rates from CoinGecko
type Client struct {
	cfg        config.CoinGeckoConfig
	perPage    int
	currencies []models.Currency

	keyManager      *APIKeyManager
	httpClient      *HTTPClientWithRetries
	metrics         *metrics.MetricsWriter
	logger          *logrus.Entry
	successfulFetch atomic.Bool
}

// NewClient creates a CoinGecko client from the application config
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithField("component", "coingecko")

	retryOpts := DefaultRetryOptions()
	retryOpts.MaxRetries = cfg.CoinGecko.GetMaxRetries()

	metricsWriter := metrics.NewMetricsWriter(metrics.ComponentCoingecko)
	limiters := NewRateLimiterManager(cfg.CoinGecko.RateLimits, cfg.CoinGecko.PublicURL, cfg.CoinGecko.ProURL)

	return &Client{
		cfg:        cfg.CoinGecko,
		perPage:    cfg.Preload.GetPerPage(),
		currencies: cfg.GetSupportedCurrencies(),
		keyManager: NewAPIKeyManager(cfg.APITokens),
		httpClient: NewHTTPClientWithRetries(retryOpts, metricsWriter, limiters, entry),
		metrics:    metricsWriter,
		logger:     entry,
	}
}

// Healthy reports whether at least one fetch succeeded
func (c *Client) Healthy() bool {
	return c.successfulFetch.Load()
}

func (c *Client) baseURL(keyType KeyType) string {
	if keyType == ProKey {
		if c.cfg.ProURL != "" {
			return c.cfg.ProURL
		}
		return ProURL
	}
	if c.cfg.PublicURL != "" {
		return c.cfg.PublicURL
	}
	return PublicURL
}

// get fetches apiPath with params, rotating API keys on failure
func (c *Client) get(ctx context.Context, apiPath string, params map[string]string) ([]byte, error) {
	return tryWithKeys(ctx, c.keyManager, c.logger, func(key APIKey) ([]byte, error) {
		rb := NewRequestBuilder(c.baseURL(key.Type), apiPath).WithApiKey(key)
		for k, v := range params {
			rb.With(k, v)
		}
		req, err := rb.Build(ctx)
		if err != nil {
			return nil, err
		}

		body, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if !gjson.ValidBytes(body) {
			return nil, fmt.Errorf("invalid JSON from %s", apiPath)
		}
		// CoinGecko reports some failures with a 200 and a status object
		if code := gjson.GetBytes(body, "status.error_code"); code.Exists() {
			return nil, fmt.Errorf("%s: error %d: %s", apiPath, code.Int(), gjson.GetBytes(body, "status.error_message").String())
		}
		c.successfulFetch.Store(true)
		return body, nil
	})
}

// FetchPopularCoins fetches one page of coins ordered by market cap
func (c *Client) FetchPopularCoins(ctx context.Context, currency models.Currency, page int) ([]models.CoinOverview, error) {
	defer c.metrics.RecordFetch("popular", time.Now())
	if page < 1 {
		page = 1
	}

	body, err := c.get(ctx, "/api/v3/coins/markets", map[string]string{
		"vs_currency":             currency.Lower(),
		"order":                   "market_cap_desc",
		"per_page":                strconv.Itoa(c.perPage),
		"page":                    strconv.Itoa(page),
		"sparkline":               "false",
		"price_change_percentage": "24h",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch popular coins %s page %d: %w", currency, page, err)
	}
	if !gjson.ParseBytes(body).IsArray() {
		return nil, fmt.Errorf("unexpected popular coins payload: %.100s", body)
	}

	var coins []models.CoinOverview
	if err := json.Unmarshal(body, &coins); err != nil {
		return nil, fmt.Errorf("failed to decode popular coins: %w", err)
	}
	c.logger.Debugf("Fetched %d popular coins in %s, page %d", len(coins), currency, page)
	return coins, nil
}

func optionalFloat(r gjson.Result) *float64 {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	v := r.Float()
	return &v
}

// FetchCoinDetails fetches a coin's market data and its charts for every period in currency
func (c *Client) FetchCoinDetails(ctx context.Context, id string, currency models.Currency) (models.CoinDetails, error) {
	defer c.metrics.RecordFetch("details", time.Now())
	if id == "" {
		return models.CoinDetails{}, fmt.Errorf("coin ID is required")
	}

	g, gctx := errgroup.WithContext(ctx)

	var body []byte
	g.Go(func() error {
		var err error
		body, err = c.get(gctx, "/api/v3/coins/"+id, map[string]string{
			"localization":   "false",
			"tickers":        "false",
			"market_data":    "true",
			"community_data": "false",
			"developer_data": "false",
			"sparkline":      "false",
		})
		return err
	})

	charts := make([][]models.PricePoint, len(models.Periods))
	for i, period := range models.Periods {
		i, period := i, period
		g.Go(func() error {
			points, err := c.fetchChart(gctx, id, currency, period)
			charts[i] = points
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return models.CoinDetails{}, fmt.Errorf("failed to fetch coin %s: %w", id, err)
	}

	details := parseCoinDetails(gjson.ParseBytes(body), currency)
	details.Prices = make(map[models.Period][]models.PricePoint, len(models.Periods))
	for i, period := range models.Periods {
		details.Prices[period] = charts[i]
		if _, ok := details.PriceChange[period]; ok || details.CurrentPrice == nil || len(charts[i]) == 0 {
			continue
		}
		details.PriceChange[period] = *details.CurrentPrice - charts[i][0].Price
	}
	return details, nil
}

func parseCoinDetails(doc gjson.Result, currency models.Currency) models.CoinDetails {
	cur := currency.Lower()
	market := doc.Get("market_data")

	details := models.CoinDetails{
		CoinOverview: models.CoinOverview{
			ID:                       doc.Get("id").String(),
			Symbol:                   doc.Get("symbol").String(),
			Name:                     doc.Get("name").String(),
			Image:                    doc.Get("image.large").String(),
			CurrentPrice:             optionalFloat(market.Get("current_price." + cur)),
			MarketCap:                optionalFloat(market.Get("market_cap." + cur)),
			TotalVolume:              optionalFloat(market.Get("total_volume." + cur)),
			MarketCapRank:            int(doc.Get("market_cap_rank").Int()),
			PriceChangePercentage24h: market.Get("price_change_percentage_24h_in_currency." + cur).Float(),
		},
		Description:           doc.Get("description.en").String(),
		PriceChangePercentage: make(map[models.Period]float64, len(models.Periods)),
		PriceChange:           make(map[models.Period]float64, len(models.Periods)),
	}

	for period, suffix := range percentageSuffix {
		if pct := market.Get("price_change_percentage_" + suffix + "_in_currency." + cur); pct.Exists() {
			details.PriceChangePercentage[period] = pct.Float()
		}
	}
	if change := market.Get("price_change_24h_in_currency." + cur); change.Exists() {
		details.PriceChange[models.Period24h] = change.Float()
	}
	return details
}

func (c *Client) fetchChart(ctx context.Context, id string, currency models.Currency, period models.Period) ([]models.PricePoint, error) {
	body, err := c.get(ctx, "/api/v3/coins/"+id+"/market_chart", map[string]string{
		"vs_currency": currency.Lower(),
		"days":        strconv.Itoa(period.ChartDays()),
	})
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", period, err)
	}

	prices := gjson.GetBytes(body, "prices").Array()
	points := make([]models.PricePoint, 0, len(prices))
	for _, pair := range prices {
		values := pair.Array()
		if len(values) != 2 || values[1].Type == gjson.Null {
			continue
		}
		points = append(points, models.PricePoint{Timestamp: values[0].Int(), Price: values[1].Float()})
	}
	return points, nil
}

// FetchRates fetches exchange rates and builds the cross table of supported currencies
func (c *Client) FetchRates(ctx context.Context) (models.CurrencyRates, error) {
	defer c.metrics.RecordFetch("rates", time.Now())

	body, err := c.get(ctx, "/api/v3/exchange_rates", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange rates: %w", err)
	}

	values := make(map[models.Currency]float64, len(c.currencies))
	for _, currency := range c.currencies {
		if v := gjson.GetBytes(body, "rates."+currency.Lower()+".value"); v.Exists() {
			values[currency] = v.Float()
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("exchange rates carry none of the supported currencies")
	}
	return models.FromBaseValues(values), nil
}
