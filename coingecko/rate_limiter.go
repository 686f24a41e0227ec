package coingecko

import (
	"math"
	"net/url"
	"sync"

	"golang.org/x/time/rate"

	"github.com/status-im/market-hydrator/config"
)

// Defaults in requests per minute, used when config is not provided
const (
	defaultProRPM   = 500
	defaultDemoRPM  = 30
	defaultNoKeyRPM = 30
)

// RateLimiterManager keeps one limiter per API key, sized by the key's type
type RateLimiterManager struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	config   config.APIKeyConfig
	// hosts subject to the keyless limiter
	publicHosts map[string]struct{}
}

func NewRateLimiterManager(cfg config.APIKeyConfig, baseURLs ...string) *RateLimiterManager {
	hosts := map[string]struct{}{
		"api.coingecko.com":     {},
		"pro-api.coingecko.com": {},
	}
	for _, raw := range baseURLs {
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			hosts[u.Hostname()] = struct{}{}
		}
	}
	return &RateLimiterManager{
		limiters:    make(map[string]*rate.Limiter),
		config:      cfg,
		publicHosts: hosts,
	}
}

// LimiterForURL picks the limiter from the key carried in the query, or the keyless
// limiter for CoinGecko hosts. Other hosts are not limited.
func (m *RateLimiterManager) LimiterForURL(u *url.URL) *rate.Limiter {
	if m == nil || u == nil {
		return nil
	}
	query := u.Query()
	if key := query.Get(proKeyParam); key != "" {
		return m.limiterFor(key, ProKey)
	}
	if key := query.Get(demoKeyParam); key != "" {
		return m.limiterFor(key, DemoKey)
	}
	if _, ok := m.publicHosts[u.Hostname()]; ok {
		return m.limiterFor("", NoKey)
	}
	return nil
}

func (m *RateLimiterManager) limiterFor(key string, keyType KeyType) *rate.Limiter {
	mapKey := keyType.String() + "|" + key

	m.mu.Lock()
	defer m.mu.Unlock()
	if limiter, ok := m.limiters[mapKey]; ok {
		return limiter
	}

	settings, fallback := m.config.NoKey, defaultNoKeyRPM
	switch keyType {
	case ProKey:
		settings, fallback = m.config.Pro, defaultProRPM
	case DemoKey:
		settings, fallback = m.config.Demo, defaultDemoRPM
	}

	rpm := settings.RateLimitPerMinute
	if rpm <= 0 {
		rpm = fallback
	}
	limit := rate.Limit(float64(rpm) / 60.0)

	burst := settings.Burst
	if burst <= 0 {
		burst = 1
		if limit > 1 {
			burst = int(math.Ceil(float64(limit)))
		}
	}

	limiter := rate.NewLimiter(limit, burst)
	m.limiters[mapKey] = limiter
	return limiter
}
