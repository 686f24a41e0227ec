package cache

import "time"

// Config represents in-memory cache configuration
type Config struct {
	GoCache GoCacheConfig `yaml:"go_cache"`

	// MaxPreloadedCoins caps how many coins keep details in memory.
	// The oldest inserted coin is evicted first.
	MaxPreloadedCoins int `yaml:"max_preloaded_coins"`
}

// GoCacheConfig configures the go-cache instances backing the state
type GoCacheConfig struct {
	// CleanupInterval interval for cleaning up expired items
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// PricesTTL applies to popular lists and coin details
	PricesTTL time.Duration `yaml:"prices_ttl"`

	// RatesTTL applies to exchange rates, which change far less often than prices
	RatesTTL time.Duration `yaml:"rates_ttl"`
}

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() Config {
	return Config{
		GoCache: GoCacheConfig{
			CleanupInterval: 10 * time.Minute,
			PricesTTL:       5 * time.Minute,
			RatesTTL:        time.Hour,
		},
		MaxPreloadedCoins: 10,
	}
}

func (c *Config) GetMaxPreloadedCoins() int {
	if c.MaxPreloadedCoins <= 0 {
		return 10
	}
	return c.MaxPreloadedCoins
}

func (c *GoCacheConfig) GetCleanupInterval() time.Duration {
	if c.CleanupInterval <= 0 {
		return 10 * time.Minute
	}
	return c.CleanupInterval
}

func (c *GoCacheConfig) GetPricesTTL() time.Duration {
	if c.PricesTTL <= 0 {
		return 5 * time.Minute
	}
	return c.PricesTTL
}

func (c *GoCacheConfig) GetRatesTTL() time.Duration {
	if c.RatesTTL <= 0 {
		return time.Hour
	}
	return c.RatesTTL
}
