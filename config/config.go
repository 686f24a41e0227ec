package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/status-im/market-hydrator/cache"
	"github.com/status-im/market-hydrator/models"
)

// EnvPrefix is the prefix for environment overrides, e.g. MARKET_HYDRATOR_STORE_DRIVER
const EnvPrefix = "MARKET_HYDRATOR"

type Config struct {
	// Currency is the display currency used until the client picks another one
	Currency            string   `yaml:"currency"`
	SupportedCurrencies []string `yaml:"supported_currencies"`
	// GlobalCacheVersion is the version token the server hands out with rendered pages
	GlobalCacheVersion string `yaml:"global_cache_version"`
	TokensFile         string `yaml:"tokens_file"`

	Store     StoreConfig     `yaml:"store"`
	Cache     cache.Config    `yaml:"cache"`
	Validator ValidatorConfig `yaml:"validator"`
	Preload   PreloadConfig   `yaml:"preload"`
	Transform TransformConfig `yaml:"transform"`
	Hydration HydrationConfig `yaml:"hydration"`
	CoinGecko CoinGeckoConfig `yaml:"coingecko"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`

	APITokens *APITokens `yaml:"-"`
}

// StoreConfig selects and configures the persistent store backend
type StoreConfig struct {
	// Driver is one of "sqlite", "memory", "redis"
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Redis  RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type ValidatorConfig struct {
	// TTL is how long a validated cache stays trusted without a new version
	TTL time.Duration `yaml:"ttl"`
	// Timeout bounds one metadata check, independently of the callers waiting on it
	Timeout time.Duration `yaml:"timeout"`
}

type PreloadConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	ReapInterval  time.Duration `yaml:"reap_interval"`
	PerPage       int           `yaml:"per_page"`
}

type TransformConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type HydrationConfig struct {
	RatesRefreshInterval time.Duration `yaml:"rates_refresh_interval"`
	// RatesBase is the currency rates are requested against when nothing else is known
	RatesBase string `yaml:"rates_base"`
}

type CoinGeckoConfig struct {
	PublicURL  string       `yaml:"public_url"`
	ProURL     string       `yaml:"pro_url"`
	MaxRetries int          `yaml:"max_retries"`
	RateLimits APIKeyConfig `yaml:"rate_limits"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	// RetryAfter is advertised to clients whose navigation or preload was refused
	RetryAfter time.Duration `yaml:"retry_after"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	applyEnvOverrides(&config)

	apiTokens, err := LoadAPITokens(config.TokensFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load api tokens from %s: %w", config.TokensFile, err)
	}
	config.APITokens = apiTokens

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns a config usable without a file
func Default() *Config {
	return &Config{
		Currency:  string(models.USD),
		Cache:     cache.DefaultCacheConfig(),
		APITokens: &APITokens{Tokens: []string{}},
	}
}

var envKeys = []string{
	"currency",
	"global_cache_version",
	"tokens_file",
	"store.driver",
	"store.path",
	"store.redis.addr",
	"store.redis.password",
	"server.port",
	"log.level",
	"log.format",
	"coingecko.public_url",
	"coingecko.pro_url",
}

// applyEnvOverrides lets MARKET_HYDRATOR_* variables override file values
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	targets := map[string]*string{
		"currency":             &cfg.Currency,
		"global_cache_version": &cfg.GlobalCacheVersion,
		"tokens_file":          &cfg.TokensFile,
		"store.driver":         &cfg.Store.Driver,
		"store.path":           &cfg.Store.Path,
		"store.redis.addr":     &cfg.Store.Redis.Addr,
		"store.redis.password": &cfg.Store.Redis.Password,
		"server.port":          &cfg.Server.Port,
		"log.level":            &cfg.Log.Level,
		"log.format":           &cfg.Log.Format,
		"coingecko.public_url": &cfg.CoinGecko.PublicURL,
		"coingecko.pro_url":    &cfg.CoinGecko.ProURL,
	}
	for key, target := range targets {
		if v.IsSet(key) {
			*target = v.GetString(key)
		}
	}
}

// Validate checks values that have no sensible default
func (c *Config) Validate() error {
	supported := c.GetSupportedCurrencies()
	if _, err := models.ParseCurrency(c.GetCurrency(), supported); err != nil {
		return fmt.Errorf("currency: %w", err)
	}
	if _, err := models.ParseCurrency(c.Hydration.GetRatesBase(), supported); err != nil {
		return fmt.Errorf("hydration.rates_base: %w", err)
	}

	switch c.Store.GetDriver() {
	case StoreDriverSQLite, StoreDriverMemory:
	case StoreDriverRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}

	if c.Preload.MaxConcurrent < 0 {
		return fmt.Errorf("preload.max_concurrent must not be negative")
	}
	return nil
}

func (c *Config) GetCurrency() string {
	if c.Currency == "" {
		return string(models.USD)
	}
	return strings.ToUpper(c.Currency)
}

func (c *Config) GetSupportedCurrencies() []models.Currency {
	if len(c.SupportedCurrencies) == 0 {
		return models.DefaultCurrencies
	}
	out := make([]models.Currency, 0, len(c.SupportedCurrencies))
	for _, s := range c.SupportedCurrencies {
		out = append(out, models.Currency(strings.ToUpper(strings.TrimSpace(s))))
	}
	return out
}

// GetGlobalCacheVersion falls back to a fixed token so a fresh install still validates
func (c *Config) GetGlobalCacheVersion() string {
	if c.GlobalCacheVersion == "" {
		return "v1"
	}
	return c.GlobalCacheVersion
}

const (
	StoreDriverSQLite = "sqlite"
	StoreDriverMemory = "memory"
	StoreDriverRedis  = "redis"
)

func (c *StoreConfig) GetDriver() string {
	if c.Driver == "" {
		return StoreDriverSQLite
	}
	return strings.ToLower(c.Driver)
}

func (c *StoreConfig) GetPath() string {
	if c.Path == "" {
		return "market-hydrator.db"
	}
	return c.Path
}

func (c *RedisConfig) GetKeyPrefix() string {
	if c.KeyPrefix == "" {
		return "hydrator"
	}
	return c.KeyPrefix
}

func (c *ValidatorConfig) GetTTL() time.Duration {
	if c.TTL <= 0 {
		return 5 * time.Minute
	}
	return c.TTL
}

func (c *ValidatorConfig) GetTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

func (c *PreloadConfig) GetMaxConcurrent() int {
	if c.MaxConcurrent <= 0 {
		return 3
	}
	return c.MaxConcurrent
}

func (c *PreloadConfig) GetFetchTimeout() time.Duration {
	if c.FetchTimeout <= 0 {
		return 20 * time.Second
	}
	return c.FetchTimeout
}

func (c *PreloadConfig) GetReapInterval() time.Duration {
	if c.ReapInterval <= 0 {
		return 5 * time.Second
	}
	return c.ReapInterval
}

func (c *PreloadConfig) GetPerPage() int {
	if c.PerPage <= 0 {
		return 100
	}
	if c.PerPage > 250 {
		return 250 // CoinGecko's max per_page
	}
	return c.PerPage
}

func (c *TransformConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 2
	}
	return c.Workers
}

func (c *TransformConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 64
	}
	return c.QueueSize
}

func (c *HydrationConfig) GetRatesRefreshInterval() time.Duration {
	if c.RatesRefreshInterval <= 0 {
		return time.Hour
	}
	return c.RatesRefreshInterval
}

func (c *HydrationConfig) GetRatesBase() string {
	if c.RatesBase == "" {
		return string(models.USD)
	}
	return strings.ToUpper(c.RatesBase)
}

func (c *CoinGeckoConfig) GetMaxRetries() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

func (c *ServerConfig) GetPort() string {
	if c.Port == "" {
		return "8080"
	}
	return c.Port
}

func (c *ServerConfig) GetRetryAfter() time.Duration {
	if c.RetryAfter <= 0 {
		return 5 * time.Second
	}
	return c.RetryAfter
}
