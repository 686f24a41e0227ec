package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-im/market-hydrator/config"
	"github.com/status-im/market-hydrator/models"
)

func TestRenderTable(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	renderTable(&out, models.CAD, []models.CoinOverview{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", MarketCapRank: 1, CurrentPrice: models.Float(135), PriceChangePercentage24h: 1.5},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", MarketCapRank: 2, PriceChangePercentage24h: -0.25},
	})

	rendered := out.String()
	assert.Contains(t, rendered, "Price (CAD)")
	assert.Contains(t, rendered, "BTC")
	assert.Contains(t, rendered, "135")
	assert.Contains(t, rendered, "1.50")
	assert.Contains(t, rendered, "-0.25")
}

func TestHighlightChange(t *testing.T) {
	color.NoColor = true
	assert.Equal(t, "0", highlightChange(0))
	assert.Equal(t, "2.50", highlightChange(2.5))
	assert.Equal(t, "-1.00", highlightChange(-1))
}

func TestNewLogger(t *testing.T) {
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, false)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger = newLogger(config.LogConfig{Level: "bogus"}, false)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	logger = newLogger(config.LogConfig{Level: "error"}, true)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := loadConfig(missing, false)
	require.NoError(t, err)
	assert.Equal(t, "USD", cfg.GetCurrency())

	_, err = loadConfig(missing, true)
	assert.Error(t, err)
}
