package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/status-im/market-hydrator/config"
	"github.com/status-im/market-hydrator/core"
	"github.com/status-im/market-hydrator/models"
)

var faint = color.New(color.Faint).SprintFunc()

func newLogger(cfg config.LogConfig, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
		})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	return logger
}

func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		logrus.Warnf("No config file at %s, using defaults", path)
		return config.Default(), nil
	}
	return cfg, err
}

func highlightChange(changePct float64) string {
	changeText := strconv.FormatFloat(changePct, 'f', 2, 64)
	switch {
	case changePct == 0:
		return faint("0")
	case changePct > 0:
		return color.GreenString(changeText)
	default:
		return color.RedString(changeText)
	}
}

func formatAmount(v *float64) string {
	if v == nil {
		return faint("-")
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func renderTable(w io.Writer, currency models.Currency, coins []models.CoinOverview) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	headers := []string{"#", "Symbol", "Name", "Price (" + string(currency) + ")", "%Change(24h)", "Market Cap"}
	for i, hdr := range headers {
		headers[i] = color.YellowString(hdr)
	}
	table.SetHeader(headers)
	table.SetCenterSeparator(faint("-"))
	table.SetColumnSeparator(faint("|"))
	table.SetRowSeparator(faint("-"))

	for _, coin := range coins {
		table.Append([]string{
			strconv.Itoa(coin.MarketCapRank),
			strings.ToUpper(coin.Symbol),
			coin.Name,
			formatAmount(coin.CurrentPrice),
			highlightChange(coin.PriceChangePercentage24h),
			formatAmount(coin.MarketCap),
		})
	}
	table.Render()
}

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "Config file path")
	once := pflag.Bool("once", false, "Hydrate, print the popular coins and exit")
	page := pflag.IntP("page", "p", 1, "Popular coins page printed by --once")
	debug := pflag.BoolP("debug", "d", false, "Enable debug logging")
	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	cfg, err := loadConfig(*configPath, pflag.CommandLine.Changed("config"))
	if err != nil {
		logrus.Fatalf("Error loading config: %v", err)
	}
	logger := newLogger(cfg.Log, *debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal, stopping services...")
		cancel()
	}()

	app, err := core.Setup(cfg, logger, !*once)
	if err != nil {
		logger.Fatalf("Failed to set up services: %v", err)
	}
	if err := app.StartAll(ctx); err != nil {
		logger.Fatalf("Failed to start services: %v", err)
	}
	defer app.StopAll()

	if err := app.Hydrate(ctx); err != nil {
		logger.WithError(err).Warn("Start-up hydration incomplete")
	}

	if *once {
		currency := app.Cache.Currency()
		coins, _, err := app.Coordinator.RequestPage(ctx, currency, *page)
		if err != nil {
			logger.Errorf("Failed to load popular coins: %v", err)
			return
		}
		renderTable(os.Stdout, currency, coins)
		fmt.Fprintln(os.Stderr, faint(fmt.Sprintf("cache version %s, %d coins", app.Controller.ServerVersion(), len(coins))))
		return
	}

	<-ctx.Done()
}
