package store

//go:generate mockgen -destination=mocks/store.go . Store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/status-im/market-hydrator/models"
)

// Table names one of the four logical tables
type Table string

const (
	TablePopularCoins    Table = "popularCoinsLists"
	TableCoinDetails     Table = "coinDetails"
	TableCurrencyRates   Table = "currencyRates"
	TableGlobalCacheInfo Table = "globalCacheInfo"
)

// Tables lists every table, in the order Reset clears them
var Tables = []Table{TablePopularCoins, TableCoinDetails, TableCurrencyRates, TableGlobalCacheInfo}

// MetaKey is the only key of TableGlobalCacheInfo
const MetaKey = "meta"

var (
	// ErrNotReady is returned by data calls on a store that is not open
	ErrNotReady = errors.New("store: not ready")
	// ErrNotFound is returned by Get for a missing key
	ErrNotFound = errors.New("store: not found")
)

// Store is the persistent key/value capability consumed by the validator, preload and
// hydration components. Values are opaque bytes; writes replace whole records.
//
// A store starts closed; Open makes it ready and Close returns it to closed. Every data
// call on a store that is not ready returns ErrNotReady.
type Store interface {
	Open(ctx context.Context) error
	Ready() bool
	Get(ctx context.Context, table Table, key string) ([]byte, error)
	Set(ctx context.Context, table Table, key string, value []byte) error
	Delete(ctx context.Context, table Table, key string) error
	// List returns every entry of table whose key starts with prefix
	List(ctx context.Context, table Table, prefix string) (map[string][]byte, error)
	// Reset empties all tables and writes meta under MetaKey, all or nothing
	Reset(ctx context.Context, meta []byte) error
	Close() error
}

func checkTable(table Table) error {
	for _, t := range Tables {
		if t == table {
			return nil
		}
	}
	return fmt.Errorf("store: unknown table %q", table)
}

// PopularKey is the popularCoinsLists key of a page; page 1 is keyed by currency alone
func PopularKey(currency models.Currency, page int) string {
	if page <= 1 {
		return string(currency)
	}
	return string(currency) + "/" + strconv.Itoa(page)
}

// DetailsKey is the coinDetails key of one coin in one currency
func DetailsKey(currency models.Currency, id string) string {
	return string(currency) + "/" + id
}

// ParseDetailsKey splits a coinDetails key
func ParseDetailsKey(key string) (models.Currency, string, bool) {
	currency, id, ok := strings.Cut(key, "/")
	if !ok || currency == "" || id == "" {
		return "", "", false
	}
	return models.Currency(currency), id, true
}
