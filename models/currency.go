package models

import (
	"fmt"
	"strings"
)

// Currency is an upper-case ISO 4217 code
type Currency string

const (
	USD Currency = "USD"
	CAD Currency = "CAD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
)

// DefaultCurrencies is used when the configuration does not list any
var DefaultCurrencies = []Currency{USD, CAD, EUR, GBP, JPY}

// Lower returns the code in the lower-case form CoinGecko expects
func (c Currency) Lower() string {
	return strings.ToLower(string(c))
}

func (c Currency) String() string {
	return string(c)
}

// ParseCurrency normalises s and checks it against supported
func ParseCurrency(s string, supported []Currency) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if c == "" {
		return "", fmt.Errorf("empty currency")
	}
	for _, sc := range supported {
		if sc == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("unsupported currency %q", s)
}

// CurrencyRates maps a base currency to target currency -> multiplicative rate
type CurrencyRates map[Currency]map[Currency]float64

// Rate returns the multiplier converting an amount in from into to.
// The self-rate is always 1.
func (r CurrencyRates) Rate(from, to Currency) (float64, bool) {
	if from == to {
		return 1, true
	}
	targets, ok := r[from]
	if !ok {
		return 0, false
	}
	rate, ok := targets[to]
	if !ok || rate <= 0 {
		return 0, false
	}
	return rate, true
}

// WithSelfRates returns a copy of r where every base currency has CUR->CUR = 1
func (r CurrencyRates) WithSelfRates() CurrencyRates {
	out := make(CurrencyRates, len(r))
	for base, targets := range r {
		cp := make(map[Currency]float64, len(targets)+1)
		for target, rate := range targets {
			cp[target] = rate
		}
		cp[base] = 1
		out[base] = cp
	}
	return out
}

// FromBaseValues builds a full cross-rate table from quotes that share one base,
// e.g. CoinGecko's exchange_rates where every value is "units per BTC".
// Currencies with a non-positive value are left out.
func FromBaseValues(values map[Currency]float64) CurrencyRates {
	rates := make(CurrencyRates, len(values))
	for from, fromValue := range values {
		if fromValue <= 0 {
			continue
		}
		targets := make(map[Currency]float64, len(values))
		for to, toValue := range values {
			if toValue <= 0 {
				continue
			}
			targets[to] = toValue / fromValue
		}
		targets[from] = 1
		rates[from] = targets
	}
	return rates
}
