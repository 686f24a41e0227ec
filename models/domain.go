package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoDomain is returned for a nil route
var ErrNoDomain = errors.New("models: no domain")

// GlobalCacheInfo is the server-issued cache version mirrored to the persistent store
type GlobalCacheInfo struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// DomainKind names a hydration data domain
type DomainKind string

const (
	DomainPopularCoins DomainKind = "popular-coins"
	DomainCoinDetails  DomainKind = "coin-details"
)

// DomainKinds lists every kind, used to seed per-domain state
var DomainKinds = []DomainKind{DomainPopularCoins, DomainCoinDetails}

// Domain is a closed set of data domains a route can need.
// The unexported method seals it to the variants declared in this package;
// use MatchDomain to branch on it.
type Domain interface {
	Kind() DomainKind
	sealedDomain()
}

// PopularCoins is the popular coins list page in a currency
type PopularCoins struct {
	Currency Currency
	Page     int
}

// CoinDetailsOf is a single coin's details in a currency
type CoinDetailsOf struct {
	ID       string
	Currency Currency
}

func (PopularCoins) Kind() DomainKind  { return DomainPopularCoins }
func (CoinDetailsOf) Kind() DomainKind { return DomainCoinDetails }
func (PopularCoins) sealedDomain()     {}
func (CoinDetailsOf) sealedDomain()    {}

// CheckDomain returns ErrNoDomain for a nil interface or a nil variant pointer
func CheckDomain(d Domain) error {
	switch v := d.(type) {
	case nil:
		return ErrNoDomain
	case *PopularCoins:
		if v == nil {
			return ErrNoDomain
		}
	case *CoinDetailsOf:
		if v == nil {
			return ErrNoDomain
		}
	}
	return nil
}

// MatchDomain dispatches d to the handler for its variant.
// Every variant must be given a handler, so adding a variant breaks all call sites at compile time.
// A domain rejected by CheckDomain yields the zero T without calling either handler.
func MatchDomain[T any](d Domain, popular func(PopularCoins) T, details func(CoinDetailsOf) T) T {
	var zero T
	if CheckDomain(d) != nil {
		return zero
	}
	switch v := d.(type) {
	case PopularCoins:
		return popular(v)
	case *PopularCoins:
		return popular(*v)
	case CoinDetailsOf:
		return details(v)
	case *CoinDetailsOf:
		return details(*v)
	}
	panic(fmt.Sprintf("models: unknown domain %T", d))
}

// WithCurrency returns d re-targeted at currency c
func WithCurrency(d Domain, c Currency) Domain {
	return MatchDomain(d,
		func(p PopularCoins) Domain { p.Currency = c; return p },
		func(cd CoinDetailsOf) Domain { cd.Currency = c; return cd },
	)
}
