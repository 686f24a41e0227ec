package models

import (
	"encoding/json"
	"fmt"
)

// Period identifies a price-change / chart window
type Period string

const (
	Period24h  Period = "24h"
	Period7d   Period = "7d"
	Period30d  Period = "30d"
	Period365d Period = "365d"
)

// Periods lists every supported period in display order
var Periods = []Period{Period24h, Period7d, Period30d, Period365d}

// ChartDays returns the market_chart "days" parameter for the period
func (p Period) ChartDays() int {
	switch p {
	case Period24h:
		return 1
	case Period7d:
		return 7
	case Period30d:
		return 30
	case Period365d:
		return 365
	}
	return 0
}

// CoinOverview is one row of the popular coins list in a given currency.
// Monetary fields are pointers: nil means the source payload did not carry the field.
type CoinOverview struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	Image                    string   `json:"image"`
	CurrentPrice             *float64 `json:"current_price"`
	TotalVolume              *float64 `json:"total_volume"`
	MarketCap                *float64 `json:"market_cap"`
	MarketCapRank            int      `json:"market_cap_rank"`
	PriceChangePercentage24h float64  `json:"price_change_percentage_24h"`
}

// CoinDetails extends CoinOverview with description, multi-period changes and charts
type CoinDetails struct {
	CoinOverview

	Description           string                  `json:"description"`
	PriceChangePercentage map[Period]float64      `json:"price_change_percentage"`
	PriceChange           map[Period]float64      `json:"price_change"`
	Prices                map[Period][]PricePoint `json:"prices"`
}

// PricePoint is a single (timestamp, price) sample. Timestamp is in milliseconds.
type PricePoint struct {
	Timestamp int64
	Price     float64
}

// MarshalJSON encodes the point as a [timestamp, price] pair
func (p PricePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{float64(p.Timestamp), p.Price})
}

// UnmarshalJSON decodes a [timestamp, price] pair
func (p *PricePoint) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("price point must have 2 elements, got %d", len(pair))
	}
	p.Timestamp = int64(pair[0])
	p.Price = pair[1]
	return nil
}

// Float returns a pointer to v, handy for building records in code
func Float(v float64) *float64 {
	return &v
}
