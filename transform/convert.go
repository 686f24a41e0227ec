package transform

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/status-im/market-hydrator/models"
)

var (
	// ErrMissingField marks a record lacking a monetary field; it is skipped, never zero-filled
	ErrMissingField = errors.New("record is missing a monetary field")
	// ErrMissingRate marks a source/target pair absent from the rates table
	ErrMissingRate = errors.New("rates table lacks currency")
)

// Skipped reports one record left out of a response
type Skipped struct {
	ID       string
	Currency models.Currency
	Err      error
}

func (s Skipped) String() string {
	switch {
	case s.Currency == "":
		return fmt.Sprintf("%s: %v", s.ID, s.Err)
	case s.ID == "":
		return fmt.Sprintf("%s: %v", s.Currency, s.Err)
	}
	return fmt.Sprintf("%s in %s: %v", s.ID, s.Currency, s.Err)
}

func scale(v, rate decimal.Decimal) float64 {
	f, _ := v.Mul(rate).Float64()
	return f
}

func scalePtr(v *float64, rate decimal.Decimal) *float64 {
	if v == nil {
		return nil
	}
	f := scale(decimal.NewFromFloat(*v), rate)
	return &f
}

// CheckOverview verifies the monetary fields conversion needs are present
func CheckOverview(coin models.CoinOverview) error {
	switch {
	case coin.CurrentPrice == nil:
		return fmt.Errorf("%w: %s current_price", ErrMissingField, coin.ID)
	case coin.MarketCap == nil:
		return fmt.Errorf("%w: %s market_cap", ErrMissingField, coin.ID)
	case coin.TotalVolume == nil:
		return fmt.Errorf("%w: %s total_volume", ErrMissingField, coin.ID)
	}
	return nil
}

func lookupRate(rates models.CurrencyRates, from, to models.Currency) (decimal.Decimal, error) {
	rate, ok := rates.Rate(from, to)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s->%s", ErrMissingRate, from, to)
	}
	return decimal.NewFromFloat(rate), nil
}

func convertOverview(coin models.CoinOverview, rate decimal.Decimal) models.CoinOverview {
	out := coin
	out.CurrentPrice = scalePtr(coin.CurrentPrice, rate)
	out.MarketCap = scalePtr(coin.MarketCap, rate)
	out.TotalVolume = scalePtr(coin.TotalVolume, rate)
	return out
}

// ConvertOverview re-denominates coin from one currency into another.
// Percentage changes are currency-invariant and copied as is.
func ConvertOverview(coin models.CoinOverview, from, to models.Currency, rates models.CurrencyRates) (models.CoinOverview, error) {
	if err := CheckOverview(coin); err != nil {
		return models.CoinOverview{}, err
	}
	rate, err := lookupRate(rates, from, to)
	if err != nil {
		return models.CoinOverview{}, err
	}
	return convertOverview(coin, rate), nil
}

// ConvertDetails re-denominates a coin's details, including absolute period changes
// and chart prices. Maps are copied, the input is never mutated.
func ConvertDetails(coin models.CoinDetails, from, to models.Currency, rates models.CurrencyRates) (models.CoinDetails, error) {
	if err := CheckOverview(coin.CoinOverview); err != nil {
		return models.CoinDetails{}, err
	}
	rate, err := lookupRate(rates, from, to)
	if err != nil {
		return models.CoinDetails{}, err
	}

	out := coin
	out.CoinOverview = convertOverview(coin.CoinOverview, rate)

	if coin.PriceChangePercentage != nil {
		out.PriceChangePercentage = make(map[models.Period]float64, len(coin.PriceChangePercentage))
		for period, pct := range coin.PriceChangePercentage {
			out.PriceChangePercentage[period] = pct
		}
	}
	if coin.PriceChange != nil {
		out.PriceChange = make(map[models.Period]float64, len(coin.PriceChange))
		for period, change := range coin.PriceChange {
			out.PriceChange[period] = scale(decimal.NewFromFloat(change), rate)
		}
	}
	if coin.Prices != nil {
		out.Prices = make(map[models.Period][]models.PricePoint, len(coin.Prices))
		for period, points := range coin.Prices {
			converted := make([]models.PricePoint, len(points))
			for i, p := range points {
				converted[i] = models.PricePoint{Timestamp: p.Timestamp, Price: scale(decimal.NewFromFloat(p.Price), rate)}
			}
			out.Prices[period] = converted
		}
	}
	return out, nil
}

// DenominateCoin converts one coin from source into every target currency.
// A target without a rate is left out of the result and reported as skipped.
func DenominateCoin(coin models.CoinDetails, source models.Currency, rates models.CurrencyRates, targets []models.Currency) (map[models.Currency]models.CoinDetails, []Skipped) {
	out := make(map[models.Currency]models.CoinDetails, len(targets))
	var skipped []Skipped

	if err := CheckOverview(coin.CoinOverview); err != nil {
		return out, []Skipped{{ID: coin.ID, Err: err}}
	}
	for _, target := range targets {
		converted, err := ConvertDetails(coin, source, target, rates)
		if err != nil {
			skipped = append(skipped, Skipped{ID: coin.ID, Currency: target, Err: err})
			continue
		}
		out[target] = converted
	}
	return out, skipped
}

// DenominateCoins converts a list from source into every target currency.
// Malformed records are dropped from every list; siblings are unaffected.
func DenominateCoins(coins []models.CoinOverview, source models.Currency, rates models.CurrencyRates, targets []models.Currency) (map[models.Currency][]models.CoinOverview, []Skipped) {
	var skipped []Skipped

	valid := make([]models.CoinOverview, 0, len(coins))
	for _, coin := range coins {
		if err := CheckOverview(coin); err != nil {
			skipped = append(skipped, Skipped{ID: coin.ID, Err: err})
			continue
		}
		valid = append(valid, coin)
	}

	out := make(map[models.Currency][]models.CoinOverview, len(targets))
	for _, target := range targets {
		rate, err := lookupRate(rates, source, target)
		if err != nil {
			skipped = append(skipped, Skipped{Currency: target, Err: err})
			continue
		}
		list := make([]models.CoinOverview, len(valid))
		for i, coin := range valid {
			list[i] = convertOverview(coin, rate)
		}
		out[target] = list
	}
	return out, skipped
}
