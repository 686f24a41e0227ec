package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-im/market-hydrator/models"
)

var testRates = models.CurrencyRates{
	models.CAD: {models.USD: 0.74, models.EUR: 0.68},
	models.USD: {models.CAD: 1 / 0.74, models.EUR: 0.92},
	models.EUR: {models.USD: 1 / 0.92, models.CAD: 1 / 0.68},
}

func overview(id string, price float64) models.CoinOverview {
	return models.CoinOverview{
		ID:                       id,
		Symbol:                   id,
		Name:                     id,
		CurrentPrice:             models.Float(price),
		TotalVolume:              models.Float(price * 10),
		MarketCap:                models.Float(price * 1000),
		MarketCapRank:            1,
		PriceChangePercentage24h: 2.5,
	}
}

func details(id string, price float64) models.CoinDetails {
	return models.CoinDetails{
		CoinOverview:          overview(id, price),
		Description:           "a coin",
		PriceChangePercentage: map[models.Period]float64{models.Period24h: 2.5, models.Period7d: -4},
		PriceChange:           map[models.Period]float64{models.Period24h: 2, models.Period7d: -5},
		Prices: map[models.Period][]models.PricePoint{
			models.Period24h: {{Timestamp: 1700000000000, Price: 98}, {Timestamp: 1700000300000, Price: 100}},
		},
	}
}

func TestConvertOverview_CADToUSD(t *testing.T) {
	got, err := ConvertOverview(overview("bitcoin", 100), models.CAD, models.USD, testRates)
	require.NoError(t, err)

	assert.InDelta(t, 74, *got.CurrentPrice, 1e-9)
	assert.InDelta(t, 740, *got.TotalVolume, 1e-9)
	assert.InDelta(t, 74000, *got.MarketCap, 1e-9)
	assert.Equal(t, 2.5, got.PriceChangePercentage24h, "percentages pass through")
	assert.Equal(t, "bitcoin", got.ID)
}

func TestConvertDetails_ConvertsMonetaryFieldsOnly(t *testing.T) {
	in := details("bitcoin", 100)
	got, err := ConvertDetails(in, models.CAD, models.USD, testRates)
	require.NoError(t, err)

	assert.InDelta(t, 74, *got.CurrentPrice, 1e-9)
	assert.InDelta(t, 1.48, got.PriceChange[models.Period24h], 1e-9)
	assert.InDelta(t, -3.7, got.PriceChange[models.Period7d], 1e-9)
	assert.Equal(t, in.PriceChangePercentage, got.PriceChangePercentage)
	assert.InDelta(t, 72.52, got.Prices[models.Period24h][0].Price, 1e-9)
	assert.Equal(t, int64(1700000000000), got.Prices[models.Period24h][0].Timestamp)

	// input untouched
	assert.Equal(t, 100.0, *in.CurrentPrice)
	assert.Equal(t, 2.0, in.PriceChange[models.Period24h])
	assert.Equal(t, 98.0, in.Prices[models.Period24h][0].Price)
}

func TestConvert_RoundTrip(t *testing.T) {
	currencies := []models.Currency{models.USD, models.CAD, models.EUR}
	in := details("ethereum", 3456.78)

	for _, c1 := range currencies {
		for _, c2 := range currencies {
			there, err := ConvertDetails(in, c1, c2, testRates)
			require.NoError(t, err)
			back, err := ConvertDetails(there, c2, c1, testRates)
			require.NoError(t, err)

			assert.InEpsilon(t, *in.CurrentPrice, *back.CurrentPrice, 1e-9, "%s->%s->%s", c1, c2, c1)
			assert.InEpsilon(t, *in.MarketCap, *back.MarketCap, 1e-9)
			assert.InEpsilon(t, in.PriceChange[models.Period7d], back.PriceChange[models.Period7d], 1e-9)
			assert.InEpsilon(t, in.Prices[models.Period24h][1].Price, back.Prices[models.Period24h][1].Price, 1e-9)
		}
	}
}

func TestConvert_Errors(t *testing.T) {
	tests := []struct {
		name    string
		coin    models.CoinOverview
		from    models.Currency
		to      models.Currency
		wantErr error
	}{
		{
			name:    "missing current price",
			coin:    models.CoinOverview{ID: "x", MarketCap: models.Float(1), TotalVolume: models.Float(1)},
			from:    models.USD,
			to:      models.CAD,
			wantErr: ErrMissingField,
		},
		{
			name:    "missing market cap",
			coin:    models.CoinOverview{ID: "x", CurrentPrice: models.Float(1), TotalVolume: models.Float(1)},
			from:    models.USD,
			to:      models.USD,
			wantErr: ErrMissingField,
		},
		{
			name:    "missing target rate",
			coin:    overview("x", 1),
			from:    models.USD,
			to:      models.JPY,
			wantErr: ErrMissingRate,
		},
		{
			name:    "missing source rate",
			coin:    overview("x", 1),
			from:    models.GBP,
			to:      models.USD,
			wantErr: ErrMissingRate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConvertOverview(tt.coin, tt.from, tt.to, testRates)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDenominateCoins_SkipsMalformedRecord(t *testing.T) {
	broken := overview("broken", 5)
	broken.CurrentPrice = nil

	coins := []models.CoinOverview{overview("bitcoin", 100), broken, overview("ethereum", 10)}
	out, skipped := DenominateCoins(coins, models.CAD, testRates, []models.Currency{models.CAD, models.USD})

	require.Len(t, out, 2)
	for currency, list := range out {
		require.Len(t, list, 2, currency)
		assert.Equal(t, "bitcoin", list[0].ID)
		assert.Equal(t, "ethereum", list[1].ID)
	}
	assert.InDelta(t, 74, *out[models.USD][0].CurrentPrice, 1e-9)

	require.Len(t, skipped, 1)
	assert.Equal(t, "broken", skipped[0].ID)
	assert.ErrorIs(t, skipped[0].Err, ErrMissingField)
}

func TestDenominateCoins_MissingTargetRate(t *testing.T) {
	out, skipped := DenominateCoins([]models.CoinOverview{overview("bitcoin", 100)}, models.CAD, testRates,
		[]models.Currency{models.CAD, models.JPY})

	assert.Contains(t, out, models.CAD)
	assert.NotContains(t, out, models.JPY, "no zero-filled list for a currency without a rate")
	require.Len(t, skipped, 1)
	assert.Equal(t, models.JPY, skipped[0].Currency)
	assert.ErrorIs(t, skipped[0].Err, ErrMissingRate)
}

func TestDenominateCoin(t *testing.T) {
	out, skipped := DenominateCoin(details("bitcoin", 100), models.CAD, testRates,
		[]models.Currency{models.CAD, models.USD, models.EUR, models.JPY})

	assert.Len(t, out, 3)
	assert.InDelta(t, 100, *out[models.CAD].CurrentPrice, 1e-9)
	assert.InDelta(t, 68, *out[models.EUR].CurrentPrice, 1e-9)
	require.Len(t, skipped, 1)
	assert.Equal(t, models.JPY, skipped[0].Currency)

	broken := details("broken", 1)
	broken.TotalVolume = nil
	out, skipped = DenominateCoin(broken, models.CAD, testRates, []models.Currency{models.CAD})
	assert.Empty(t, out)
	require.Len(t, skipped, 1)
	assert.ErrorIs(t, skipped[0].Err, ErrMissingField)
}
