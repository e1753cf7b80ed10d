package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sentitrade/market"
)

// barsWithCloses builds a 15-minute series with the given closes.
func barsWithCloses(symbol string, closes []float64) []market.Bar {
	start := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	out := make([]market.Bar, len(closes))
	for i, c := range closes {
		out[i] = market.Bar{
			Symbol: symbol,
			Time:   start.Add(time.Duration(i) * 15 * time.Minute),
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return out
}

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestSMAFullWindow(t *testing.T) {
	bars := barsWithCloses("AAPL", seq(20))

	// Closes 1..20 => mean 10.5
	assert.InDelta(t, 10.5, SMA(bars, 19, 20), 1e-9)
}

func TestSMAShortWindow(t *testing.T) {
	bars := barsWithCloses("AAPL", seq(20))

	// Fewer bars than the period: the window shrinks to what exists.
	assert.InDelta(t, 1.0, SMA(bars, 0, 20), 1e-9)
	assert.InDelta(t, 1.5, SMA(bars, 1, 20), 1e-9)
	assert.InDelta(t, 3.0, SMA(bars, 4, 20), 1e-9)
}

func TestVolatilityPopulationStddev(t *testing.T) {
	bars := barsWithCloses("AAPL", seq(20))

	// Population stddev of 1..20 = sqrt((20^2-1)/12) ≈ 5.766
	assert.InDelta(t, 5.766, Volatility(bars, 19, 20), 0.001)
}

func TestVolatilityConstantSeriesIsZero(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 412.37
	}
	bars := barsWithCloses("MSFT", closes)

	// E[c^2]-E[c]^2 can round slightly negative here; it must clamp, not NaN.
	v := Volatility(bars, 19, 20)
	assert.False(t, v < 0)
	assert.InDelta(t, 0, v, 1e-6)
}

func TestMomentumRequiresLag(t *testing.T) {
	bars := barsWithCloses("AAPL", seq(10))

	for i := 0; i < 5; i++ {
		_, ok := Momentum(bars, i, 5)
		assert.False(t, ok, "bar %d has fewer than 5 predecessors", i)
	}

	m, ok := Momentum(bars, 5, 5)
	assert.True(t, ok)
	assert.InDelta(t, 5.0, m, 1e-9) // close[5]=6, close[0]=1

	m, ok = Momentum(bars, 9, 5)
	assert.True(t, ok)
	assert.InDelta(t, 5.0, m, 1e-9)
}

func TestRowsComputesWindowedValues(t *testing.T) {
	bars := barsWithCloses("AAPL", seq(30))
	since := bars[0].Time
	until := bars[len(bars)-1].Time

	rows := Rows(bars, since, until)
	assert.Len(t, rows, 30)

	last := rows[29]
	// SMA20 over closes 11..30 = 20.5
	assert.InDelta(t, 20.5, last.SMA20, 1e-9)
	// SMA50 falls back to all 30 closes => 15.5
	assert.InDelta(t, 15.5, last.SMA50, 1e-9)
	assert.InDelta(t, 15.5, last.SMA100, 1e-9)
	assert.InDelta(t, last.SMA20+2*last.Volatility, last.BollingerUpper, 1e-9)
	assert.InDelta(t, last.SMA20-2*last.Volatility, last.BollingerLower, 1e-9)
	if assert.NotNil(t, last.Momentum5) {
		assert.InDelta(t, 5.0, *last.Momentum5, 1e-9)
	}

	// First 5 rows have no momentum yet.
	for i := 0; i < 5; i++ {
		assert.Nil(t, rows[i].Momentum5, "row %d", i)
	}
}

func TestRowsUsesLookbackContext(t *testing.T) {
	bars := barsWithCloses("AAPL", seq(30))
	since := bars[25].Time
	until := bars[29].Time

	rows := Rows(bars, since, until)
	assert.Len(t, rows, 5)

	// The row at index 25 sees bars 6..25 through the lookback even though
	// only 26..30 are being recomputed.
	assert.InDelta(t, 16.5, rows[0].SMA20, 1e-9)
	if assert.NotNil(t, rows[0].Momentum5) {
		assert.InDelta(t, 5.0, *rows[0].Momentum5, 1e-9)
	}
}

func TestRowsIsDeterministic(t *testing.T) {
	bars := barsWithCloses("NVDA", seq(40))
	since := bars[0].Time
	until := bars[len(bars)-1].Time

	a := Rows(bars, since, until)
	b := Rows(bars, since, until)

	assert.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Symbol, b[i].Symbol)
		assert.Equal(t, a[i].Time, b[i].Time)
		assert.Equal(t, a[i].SMA20, b[i].SMA20)
		assert.Equal(t, a[i].Volatility, b[i].Volatility)
		if a[i].Momentum5 == nil {
			assert.Nil(t, b[i].Momentum5)
		} else {
			assert.Equal(t, *a[i].Momentum5, *b[i].Momentum5)
		}
	}
}
