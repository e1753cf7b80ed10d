package indicators

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"sentitrade/market"
)

// window sizes fixed at training time; changing them invalidates stored models.
const (
	smaShort  = 20
	smaMid    = 50
	smaLong   = 100
	bollWidth = 2.0
	momLag    = 5
)

// Lookback is how many bars before a compute range the engine needs as
// trailing context for the longest window.
const Lookback = smaLong - 1

// BarSource is the slice of the store the engine reads from and writes to.
type BarSource interface {
	BarsWithLookback(symbol string, since, until time.Time, lookback int) ([]market.Bar, error)
	ReplaceFeatures(symbol string, since, until time.Time, rows []market.FeatureRow) error
}

// Engine computes feature rows from stored bars and replaces the stored rows
// for the computed range in one transaction.
type Engine struct {
	src BarSource
	log *zap.Logger
}

func NewEngine(src BarSource, log *zap.Logger) *Engine {
	return &Engine{src: src, log: log}
}

// Compute builds feature rows for every bar of symbol with timestamp in
// [since, until] and atomically replaces the stored rows for that range.
// Recomputing the same range is idempotent: identical bars always produce
// identical rows.
func (e *Engine) Compute(symbol string, since, until time.Time) ([]market.FeatureRow, error) {
	bars, err := e.src.BarsWithLookback(symbol, since, until, Lookback)
	if err != nil {
		return nil, fmt.Errorf("compute %s: load bars: %w", symbol, err)
	}

	rows := Rows(bars, since, until)
	if len(rows) == 0 {
		e.log.Debug("no bars to compute",
			zap.String("symbol", symbol),
			zap.Time("since", since), zap.Time("until", until))
		return nil, nil
	}

	if err := e.src.ReplaceFeatures(symbol, since, until, rows); err != nil {
		return nil, fmt.Errorf("compute %s: store rows: %w", symbol, err)
	}

	e.log.Info("computed features",
		zap.String("symbol", symbol),
		zap.Int("rows", len(rows)),
		zap.Time("since", since), zap.Time("until", until))
	return rows, nil
}

// Rows computes feature rows for the bars with timestamps in [since, until].
// bars must be a single symbol's series sorted oldest first; bars before since
// serve only as trailing window context. Pure function of its input.
func Rows(bars []market.Bar, since, until time.Time) []market.FeatureRow {
	var out []market.FeatureRow
	for i, b := range bars {
		if b.Time.Before(since) || b.Time.After(until) {
			continue
		}

		sma20 := SMA(bars, i, smaShort)
		vol := Volatility(bars, i, smaShort)

		row := market.FeatureRow{
			Symbol: b.Symbol,
			Time:   b.Time,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,

			SMA20:          sma20,
			SMA50:          SMA(bars, i, smaMid),
			SMA100:         SMA(bars, i, smaLong),
			Volatility:     vol,
			BollingerUpper: sma20 + bollWidth*vol,
			BollingerLower: sma20 - bollWidth*vol,
		}
		if m, ok := Momentum(bars, i, momLag); ok {
			row.Momentum5 = &m
		}
		out = append(out, row)
	}
	return out
}
