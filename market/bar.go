// Package market defines the core data types shared by the ingestion,
// feature, and trading packages.
package market

import "time"

// Bar represents one OHLCV price sample for a symbol over a fixed interval.
//
// Bars are immutable once stored: the (Symbol, Time) key identifies a bar and
// re-ingesting the same key overwrites with the same values, so replays are
// idempotent.
type Bar struct {
	Symbol     string
	Time       time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TradeCount int64 // 0 when the feed does not report it
}

// FeatureRow is a Bar enriched with rolling technical indicators computed over
// the trailing window of prior bars for the same symbol.
type FeatureRow struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	SMA20          float64
	SMA50          float64
	SMA100         float64
	Volatility     float64
	BollingerUpper float64
	BollingerLower float64

	// Momentum5 is close minus the close five bars earlier. It is nil for the
	// first five bars of a symbol's history.
	Momentum5 *float64
}

// MergedRow joins a FeatureRow with the aggregated social sentiment signal for
// the window around its timestamp. Sentiment and Likes are zero when no posts
// fall inside the window.
type MergedRow struct {
	FeatureRow

	// Sentiment is the likes-weighted average post sentiment in [-1, 1].
	Sentiment float64
	// Likes is the total like count of the posts that matched the window.
	Likes int64
}
