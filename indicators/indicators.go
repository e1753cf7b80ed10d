// Package indicators computes rolling technical indicators over bar series.
//
// All functions operate on a single symbol's bars sorted oldest first and use
// a trailing window of up to period bars ending at the given index. When fewer
// than period bars exist the window shrinks to what is available, so the
// earliest rows of a series carry short-window values rather than NaNs.
package indicators

import (
	"math"

	"sentitrade/market"
)

// SMA returns the simple moving average of close over the up-to-period bars
// ending at index i.
func SMA(bars []market.Bar, i, period int) float64 {
	start := i - period + 1
	if start < 0 {
		start = 0
	}

	sum := 0.0
	for j := start; j <= i; j++ {
		sum += bars[j].Close
	}
	return sum / float64(i-start+1)
}

// Volatility returns the population standard deviation of close over the
// up-to-period bars ending at index i, computed as sqrt(E[c²] − E[c]²).
// Variance that goes slightly negative from floating-point rounding is clamped
// to zero before the square root.
func Volatility(bars []market.Bar, i, period int) float64 {
	start := i - period + 1
	if start < 0 {
		start = 0
	}

	n := float64(i - start + 1)
	sum, sumSq := 0.0, 0.0
	for j := start; j <= i; j++ {
		c := bars[j].Close
		sum += c
		sumSq += c * c
	}

	variance := sumSq/n - (sum/n)*(sum/n)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// Momentum returns close[i] − close[i−lag] and false when fewer than lag bars
// precede index i.
func Momentum(bars []market.Bar, i, lag int) (float64, bool) {
	if i < lag {
		return 0, false
	}
	return bars[i].Close - bars[i-lag].Close, true
}
