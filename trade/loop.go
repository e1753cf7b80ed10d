// Package trade runs the trading decision loop: latest merged features in,
// prediction out, trade intents handed to the reconciler. The loop never
// talks to the broker directly.
package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sentitrade/market"
	"sentitrade/reconcile"
)

// Options tunes the decision rules. The long and short thresholds are
// configured separately; neither is derived from the other.
type Options struct {
	Symbols []string

	// EntryThreshold: enter or add to a long when the predicted next open is
	// at least this far above the current price.
	EntryThreshold float64
	// ShortThreshold: enter or add to a short when the predicted next open is
	// below price+ShortThreshold. Normally negative.
	ShortThreshold float64

	// MaxShares is the per-symbol exposure cap requested on entries; the
	// reconciler clips it against the current position.
	MaxShares int64

	// Interval between cycles.
	Interval time.Duration
}

// MergedSource provides the newest merged feature row per symbol.
type MergedSource interface {
	LatestMerged(symbol string) (market.MergedRow, error)
}

// PriceSource provides the current market price. The broker client satisfies
// it.
type PriceSource interface {
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// Loop evaluates every tracked symbol once per interval. Per-symbol failures
// are logged and never stop the loop.
type Loop struct {
	rows   MergedSource
	prices PriceSource
	pred   Predictor
	rec    *reconcile.Reconciler
	opts   Options
	log    *zap.Logger
}

func NewLoop(rows MergedSource, prices PriceSource, pred Predictor, rec *reconcile.Reconciler, opts Options, log *zap.Logger) *Loop {
	return &Loop{rows: rows, prices: prices, pred: pred, rec: rec, opts: opts, log: log}
}

// Run cycles until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	for {
		l.Cycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle synchronizes against the broker, then evaluates every symbol once.
func (l *Loop) Cycle(ctx context.Context) {
	if err := l.rec.Synchronize(ctx); err != nil {
		// Stale local state is still usable; the duplicate-order guard holds.
		l.log.Warn("broker synchronization failed", zap.Error(err))
	}

	for _, symbol := range l.opts.Symbols {
		if err := l.step(ctx, symbol); err != nil {
			l.log.Error("decision failed",
				zap.String("symbol", symbol),
				zap.Error(err))
		}
	}
}

func (l *Loop) step(ctx context.Context, symbol string) error {
	row, err := l.rows.LatestMerged(symbol)
	if err != nil {
		return fmt.Errorf("load features: %w", err)
	}

	price, err := l.prices.GetLatestPrice(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}

	predicted, err := l.pred.Predict(Vector(row))
	if err != nil {
		var contract *ContractError
		if errors.As(err, &contract) {
			// Trading on a malformed vector is worse than not trading.
			return fmt.Errorf("feature contract violation at %s: %w",
				row.Time.Format(time.RFC3339), err)
		}
		return fmt.Errorf("predict: %w", err)
	}

	l.log.Debug("evaluated symbol",
		zap.String("symbol", symbol),
		zap.Float64("price", price),
		zap.Float64("predicted", predicted),
		zap.Time("features_at", row.Time))

	intent, qty, ok := l.decide(symbol, price, predicted)
	if !ok {
		return nil
	}

	submitted, err := l.rec.Submit(ctx, symbol, intent, qty, price)
	if errors.Is(err, reconcile.ErrOrderPending) {
		// Expected while an order works; the reconciler already logged it.
		return nil
	}
	if err != nil {
		return err
	}
	if submitted > 0 {
		l.log.Info("trade requested",
			zap.String("symbol", symbol),
			zap.String("intent", string(intent)),
			zap.Int64("qty", submitted),
			zap.Float64("price", price),
			zap.Float64("predicted", predicted))
	}
	return nil
}

// decide maps (price, predicted) to at most one intent per cycle. Exits win
// over entries so a position is flattened before the opposite side is opened.
func (l *Loop) decide(symbol string, price, predicted float64) (reconcile.Intent, int64, bool) {
	state := l.rec.State(symbol)

	switch {
	case state == reconcile.Short && predicted >= price:
		return reconcile.ExitShort, 0, true
	case state == reconcile.Long && predicted < price:
		return reconcile.ExitLong, 0, true
	case predicted >= price+l.opts.EntryThreshold:
		return reconcile.EnterLong, l.opts.MaxShares, true
	case predicted < price+l.opts.ShortThreshold:
		return reconcile.EnterShort, l.opts.MaxShares, true
	default:
		return "", 0, false
	}
}
