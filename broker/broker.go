// Package broker defines the brokerage interface the trading loop depends on
// and the paper-trading REST client that implements it.
package broker

import (
	"context"
	"fmt"

	"sentitrade/market"
)

// Broker is the authoritative source of positions and orders. Implementations
// must be safe for concurrent use.
type Broker interface {
	// GetPositions returns all open positions keyed by symbol.
	GetPositions(ctx context.Context) (map[string]market.Position, error)

	// GetOpenOrders returns orders that are still working at the broker.
	GetOpenOrders(ctx context.Context) ([]Order, error)

	// SubmitOrder places an order and returns its broker-assigned id.
	SubmitOrder(ctx context.Context, req OrderRequest) (string, error)

	// GetLatestPrice returns the most recent trade price for symbol.
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// Order describes a working or closed order as reported by the broker.
type Order struct {
	ID       string
	ClientID string
	Symbol   string
	Side     market.Side
	Qty      int64
}

// OrderRequest is a new order submission.
type OrderRequest struct {
	// ClientID is a caller-minted idempotency key for the order.
	ClientID    string
	Symbol      string
	Qty         int64
	Side        market.Side
	Type        string // "market" or "limit"
	TimeInForce string // e.g. "gtc", "day"
	LimitPrice  float64
}

func (r OrderRequest) validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if r.Qty <= 0 {
		return fmt.Errorf("qty must be positive, got %d", r.Qty)
	}
	if r.Side != market.Buy && r.Side != market.Sell {
		return fmt.Errorf("invalid side %q", r.Side)
	}
	if r.Type == "limit" && r.LimitPrice <= 0 {
		return fmt.Errorf("limit order requires a positive limit price")
	}
	return nil
}

// RejectionError reports an order the broker refused (insufficient funds or
// shares, bad parameters). It is terminal for the attempt: the caller logs it
// and leaves its local state untouched.
type RejectionError struct {
	Symbol string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order rejected for %s: %s", e.Symbol, e.Reason)
}
