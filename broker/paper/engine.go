// Package paper is an in-memory brokerage used for dry runs and tests. It
// fills resting limit orders as prices move and keeps the authoritative
// position book the reconciler synchronizes against.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"sentitrade/broker"
	"sentitrade/market"
)

type restingOrder struct {
	broker.Order
	limit float64
}

// Engine implements broker.Broker against an in-memory book.
type Engine struct {
	mu        sync.Mutex
	cash      float64
	prices    map[string]float64
	positions map[string]market.Position
	orders    map[string]*restingOrder
}

func NewEngine(cash float64) *Engine {
	return &Engine{
		cash:      cash,
		prices:    make(map[string]float64),
		positions: make(map[string]market.Position),
		orders:    make(map[string]*restingOrder),
	}
}

// SetPrice publishes a new trade price for symbol and fills any resting
// orders it crosses: buys fill at or below their limit, sells at or above.
func (e *Engine) SetPrice(symbol string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.prices[symbol] = price
	for id, o := range e.orders {
		if o.Symbol != symbol {
			continue
		}
		crossed := (o.Side == market.Buy && price <= o.limit) ||
			(o.Side == market.Sell && price >= o.limit)
		if !crossed {
			continue
		}
		e.fillLocked(o, price)
		delete(e.orders, id)
	}
}

// fillLocked applies a fill to the book. Adding in the same direction blends
// the average entry price by fill size; crossing through zero restarts the
// average at the fill price.
func (e *Engine) fillLocked(o *restingOrder, price float64) {
	delta := o.Qty
	if o.Side == market.Sell {
		delta = -o.Qty
	}
	e.cash -= float64(delta) * price

	pos := e.positions[o.Symbol]
	newQty := pos.Quantity + delta
	switch {
	case newQty == 0:
		delete(e.positions, o.Symbol)
		return
	case pos.Quantity == 0 || (pos.Quantity > 0) != (newQty > 0):
		pos.AvgEntryPrice = price
	case (delta > 0) == (pos.Quantity > 0):
		oldAbs := abs(pos.Quantity)
		pos.AvgEntryPrice = (pos.AvgEntryPrice*float64(oldAbs) + price*float64(abs(delta))) /
			float64(oldAbs+abs(delta))
	}
	pos.Symbol = o.Symbol
	pos.Quantity = newQty
	e.positions[o.Symbol] = pos
}

func (e *Engine) GetPositions(ctx context.Context) (map[string]market.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]market.Position, len(e.positions))
	for sym, p := range e.positions {
		out[sym] = p
	}
	return out, nil
}

func (e *Engine) GetOpenOrders(ctx context.Context) ([]broker.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]broker.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, o.Order)
	}
	return out, nil
}

func (e *Engine) SubmitOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.Qty <= 0 {
		return "", &broker.RejectionError{Symbol: req.Symbol, Reason: "non-positive quantity"}
	}
	limit := req.LimitPrice
	if req.Type != "limit" {
		px, ok := e.prices[req.Symbol]
		if !ok {
			return "", &broker.RejectionError{Symbol: req.Symbol, Reason: "no market price"}
		}
		limit = px
	}
	if req.Side == market.Buy && float64(req.Qty)*limit > e.cash {
		return "", &broker.RejectionError{
			Symbol: req.Symbol,
			Reason: fmt.Sprintf("insufficient cash for %d shares at %.2f", req.Qty, limit),
		}
	}

	o := &restingOrder{
		Order: broker.Order{
			ID:       ulid.Make().String(),
			ClientID: req.ClientID,
			Symbol:   req.Symbol,
			Side:     req.Side,
			Qty:      req.Qty,
		},
		limit: limit,
	}
	e.orders[o.ID] = o

	// A marketable order fills immediately against the current price.
	if px, ok := e.prices[req.Symbol]; ok {
		crossed := (o.Side == market.Buy && px <= o.limit) ||
			(o.Side == market.Sell && px >= o.limit)
		if crossed {
			e.fillLocked(o, px)
			delete(e.orders, o.ID)
		}
	}

	return o.ID, nil
}

func (e *Engine) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	px, ok := e.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %q", symbol)
	}
	return px, nil
}

// Cash returns the current cash balance.
func (e *Engine) Cash() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cash
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
