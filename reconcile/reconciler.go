// Package reconcile owns all mutable trading state: the local cache of open
// positions and the set of in-flight orders. Every mutation goes through the
// Reconciler's transition operations; no other component touches positions or
// pending orders directly.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"sentitrade/broker"
	"sentitrade/market"
)

// State is the per-symbol trading state.
type State string

const (
	Flat         State = "FLAT"
	Long         State = "LONG"
	Short        State = "SHORT"
	OrderPending State = "ORDER_PENDING"
)

// Intent names the four transitions the decision loop can request.
type Intent string

const (
	EnterLong  Intent = "enter_long"  // buy to open or add to a long
	ExitLong   Intent = "exit_long"   // sell the full long quantity
	EnterShort Intent = "enter_short" // sell to open or add to a short
	ExitShort  Intent = "exit_short"  // buy to cover the full short quantity
)

// ErrOrderPending is returned when a submission arrives while an order for the
// same symbol is already in flight. The request is rejected locally; the
// broker is never contacted.
var ErrOrderPending = errors.New("order already pending")

// PendingOrder tracks one in-flight order. At most one exists per symbol.
type PendingOrder struct {
	Symbol    string
	Side      market.Side
	OrderID   string
	ClientID  string
	Qty       int64
	Submitted time.Time
}

// Limit order offsets relative to the reference price: buy slightly below,
// sell slightly above.
const (
	buyLimitRatio  = 0.99
	sellLimitRatio = 1.01
)

// Reconciler maintains the local belief about positions and in-flight orders
// and corrects it against the broker's authoritative state. Safe for
// concurrent use.
type Reconciler struct {
	mu        sync.Mutex
	broker    broker.Broker
	log       *zap.Logger
	maxShares int64 // cap on absolute per-symbol exposure in either direction

	positions map[string]market.Position
	pending   map[string]PendingOrder
}

func New(b broker.Broker, maxShares int64, log *zap.Logger) *Reconciler {
	return &Reconciler{
		broker:    b,
		log:       log,
		maxShares: maxShares,
		positions: make(map[string]market.Position),
		pending:   make(map[string]PendingOrder),
	}
}

// State reports the current state for symbol, derived from the pending and
// position maps.
func (r *Reconciler) State(symbol string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked(symbol)
}

func (r *Reconciler) stateLocked(symbol string) State {
	if _, ok := r.pending[symbol]; ok {
		return OrderPending
	}
	switch p := r.positions[symbol]; {
	case p.Quantity > 0:
		return Long
	case p.Quantity < 0:
		return Short
	default:
		return Flat
	}
}

// Position returns the locally cached position for symbol.
func (r *Reconciler) Position(symbol string) (market.Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[symbol]
	return p, ok
}

// Submit requests a transition for symbol. qty is the desired share count for
// entries and is ignored for exits, which always flatten the full position.
// price is the reference price used to derive the limit price.
//
// Returns the quantity actually submitted. Zero with a nil error means the
// request was a no-op: an entry clipped to nothing by the exposure cap, or an
// exit with no position to close. A request while an order is already pending
// is rejected with ErrOrderPending before any broker call.
func (r *Reconciler) Submit(ctx context.Context, symbol string, intent Intent, qty int64, price float64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pending[symbol]; ok {
		r.log.Warn("submission rejected, order in flight",
			zap.String("symbol", symbol),
			zap.String("intent", string(intent)),
			zap.String("pending_side", string(p.Side)),
			zap.Time("pending_since", p.Submitted))
		return 0, fmt.Errorf("%s: %w", symbol, ErrOrderPending)
	}

	side, submitQty := r.resolveLocked(symbol, intent, qty)
	if submitQty <= 0 {
		r.log.Info("submission clipped to zero, skipping",
			zap.String("symbol", symbol),
			zap.String("intent", string(intent)),
			zap.Int64("requested", qty),
			zap.Int64("cap", r.maxShares))
		return 0, nil
	}

	limit := price * buyLimitRatio
	if side == market.Sell {
		limit = price * sellLimitRatio
	}

	req := broker.OrderRequest{
		ClientID:    ulid.Make().String(),
		Symbol:      symbol,
		Qty:         submitQty,
		Side:        side,
		Type:        "limit",
		TimeInForce: "gtc",
		LimitPrice:  limit,
	}

	orderID, err := r.broker.SubmitOrder(ctx, req)
	if err != nil {
		// No state transition: the caller may retry on the next cycle.
		r.log.Error("order submission failed",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.Int64("qty", submitQty),
			zap.Error(err))
		return 0, fmt.Errorf("submit %s %s: %w", side, symbol, err)
	}

	r.pending[symbol] = PendingOrder{
		Symbol:    symbol,
		Side:      side,
		OrderID:   orderID,
		ClientID:  req.ClientID,
		Qty:       submitQty,
		Submitted: time.Now().UTC(),
	}

	r.log.Info("order submitted",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Int64("qty", submitQty),
		zap.Float64("limit", limit),
		zap.String("order_id", orderID))
	return submitQty, nil
}

// resolveLocked turns an intent into a concrete side and quantity, clipping
// entries to the per-direction exposure cap and sizing exits to the full
// position.
func (r *Reconciler) resolveLocked(symbol string, intent Intent, qty int64) (market.Side, int64) {
	pos := r.positions[symbol].Quantity

	switch intent {
	case EnterLong:
		exposure := int64(0)
		if pos > 0 {
			exposure = pos
		}
		return market.Buy, clip(qty, r.maxShares-exposure)

	case EnterShort:
		exposure := int64(0)
		if pos < 0 {
			exposure = -pos
		}
		return market.Sell, clip(qty, r.maxShares-exposure)

	case ExitLong:
		if pos <= 0 {
			return market.Sell, 0
		}
		return market.Sell, pos

	case ExitShort:
		if pos >= 0 {
			return market.Buy, 0
		}
		return market.Buy, -pos

	default:
		return "", 0
	}
}

func clip(qty, room int64) int64 {
	if room < 0 {
		room = 0
	}
	if qty > room {
		qty = room
	}
	return qty
}

// Synchronize corrects local state against the broker. Positions are replaced
// wholesale with the broker's view; any pending order whose id no longer
// appears among the broker's open orders is assumed filled or closed and
// removed, completing its state transition.
func (r *Reconciler) Synchronize(ctx context.Context) error {
	positions, err := r.broker.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("synchronize: fetch positions: %w", err)
	}
	open, err := r.broker.GetOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("synchronize: fetch open orders: %w", err)
	}

	openIDs := make(map[string]bool, len(open))
	for _, o := range open {
		openIDs[o.ID] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for symbol, local := range r.positions {
		remote, ok := positions[symbol]
		if !ok || remote.Quantity != local.Quantity {
			r.log.Info("position corrected from broker",
				zap.String("symbol", symbol),
				zap.Int64("local_qty", local.Quantity),
				zap.Int64("broker_qty", remote.Quantity))
		}
	}
	r.positions = positions

	for symbol, p := range r.pending {
		if openIDs[p.OrderID] {
			continue
		}
		delete(r.pending, symbol)
		r.log.Info("pending order resolved",
			zap.String("symbol", symbol),
			zap.String("side", string(p.Side)),
			zap.String("order_id", p.OrderID),
			zap.String("state", string(r.stateLocked(symbol))))
	}

	return nil
}

// PendingCount reports how many orders are currently in flight.
func (r *Reconciler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
