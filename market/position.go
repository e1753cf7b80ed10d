package market

// Position is an open holding for a symbol. Quantity is signed: positive for
// long, negative for short. The broker's view is authoritative; the local copy
// is a cache corrected during reconciliation.
type Position struct {
	Symbol        string
	Quantity      int64
	AvgEntryPrice float64
}

// Side identifies the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}
