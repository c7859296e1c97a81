// Package broker defines the narrow abstract trading client this system
// depends on (spec.md §6.1). It is deliberately small: clock, account,
// positions, quotes, bars, and the order lifecycle. Concrete implementations
// live in internal/broker/paper (the default, simulated) and
// internal/broker/alpaca (a real-broker REST skeleton).
package broker

import (
	"context"
	"time"

	"github.com/kestrelalgo/momentum/internal/market"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderType is the pricing mechanism for an order.
type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// TimeInForce constrains how long an order lives if unfilled.
type TimeInForce string

const (
	Day TimeInForce = "day"
)

// OrderStatus is the broker-reported lifecycle state of a submitted order.
type OrderStatus string

const (
	StatusNew             OrderStatus = "new"
	StatusFilled          OrderStatus = "filled"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusCanceled        OrderStatus = "canceled"
	StatusRejected        OrderStatus = "rejected"
	StatusExpired         OrderStatus = "expired"
)

// Clock reports the broker's market-hours calendar.
type Clock struct {
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// Account is the trading account's cash and buying-power snapshot.
type Account struct {
	Equity float64
	Cash   float64
}

// PositionView is the broker's authoritative record for one held symbol,
// used by the reconciler (spec.md §5 "Restart safety").
type PositionView struct {
	Symbol        string
	Qty           float64
	AvgEntryPrice float64
}

// Quote is a top-of-book bid/ask snapshot.
type Quote struct {
	Bid float64
	Ask float64
}

// Mid returns the midpoint of the quote.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// OrderRequest is the input to SubmitOrder.
type OrderRequest struct {
	Symbol        string
	Qty           float64
	Side          Side
	Type          OrderType
	TimeInForce   TimeInForce
	LimitPrice    float64 // only meaningful when Type == Limit
	ClientOrderID string  // idempotency key, see internal/idgen.ClientOrderID
}

// OrderState is the result of GetOrder.
type OrderState struct {
	Status          OrderStatus
	FilledQty       float64
	FilledAvgPrice  float64
}

// Broker is the complete abstract trading client spec.md §6.1 requires.
type Broker interface {
	GetClock(ctx context.Context) (Clock, error)
	GetAccount(ctx context.Context) (Account, error)
	ListPositions(ctx context.Context) ([]PositionView, error)
	GetLatestQuote(ctx context.Context, symbol string) (Quote, error)
	GetBars(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Bar, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (orderID string, err error)
	GetOrder(ctx context.Context, orderID string) (OrderState, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// PollInterval and MaxWait are spec.md §4.6's "poll every 1s up to 30s",
// exported as variables rather than constants so tests covering the
// cancel-remainder timeout don't have to block for the real 30 seconds.
var (
	PollInterval = 1 * time.Second
	MaxWait      = 30 * time.Second
)

// PollOrder implements the shared order lifecycle in spec.md §4.6: poll every
// PollInterval up to MaxWait. It is used identically by the Buyer and the
// Seller.
func PollOrder(ctx context.Context, b Broker, orderID string) (filledQty, avgFilledPrice float64, status OrderStatus, err error) {
	deadline := time.Now().Add(MaxWait)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		st, gerr := b.GetOrder(ctx, orderID)
		if gerr != nil {
			return 0, 0, "", gerr
		}
		switch st.Status {
		case StatusFilled:
			return st.FilledQty, st.FilledAvgPrice, StatusFilled, nil
		case StatusCanceled, StatusRejected, StatusExpired:
			return 0, 0, st.Status, nil
		}

		if time.Now().After(deadline) {
			if st.Status == StatusPartiallyFilled && st.FilledQty > 0 {
				_ = b.CancelOrder(ctx, orderID)
				return st.FilledQty, st.FilledAvgPrice, StatusPartiallyFilled, nil
			}
			_ = b.CancelOrder(ctx, orderID)
			return 0, 0, StatusCanceled, nil
		}

		select {
		case <-ctx.Done():
			return 0, 0, "", ctx.Err()
		case <-ticker.C:
		}
	}
}
