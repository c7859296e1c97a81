// Package buyer implements the Buyer service (spec.md §4.3): it consumes
// fresh signals, validates execution price against slippage/spread limits,
// and submits buy orders without exceeding position, cooldown, or sizing
// limits. Adapted from original_source/core/buyer.py's OrderBuyer, with
// Python's get_current_positions()-as-dedup-source replaced by the
// authoritative state.PositionManager and the hand-rolled price validation
// turned into small pure functions that are independently testable.
package buyer

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kestrelalgo/momentum/internal/broker"
	"github.com/kestrelalgo/momentum/internal/idgen"
	"github.com/kestrelalgo/momentum/internal/riskrules"
	"github.com/kestrelalgo/momentum/internal/state"
)

// Thresholds bundles the Buyer's spec.md §6.4 tunables.
type Thresholds struct {
	SignalMaxAge     time.Duration
	MaxSlippagePct   float64 // upside slippage cap, e.g. 0.02
	MaxDropPct       float64 // downside "reversal" cap, e.g. 0.03
	MaxSpreadPct     float64
	UseLimitOrders   bool
	LimitOrderBuffer float64
	MaxPositions     int
}

// Service executes the Buyer's regular and hot-signal fast-path cycles.
type Service struct {
	Broker     broker.Broker
	Store      *state.Store
	Positions  *state.PositionManager
	Cooldowns  *state.CooldownManager
	HotSignals *state.HotSignalNotifier
	Thresholds Thresholds
	Log        *slog.Logger

	dedup *recentSignalSet
}

// NewService wires a Buyer with a fresh duplicate-signal guard.
func NewService(b broker.Broker, store *state.Store, positions *state.PositionManager, cooldowns *state.CooldownManager, hot *state.HotSignalNotifier, t Thresholds, log *slog.Logger) *Service {
	return &Service{
		Broker:     b,
		Store:      store,
		Positions:  positions,
		Cooldowns:  cooldowns,
		HotSignals: hot,
		Thresholds: t,
		Log:        log,
		dedup:      newRecentSignalSet(10 * time.Minute),
	}
}

// recentSignalSet is the in-process LRU set of processed (symbol,timestamp)
// pairs spec.md §4.3's "Duplicate-signal defense" names, kept for at least
// 10 minutes.
type recentSignalSet struct {
	mu     sync.Mutex
	ttl    time.Duration
	order  *list.List
	lookup map[string]*list.Element
}

type recentSignalEntry struct {
	key  string
	seen time.Time
}

func newRecentSignalSet(ttl time.Duration) *recentSignalSet {
	return &recentSignalSet{ttl: ttl, order: list.New(), lookup: map[string]*list.Element{}}
}

func signalKey(sig state.Signal) string {
	return fmt.Sprintf("%s|%s", sig.Symbol, sig.Timestamp.UTC().Format(time.RFC3339Nano))
}

// SeenRecently reports whether sig was already processed within the last
// ttl, recording it as seen if not. Expired entries are evicted lazily.
func (r *recentSignalSet) SeenRecently(sig state.Signal) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for e := r.order.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(recentSignalEntry)
		if now.Sub(entry.seen) > r.ttl {
			delete(r.lookup, entry.key)
			r.order.Remove(e)
		}
		e = next
	}

	key := signalKey(sig)
	if _, ok := r.lookup[key]; ok {
		return true
	}
	el := r.order.PushBack(recentSignalEntry{key: key, seen: now})
	r.lookup[key] = el
	return false
}

// priceDecision is the outcome of validating a signal's execution price,
// mirroring original_source/core/buyer.py's validate_price 3-tuple.
type priceDecision struct {
	ok     bool
	mid    float64
	reason string
}

// ValidatePrice checks a live quote against the Buyer's spread and slippage
// bounds (spec.md §4.3 step 3's quote-rejection clauses).
func ValidatePrice(t Thresholds, q broker.Quote, signalPrice float64) priceDecision {
	if q.Bid <= 0 || q.Ask <= 0 {
		return priceDecision{ok: false, reason: "invalid_quote"}
	}
	mid := q.Mid()
	spreadPct := (q.Ask - q.Bid) / mid
	if spreadPct > t.MaxSpreadPct {
		return priceDecision{ok: false, mid: mid, reason: "spread_too_wide"}
	}
	slippagePct := (mid - signalPrice) / signalPrice
	if slippagePct > t.MaxSlippagePct {
		return priceDecision{ok: false, mid: mid, reason: "slippage_too_high"}
	}
	if slippagePct < -t.MaxDropPct {
		return priceDecision{ok: false, mid: mid, reason: "price_collapsed"}
	}
	return priceDecision{ok: true, mid: mid, reason: "ok"}
}

// freshSignals filters signals.json down to unexpired entries sorted by
// score descending (spec.md §4.3 steps 1-2).
func freshSignals(signals []state.Signal, maxAge time.Duration, now time.Time) []state.Signal {
	var fresh []state.Signal
	for _, sig := range signals {
		if now.Sub(sig.Timestamp) <= maxAge {
			fresh = append(fresh, sig)
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Score > fresh[j].Score })
	return fresh
}

// RunCycle processes the current signal batch, buying as many qualifying
// candidates as slots allow (spec.md §4.3's per-signal procedure).
func (s *Service) RunCycle(ctx context.Context, now time.Time) (bought int, err error) {
	signals, err := s.Store.LoadSignals()
	if err != nil {
		return 0, err
	}
	fresh := freshSignals(signals, s.Thresholds.SignalMaxAge, now)
	if len(fresh) == 0 {
		return 0, nil
	}

	for _, sig := range fresh {
		if s.dedup.SeenRecently(sig) {
			continue
		}

		open, err := s.Positions.Load()
		if err != nil {
			return bought, err
		}
		if len(open) >= s.Thresholds.MaxPositions {
			s.Log.Info("at max positions, stopping buyer cycle", "count", len(open))
			break
		}

		if s.tryBuy(ctx, sig, open) {
			bought++
		}
	}
	return bought, nil
}

// RunHotSignal is the 5-second fast path: a single pending score>=90 signal
// is executed immediately rather than waiting for the next regular cycle
// (spec.md §4.3's fast path, SPEC_FULL.md's hot-signal wiring).
func (s *Service) RunHotSignal(ctx context.Context) (bool, error) {
	sig, err := s.HotSignals.CheckHotSignal()
	if err != nil || sig == nil {
		return false, err
	}
	defer s.HotSignals.MarkProcessed()

	open, err := s.Positions.Load()
	if err != nil {
		return false, err
	}
	if len(open) >= s.Thresholds.MaxPositions {
		return false, nil
	}
	return s.tryBuy(ctx, *sig, open), nil
}

func (s *Service) tryBuy(ctx context.Context, sig state.Signal, open map[string]state.Position) bool {
	if _, already := open[sig.Symbol]; already {
		return false
	}
	if s.Cooldowns.IsInCooldown(sig.Symbol) {
		return false
	}

	quote, err := s.Broker.GetLatestQuote(ctx, sig.Symbol)
	if err != nil {
		s.Log.Debug("quote fetch failed", "symbol", sig.Symbol, "error", err)
		return false
	}
	decision := ValidatePrice(s.Thresholds, quote, sig.Price)
	if !decision.ok {
		s.Log.Info("price validation rejected buy", "symbol", sig.Symbol, "reason", decision.reason)
		return false
	}

	pct, _ := riskrules.PositionSizePct(sig.Score)
	account, err := s.Broker.GetAccount(ctx)
	if err != nil {
		s.Log.Error("account fetch failed", "error", err)
		return false
	}
	qty := riskrules.Quantity(account.Equity, pct, decision.mid)
	if qty <= 0 {
		return false
	}

	orderType := broker.Market
	limitPrice := 0.0
	if s.Thresholds.UseLimitOrders {
		orderType = broker.Limit
		limitPrice = riskrules.LimitBuyPrice(decision.mid, s.Thresholds.LimitOrderBuffer)
	}

	clientOrderID := idgen.ClientOrderID()
	orderID, err := s.Broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:        sig.Symbol,
		Qty:           float64(qty),
		Side:          broker.Buy,
		Type:          orderType,
		TimeInForce:   broker.Day,
		LimitPrice:    limitPrice,
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		s.Log.Error("submit buy order failed", "symbol", sig.Symbol, "error", err)
		return false
	}

	filledQty, filledPrice, status, err := broker.PollOrder(ctx, s.Broker, orderID)
	if err != nil {
		s.Log.Error("poll buy order failed", "symbol", sig.Symbol, "error", err)
		return false
	}
	// A cancel-remainder timeout can settle on StatusPartiallyFilled with a
	// nonzero filledQty rather than StatusFilled: the broker canceled the
	// rest of the order, not the part that already executed. Either way the
	// account now holds a real position that must be tracked, sized to
	// whatever actually filled.
	filled := status == broker.StatusFilled || (status == broker.StatusPartiallyFilled && filledQty > 0)
	if !filled {
		s.Log.Info("buy order not filled", "symbol", sig.Symbol, "status", status)
		return false
	}
	if status == broker.StatusPartiallyFilled {
		s.Log.Warn("buy order partially filled, remainder canceled", "symbol", sig.Symbol, "filled_qty", filledQty)
	}

	pos := state.Position{
		Symbol:      sig.Symbol,
		Quantity:    int(filledQty),
		EntryPrice:  filledPrice,
		EntryTime:   time.Now(),
		StopLoss:    riskrules.RoundCurrency(filledPrice * 0.975),
		PeakPrice:   filledPrice,
		SignalScore: sig.Score,
		OrderRef:    orderID,
		SignalPrice: sig.Price,
		VWAPAtEntry: sig.VWAP,
		RSIAtEntry:  sig.RSI,
		BreakoutPct: sig.BreakoutPct,
	}
	if err := s.Positions.Add(pos); err != nil {
		s.Log.Error("persist position failed", "symbol", sig.Symbol, "error", err)
		return false
	}

	s.Log.Info("buy filled", "symbol", sig.Symbol, "qty", filledQty, "price", filledPrice, "score", sig.Score)
	return true
}
