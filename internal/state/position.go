package state

import (
	"log/slog"
	"time"

	"github.com/kestrelalgo/momentum/internal/broker"
)

// PositionManager tracks open positions in positions.json, shared between
// Buyer (creates), Monitor (mutates peak/stop), and Seller (removes).
// Adapted from shared_state.py's PositionManager, including
// reconcile_with_alpaca — renamed ReconcileWithBroker since the broker is
// now an interface rather than a hard Alpaca dependency.
type PositionManager struct {
	store *Store
	log   *slog.Logger
}

// NewPositionManager wires a PositionManager to store.
func NewPositionManager(store *Store, log *slog.Logger) *PositionManager {
	return &PositionManager{store: store, log: log}
}

// Load returns every open position, keyed by symbol.
func (m *PositionManager) Load() (map[string]Position, error) {
	positions := map[string]Position{}
	err := withLock(m.store.PositionsPath(), func() error {
		return readJSON(m.store.PositionsPath(), &positions)
	})
	return positions, err
}

func (m *PositionManager) save(positions map[string]Position) error {
	return withLock(m.store.PositionsPath(), func() error {
		return writeJSON(m.store.PositionsPath(), positions)
	})
}

// Get returns the position for symbol, if any.
func (m *PositionManager) Get(symbol string) (Position, bool, error) {
	positions, err := m.Load()
	if err != nil {
		return Position{}, false, err
	}
	p, ok := positions[symbol]
	return p, ok, nil
}

// Add creates or overwrites the position for symbol.
func (m *PositionManager) Add(p Position) error {
	positions, err := m.Load()
	if err != nil {
		return err
	}
	positions[p.Symbol] = p
	return m.save(positions)
}

// Remove deletes symbol's position, if present.
func (m *PositionManager) Remove(symbol string) error {
	positions, err := m.Load()
	if err != nil {
		return err
	}
	if _, ok := positions[symbol]; !ok {
		return nil
	}
	delete(positions, symbol)
	return m.save(positions)
}

// ReconcileWithBroker reconciles positions.json against the broker's actual
// open positions (spec.md §8 startup recovery / SPEC_FULL.md §4 item 4):
// positions the broker reports but the file doesn't know about are adopted
// with a conservative default stop; positions the file has but the broker
// no longer carries are dropped; shared positions have their quantity
// refreshed from the broker. Every add/drop is logged so silent drift never
// happens unnoticed.
func (m *PositionManager) ReconcileWithBroker(brokerPositions []broker.PositionView) (map[string]Position, error) {
	positions, err := m.Load()
	if err != nil {
		return nil, err
	}

	brokerBySymbol := make(map[string]broker.PositionView, len(brokerPositions))
	for _, bp := range brokerPositions {
		brokerBySymbol[bp.Symbol] = bp
	}

	var added, removed []string
	changed := false

	for symbol, bp := range brokerBySymbol {
		if _, ok := positions[symbol]; !ok {
			positions[symbol] = Position{
				Symbol:      symbol,
				Quantity:    int(bp.Qty),
				EntryPrice:  bp.AvgEntryPrice,
				EntryTime:   time.Now(),
				StopLoss:    bp.AvgEntryPrice * 0.975,
				PeakPrice:   bp.AvgEntryPrice,
				SignalScore: 100,
			}
			added = append(added, symbol)
			changed = true
		}
	}

	for symbol := range positions {
		if _, ok := brokerBySymbol[symbol]; !ok {
			delete(positions, symbol)
			removed = append(removed, symbol)
			changed = true
		}
	}

	for symbol, p := range positions {
		if bp, ok := brokerBySymbol[symbol]; ok {
			p.Quantity = int(bp.Qty)
			positions[symbol] = p
		}
	}

	if changed {
		m.log.Info("reconciled positions with broker", "added", added, "removed", removed)
		if err := m.save(positions); err != nil {
			return nil, err
		}
	}
	return positions, nil
}
