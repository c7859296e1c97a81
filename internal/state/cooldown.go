package state

import (
	"log/slog"
	"time"
)

// CooldownManager tracks which symbols are temporarily barred from re-entry
// after an exit, shared between Buyer and Seller via
// cooldowns.json. Adapted from shared_state.py's CooldownManager; Go has no
// in-process cache worth keeping stale across goroutines the way the
// original caches self.cooldowns in memory, so every check reloads from
// disk — matching is_in_cooldown's documented "reload to see what other
// processes wrote" behavior, just made the only mode instead of an
// exception to it.
type CooldownManager struct {
	store   *Store
	log     *slog.Logger
	defaultDuration time.Duration
}

// NewCooldownManager wires a CooldownManager to store, defaulting new
// cooldowns to defaultDuration (spec.md §6.4's cooldown_minutes).
func NewCooldownManager(store *Store, defaultDuration time.Duration, log *slog.Logger) *CooldownManager {
	return &CooldownManager{store: store, defaultDuration: defaultDuration, log: log}
}

func (m *CooldownManager) load() (map[string]time.Time, error) {
	raw := map[string]time.Time{}
	err := withLock(m.store.CooldownsPath(), func() error {
		return readJSON(m.store.CooldownsPath(), &raw)
	})
	return raw, err
}

func (m *CooldownManager) save(cooldowns map[string]time.Time) error {
	return withLock(m.store.CooldownsPath(), func() error {
		return writeJSON(m.store.CooldownsPath(), cooldowns)
	})
}

// IsInCooldown reports whether symbol is currently barred from re-entry,
// pruning it from the file if its cooldown has since expired.
func (m *CooldownManager) IsInCooldown(symbol string) bool {
	cooldowns, err := m.load()
	if err != nil {
		m.log.Error("load cooldowns", "error", err)
		return false
	}
	until, ok := cooldowns[symbol]
	if !ok {
		return false
	}
	if time.Now().After(until) || time.Now().Equal(until) {
		delete(cooldowns, symbol)
		m.save(cooldowns)
		return false
	}
	return true
}

// Add puts symbol into cooldown for duration (or the manager's default if
// duration is zero).
func (m *CooldownManager) Add(symbol string, duration time.Duration) error {
	if duration == 0 {
		duration = m.defaultDuration
	}
	cooldowns, err := m.load()
	if err != nil {
		return err
	}
	until := time.Now().Add(duration)
	cooldowns[symbol] = until
	m.log.Debug("cooldown added", "symbol", symbol, "until", until)
	return m.save(cooldowns)
}

// Remove clears any cooldown on symbol, if present.
func (m *CooldownManager) Remove(symbol string) error {
	cooldowns, err := m.load()
	if err != nil {
		return err
	}
	if _, ok := cooldowns[symbol]; !ok {
		return nil
	}
	delete(cooldowns, symbol)
	return m.save(cooldowns)
}
