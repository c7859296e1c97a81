package state

// AppendSellSignal appends one SellSignal to sell_signals.json (spec.md
// §4.4's REDESIGN FLAG: Monitor appends, it never overwrites, so two
// monitor cycles racing on the same symbol can't erase each other's
// signal).
func (s *Store) AppendSellSignal(sig SellSignal) error {
	return withLock(s.SellSignalsPath(), func() error {
		return appendJSONLine(s.SellSignalsPath(), sig)
	})
}

// LoadSellSignals returns every pending sell signal recorded so far. Seller
// rewrites the file after each pass, keeping only the entries it has not
// cleared; see RewriteSellSignals.
func (s *Store) LoadSellSignals() ([]SellSignal, error) {
	var out []SellSignal
	err := withLock(s.SellSignalsPath(), func() error {
		var readErr error
		out, readErr = readJSONLines[SellSignal](s.SellSignalsPath())
		return readErr
	})
	return out, err
}

// RewriteSellSignals replaces sell_signals.json's contents with remaining,
// used by Seller to drop signals it has successfully acted on while
// keeping ones still awaiting retry (spec.md §4.5's retry-then-escalate:
// a signal is cleared only when the sell fills or the position is already
// gone; after 3 failed attempts it is logged at ERROR and kept for retry).
func (s *Store) RewriteSellSignals(remaining []SellSignal) error {
	return withLock(s.SellSignalsPath(), func() error {
		return writeJSONLines(s.SellSignalsPath(), remaining)
	})
}

// AppendTrade appends a closed Trade to trades.json. trades.json is never
// rewritten or truncated — it is the permanent audit trail (spec.md §3).
func (s *Store) AppendTrade(t Trade) error {
	return withLock(s.TradesPath(), func() error {
		return appendJSONLine(s.TradesPath(), t)
	})
}

// LoadTrades returns every recorded trade.
func (s *Store) LoadTrades() ([]Trade, error) {
	var out []Trade
	err := withLock(s.TradesPath(), func() error {
		var readErr error
		out, readErr = readJSONLines[Trade](s.TradesPath())
		return readErr
	})
	return out, err
}
