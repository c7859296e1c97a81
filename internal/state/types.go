package state

import (
	"time"

	"github.com/kestrelalgo/momentum/internal/indicators"
)

// Signal mirrors spec.md §3's Signal entity, produced by Scanner and
// consumed by Buyer.
type Signal struct {
	Symbol         string                 `json:"symbol"`
	Timestamp      time.Time              `json:"timestamp"`
	Price          float64                `json:"price"`
	Score          int                    `json:"score"`
	VWAP           float64                `json:"vwap"`
	RSI            float64                `json:"rsi"`
	BreakoutPct    float64                `json:"breakout_pct"`
	BreakoutRef    indicators.BreakoutRef `json:"breakout_ref"`
	RelativeVolume float64                `json:"relative_volume"`
	PremarketHigh  float64                `json:"premarket_high,omitempty"`
	GapPct         float64                `json:"gap_pct,omitempty"`
}

// Position mirrors spec.md §3's Position entity, owned jointly by Buyer
// (create), Monitor (mutate peak/stop), and Seller (remove on exit).
type Position struct {
	Symbol       string    `json:"symbol"`
	Quantity     int       `json:"quantity"`
	EntryPrice   float64   `json:"entry_price"`
	EntryTime    time.Time `json:"entry_time"`
	StopLoss     float64   `json:"stop_loss"`
	PeakPrice    float64   `json:"peak_price"`
	SignalScore  int       `json:"signal_score"`
	Acceleration float64   `json:"acceleration"`
	OrderRef     string    `json:"order_ref"`

	// SignalPrice, VWAPAtEntry, RSIAtEntry, and BreakoutPct snapshot the
	// Signal that triggered this buy, so a later post-mortem of a trade
	// does not have to go hunting through scanner history for the
	// conditions Buyer actually acted on.
	SignalPrice float64 `json:"signal_price"`
	VWAPAtEntry float64 `json:"vwap_at_entry"`
	RSIAtEntry  float64 `json:"rsi_at_entry"`
	BreakoutPct float64 `json:"breakout_pct"`
}

// SellSignal mirrors spec.md §3's SellSignal entity, appended by Monitor and
// consumed (then retried-or-escalated) by Seller.
type SellSignal struct {
	Symbol      string    `json:"symbol"`
	Reason      string    `json:"reason"`
	Quantity    int       `json:"quantity"`
	CurrentStop float64   `json:"current_stop"`
	CreatedAt   time.Time `json:"created_at"`
	Attempts    int       `json:"attempts"`
}

// Trade mirrors spec.md §3's Trade entity, appended by Seller on every
// closed position.
type Trade struct {
	Symbol      string    `json:"symbol"`
	EntryTime   time.Time `json:"entry_time"`
	ExitTime    time.Time `json:"exit_time"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Quantity    int       `json:"quantity"`
	PnLPct      float64   `json:"pnl_pct"`
	PnLDollars  float64   `json:"pnl_dollars"`
	Reason      string    `json:"reason"`
	SignalScore int       `json:"signal_score"`
}

// WatchlistEntry is one candidate in the DailyWatchlist the PreMarketScanner
// hands off to the Scanner at the open, mirroring spec.md §3's
// DailyWatchlistEntry.
type WatchlistEntry struct {
	Symbol          string  `json:"symbol"`
	Rank            int     `json:"rank"`
	PriorClose      float64 `json:"prior_close"`
	PremarketPrice  float64 `json:"premarket_price"`
	PremarketHigh   float64 `json:"premarket_high"`
	PremarketVolume float64 `json:"premarket_volume"`
	GapPct          float64 `json:"gap_pct"`
	RelativeVolume  float64 `json:"relative_volume"`
	FloatFactor     float64 `json:"float_factor"`
	Score           float64 `json:"score"`
}

// DailyWatchlist mirrors spec.md §4.1's scanner hand-off file.
type DailyWatchlist struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Entries     []WatchlistEntry `json:"entries"`
}

// ServiceState enumerates the Orchestrator's supervised-process lifecycle
// (spec.md §8: Stopped -> Starting -> Running -> (Crashed | Stopping ->
// Stopped)).
type ServiceState string

const (
	ServiceStopped  ServiceState = "stopped"
	ServiceStarting ServiceState = "starting"
	ServiceRunning  ServiceState = "running"
	ServiceCrashed  ServiceState = "crashed"
	ServiceStopping ServiceState = "stopping"

	// ServiceStale is reported by the liveness check (spec.md §4.7) when the
	// PID is alive but its last heartbeat is older than 2x its expected
	// check interval — distinct from ServiceCrashed (the PID itself is
	// gone), since a hung-but-alive process needs different operator
	// attention than a dead one.
	ServiceStale ServiceState = "stale"
)

// ServiceStatus is one row of OrchestratorStatus, readable cross-process so
// `momentum status` need not share memory with the orchestrator that wrote
// it (a REDESIGN FLAG from original_source/orchestrator.py's in-memory
// Popen-handle bookkeeping, which only the parent process can see).
type ServiceStatus struct {
	Name          string       `json:"name"`
	State         ServiceState `json:"state"`
	PID           int          `json:"pid"`
	StartedAt     time.Time    `json:"started_at"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
	RestartCount  int          `json:"restart_count"`
	LastError     string       `json:"last_error,omitempty"`
}

// OrchestratorStatus is the whole-fleet snapshot written to
// orchestrator_status.json.
type OrchestratorStatus struct {
	UpdatedAt time.Time                 `json:"updated_at"`
	Services  map[string]ServiceStatus  `json:"services"`
}
