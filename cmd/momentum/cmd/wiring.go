package cmd

import (
	"context"
	"fmt"

	"github.com/kestrelalgo/momentum/internal/broker"
	"github.com/kestrelalgo/momentum/internal/broker/alpaca"
	"github.com/kestrelalgo/momentum/internal/broker/paper"
	"github.com/kestrelalgo/momentum/internal/config"
	"github.com/kestrelalgo/momentum/internal/journal"
	"github.com/kestrelalgo/momentum/internal/ratelimit"
	"github.com/kestrelalgo/momentum/internal/riskrules"
	"github.com/kestrelalgo/momentum/internal/services/buyer"
	"github.com/kestrelalgo/momentum/internal/services/premarket"
	"github.com/kestrelalgo/momentum/internal/services/scanner"
	"github.com/kestrelalgo/momentum/internal/state"
)

// loadConfig merges the --config file (if any) with defaults and the
// environment, following the teacher's LoadFromFile-at-command-time idiom.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, newUsageError(err)
	}
	return cfg, nil
}

// buildBroker constructs the concrete Broker named by cfg.BrokerKind
// (spec.md §6.1 and §6.4's `broker` option), wiring the shared rate budget
// into whichever client actually makes network calls.
func buildBroker(cfg *config.Config, budget *ratelimit.Budget) (broker.Broker, error) {
	switch cfg.BrokerKind {
	case "", "paper":
		return paper.NewEngine(100000), nil
	case "alpaca":
		if cfg.BrokerAPIKey == "" || cfg.BrokerSecret == "" {
			return nil, newUsageError(fmt.Errorf("alpaca broker requires api_key and api_secret"))
		}
		client := alpaca.NewClient(alpaca.Config{
			APIKey:    cfg.BrokerAPIKey,
			APISecret: cfg.BrokerSecret,
			BaseURL:   cfg.BrokerBaseURL,
			DataURL:   cfg.BrokerDataURL,
		}, budget)
		if _, err := client.GetClock(context.Background()); err != nil {
			return nil, fmt.Errorf("alpaca connection test failed: %w", err)
		}
		return client, nil
	default:
		return nil, newUsageError(fmt.Errorf("unknown broker kind %q", cfg.BrokerKind))
	}
}

func buildStore(cfg *config.Config) *state.Store {
	return state.NewStore(cfg.StateDir)
}

func buildJournal(cfg *config.Config) (journal.Journal, error) {
	return journal.NewSQLite(cfg.StateDir + "/trades.db")
}

func scannerThresholds(cfg *config.Config) scanner.Thresholds {
	return scanner.Thresholds{
		RequireAboveVWAP:  cfg.RequireAboveVWAP,
		MinBreakoutPct:    cfg.MinBreakoutPct,
		MinRelativeVolume: cfg.MinRelativeVolume,
		RSIMin:            cfg.RSIMin,
		RSIMax:            cfg.RSIMax,
		MinEntryScore:     cfg.MinEntryScore,
	}
}

// maxDropPct is the downside "price collapsed" reversal bound (spec.md
// §4.3 step 3): a quote more than 3% below the signal price is rejected
// regardless of the upside slippage tolerance. Distinct from
// cfg.MaxSlippagePct, which only bounds the upside, and fixed rather than
// configurable since spec.md §6.4 names no config key for it.
const maxDropPct = 0.03

func buyerThresholds(cfg *config.Config) buyer.Thresholds {
	return buyer.Thresholds{
		SignalMaxAge:     cfg.SignalMaxAge(),
		MaxSlippagePct:   cfg.MaxSlippagePct,
		MaxDropPct:       maxDropPct,
		MaxSpreadPct:     cfg.MaxSpreadPct,
		UseLimitOrders:   cfg.UseLimitOrders,
		LimitOrderBuffer: cfg.LimitOrderBuffer,
		MaxPositions:     cfg.MaxPositions,
	}
}

func exitParams(cfg *config.Config) riskrules.ExitParams {
	p := riskrules.DefaultExitParams()
	p.StopLossPct = cfg.StopLossPct
	p.BreakevenProfit = cfg.BreakevenProfit
	p.DecelExitThreshold = cfg.DecelExitThreshold
	p.MinProfitForDecelCheck = cfg.MinProfitForDecelCheck
	return p
}

func premarketThresholds(cfg *config.Config) premarket.Thresholds {
	return premarket.Thresholds{
		WatchlistSize:     cfg.DailyWatchlistSize,
		MinGapPct:         cfg.MinGapPct,
		MinPremarketVol:   cfg.MinPremarketVolume,
		MinRelativeVolume: cfg.MinPremarketRelVolume,
		PriceMin:          cfg.PriceMin,
		PriceMax:          cfg.PriceMax,
	}
}
