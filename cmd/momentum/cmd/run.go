package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelalgo/momentum/internal/broker"
	"github.com/kestrelalgo/momentum/internal/config"
	"github.com/kestrelalgo/momentum/internal/logging"
	"github.com/kestrelalgo/momentum/internal/ratelimit"
	"github.com/kestrelalgo/momentum/internal/services/buyer"
	"github.com/kestrelalgo/momentum/internal/services/monitor"
	"github.com/kestrelalgo/momentum/internal/services/premarket"
	"github.com/kestrelalgo/momentum/internal/services/scanner"
	"github.com/kestrelalgo/momentum/internal/services/seller"
	"github.com/kestrelalgo/momentum/internal/state"
	"github.com/kestrelalgo/momentum/internal/streamquote"
	"github.com/kestrelalgo/momentum/internal/universe"
)

var runStateDir string

var runCmd = &cobra.Command{
	Use:   "run <service>",
	Short: "Run one service standalone (premarket|scanner|buyer|monitor|seller)",
	Long: `Launch a single service in the foreground, for debugging. This is also
the command the orchestrator spawns as a child process for each supervised
service.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runStateDir, "state-dir", "", "override the configured state directory")
}

func runRun(cmd *cobra.Command, args []string) error {
	name := args[0]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runStateDir != "" {
		cfg.StateDir = runStateDir
	}

	log, closer, err := logging.New(cfg.LogDir, name, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closer.Close()

	budgetPath := filepath.Join(cfg.StateDir, "rate_budget.json")
	budget := ratelimit.New(budgetPath, cfg.APIRateLimit, cfg.APIRateLimit/10+1)
	brk, err := buildBroker(cfg, budget)
	if err != nil {
		return err
	}
	store := buildStore(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch name {
	case "premarket":
		return runPremarket(ctx, cfg, brk, store, log)
	case "scanner":
		return runScanner(ctx, cfg, brk, store, log)
	case "buyer":
		return runBuyer(ctx, cfg, brk, store, log)
	case "monitor":
		return runMonitor(ctx, cfg, brk, store, log)
	case "seller":
		return runSeller(ctx, cfg, brk, store, log)
	default:
		return newUsageError(fmt.Errorf("unknown service %q (want premarket|scanner|buyer|monitor|seller)", name))
	}
}

func runPremarket(ctx context.Context, cfg *config.Config, brk broker.Broker, store *state.Store, log *slog.Logger) error {
	svc := &premarket.Service{Broker: brk, Store: store, Thresholds: premarketThresholds(cfg), Log: log}
	_, err := svc.RunScan(ctx, cfg.UniverseRoot, "", time.Now())
	return err
}

func runScanner(ctx context.Context, cfg *config.Config, brk broker.Broker, store *state.Store, log *slog.Logger) error {
	svc := &scanner.Service{
		Broker:     brk,
		Store:      store,
		HotSignals: state.NewHotSignalNotifier(store, log),
		Thresholds: scannerThresholds(cfg),
		Log:        log,
	}
	return tickLoop(ctx, store, cfg.ScanInterval(), log, "scanner", func() error {
		path, err := universe.Locate(cfg.UniverseRoot, "")
		if err != nil {
			log.Warn("universe locate failed, using default universe", "error", err)
		}
		degradedFallback, err := universe.Load(path)
		if err != nil {
			return err
		}
		symbols, err := svc.LoadSymbols(ctx, degradedFallback, cfg.DailyWatchlistSize)
		if err != nil {
			return err
		}
		_, err = svc.RunCycle(ctx, symbols, time.Now())
		return err
	})
}

func runBuyer(ctx context.Context, cfg *config.Config, brk broker.Broker, store *state.Store, log *slog.Logger) error {
	svc := buyer.NewService(
		brk, store,
		state.NewPositionManager(store, log),
		state.NewCooldownManager(store, cfg.CooldownDuration(), log),
		state.NewHotSignalNotifier(store, log),
		buyerThresholds(cfg), log,
	)

	errs := make(chan error, 2)
	go func() {
		errs <- tickLoop(ctx, store, cfg.BuyerInterval(), log, "buyer", func() error {
			_, err := svc.RunCycle(ctx, time.Now())
			return err
		})
	}()
	go func() {
		// Heartbeats under the same "buyer" key as the main cycle above:
		// Status's staleness check watches one row per service, and the
		// hot-signal loop runs on a tighter interval, so it keeps that row
		// fresher than the main cycle alone would.
		errs <- tickLoop(ctx, store, cfg.HotCheckInterval(), log, "buyer", func() error {
			_, err := svc.RunHotSignal(ctx)
			return err
		})
	}()
	err := <-errs
	<-ctx.Done()
	return err
}

func runMonitor(ctx context.Context, cfg *config.Config, brk broker.Broker, store *state.Store, log *slog.Logger) error {
	svc := &monitor.Service{
		Broker:    brk,
		Store:     store,
		Positions: state.NewPositionManager(store, log),
		Params:    exitParams(cfg),
		Log:       log,
	}

	if cfg.BrokerStreamURL != "" {
		quotes := streamquote.NewManager(cfg.BrokerStreamURL, cfg.BrokerAPIKey, cfg.BrokerSecret, log)
		if err := quotes.Connect(ctx); err != nil {
			log.Warn("quote stream connect failed, monitor will poll REST only", "error", err)
		} else {
			defer quotes.Close()
			svc.Quotes = quotes
		}
	}

	return tickLoop(ctx, store, cfg.MonitorInterval(), log, "monitor", func() error {
		return svc.RunCycle(ctx, time.Now())
	})
}

func runSeller(ctx context.Context, cfg *config.Config, brk broker.Broker, store *state.Store, log *slog.Logger) error {
	j, err := buildJournal(cfg)
	if err != nil {
		return fmt.Errorf("open trade journal: %w", err)
	}
	defer j.Close()

	svc := &seller.Service{
		Broker:    brk,
		Store:     store,
		Positions: state.NewPositionManager(store, log),
		Cooldowns: state.NewCooldownManager(store, cfg.CooldownDuration(), log),
		Journal:   j,
		Log:       log,
	}
	return tickLoop(ctx, store, cfg.SellerInterval(), log, "seller", func() error {
		return svc.RunCycle(ctx)
	})
}

// tickLoop runs fn immediately, then every interval, until ctx is canceled.
// A returned error is logged and the cycle is skipped rather than fatal,
// per spec.md §7's propagation policy for per-cycle failures; the loop only
// stops when the context itself is done. Each tick also refreshes the
// service's LastHeartbeat, independent of whether fn succeeded, so the
// orchestrator's staleness check (spec.md §4.7) reflects "is this process
// still cycling", not "did its last cycle succeed".
func tickLoop(ctx context.Context, store *state.Store, interval time.Duration, log *slog.Logger, name string, fn func() error) error {
	heartbeat := func() {
		if err := store.UpdateServiceStatus(name, func(st state.ServiceStatus) state.ServiceStatus {
			st.PID = os.Getpid()
			st.LastHeartbeat = time.Now()
			return st
		}); err != nil {
			log.Warn("heartbeat refresh failed", "service", name, "error", err)
		}
	}

	run := func() {
		heartbeat()
		if err := fn(); err != nil {
			log.Error("cycle failed", "service", name, "error", err)
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			run()
		}
	}
}
