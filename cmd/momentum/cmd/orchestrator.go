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

	"github.com/kestrelalgo/momentum/internal/config"
	"github.com/kestrelalgo/momentum/internal/logging"
	"github.com/kestrelalgo/momentum/internal/orchestrator"
	"github.com/kestrelalgo/momentum/internal/ratelimit"
	"github.com/kestrelalgo/momentum/internal/state"
)

var orchestratorCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Supervise the five trading services as independent processes",
}

var orchestratorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start every service in priority order and supervise them",
	RunE:  runOrchestratorStart,
}

var orchestratorStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop every running service gracefully",
	RunE:  runOrchestratorStop,
}

var orchestratorRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Stop then start every service",
	RunE:  runOrchestratorRestart,
}

var orchestratorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current fleet status",
	RunE:  runOrchestratorStatus,
}

var orchestratorMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the crash-restart supervision loop in the foreground",
	Long: `monitor starts every service like "start" does, then watches them,
restarting crashed ones with exponential backoff, until interrupted.`,
	RunE: runOrchestratorMonitor,
}

func init() {
	rootCmd.AddCommand(orchestratorCmd)
	orchestratorCmd.AddCommand(orchestratorStartCmd, orchestratorStopCmd, orchestratorRestartCmd, orchestratorStatusCmd, orchestratorMonitorCmd)
}

// buildSupervisor wires a Supervisor over the five services, matching
// spec.md §4.7's priority order (Seller, Buyer, Monitor, Scanner started
// first; PreMarketScanner only within its 08:00-09:25 window) and
// original_source/core/orchestrator.py's services dict priorities
// (seller=1, buyer=2, monitor=2, scanner=3). Each looping service's
// HeartbeatInterval is set from the same config value that governs that
// service's own tickLoop cadence (cmd/momentum/cmd/run.go), so Status's
// 2x-interval staleness check lines up with how often that service actually
// checks in; Buyer uses its faster hot-signal cadence, since that loop
// refreshes its heartbeat too. PreMarketScanner runs a single scan without a
// tickLoop, so its spec borrows the scanner's interval.
func buildSupervisor(cfg *config.Config, store *state.Store, log *slog.Logger) (*orchestrator.Supervisor, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve own executable: %w", err)
	}

	spec := func(name string, priority int, schedule *orchestrator.Window, heartbeat time.Duration) orchestrator.ServiceSpec {
		args := []string{self, "run", name, "--state-dir", cfg.StateDir}
		if cfgFile != "" {
			args = append(args, "--config", cfgFile)
		}
		return orchestrator.ServiceSpec{Name: name, Priority: priority, Command: args, Schedule: schedule, HeartbeatInterval: heartbeat}
	}

	premarketWindow := &orchestrator.Window{StartHour: 8, StartMinute: 0, EndHour: 9, EndMinute: 25}

	services := []orchestrator.ServiceSpec{
		spec("seller", 1, nil, cfg.SellerInterval()),
		spec("buyer", 2, nil, cfg.HotCheckInterval()),
		spec("monitor", 2, nil, cfg.MonitorInterval()),
		spec("scanner", 3, nil, cfg.ScanInterval()),
		spec("premarket", 4, premarketWindow, cfg.ScanInterval()),
	}

	sup := orchestrator.NewSupervisor(store, log, services)
	sup.Metrics = orchestrator.NewMetrics()
	return sup, nil
}

// runMetricsServer exposes sup.Metrics over HTTP when cfg.MetricsAddr is
// set, and keeps the rate-budget gauge current by periodically peeking the
// shared budget file (the orchestrator process itself never calls the
// broker, so it has no live ratelimit.Budget of its own to read Calls()
// from). Runs until ctx is canceled; callers that don't set MetricsAddr get
// a no-op.
func runMetricsServer(ctx context.Context, cfg *config.Config, sup *orchestrator.Supervisor, log *slog.Logger) {
	if cfg.MetricsAddr == "" {
		return
	}

	budgetPath := filepath.Join(cfg.StateDir, "rate_budget.json")
	burst := cfg.APIRateLimit/10 + 1

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tokens, err := ratelimit.Peek(budgetPath, burst)
				if err != nil {
					log.Warn("rate budget peek failed", "error", err)
					continue
				}
				sup.Metrics.SetBudgetTokens(tokens)
			}
		}
	}()

	go func() {
		log.Info("serving metrics", "addr", cfg.MetricsAddr)
		if err := sup.Metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			log.Error("metrics server failed", "error", err)
		}
	}()
}

func runOrchestratorStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closer, err := logging.New(cfg.LogDir, "orchestrator", cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closer.Close()

	store := buildStore(cfg)
	sup, err := buildSupervisor(cfg, store, log)
	if err != nil {
		return err
	}

	if err := sup.Start(cmd.Context(), time.Now()); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	fmt.Println("orchestrator started; entering supervision loop (ctrl-c to stop)")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runMetricsServer(ctx, cfg, sup, log)
	sup.MonitorLoop(ctx, 5*time.Second)

	return sup.Stop(context.Background())
}

func runOrchestratorStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closer, err := logging.New(cfg.LogDir, "orchestrator", cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closer.Close()

	store := buildStore(cfg)
	sup, err := buildSupervisor(cfg, store, log)
	if err != nil {
		return err
	}
	if err := sup.Stop(cmd.Context()); err != nil {
		return fmt.Errorf("stop services: %w", err)
	}
	fmt.Println("orchestrator stopped")
	return nil
}

func runOrchestratorRestart(cmd *cobra.Command, args []string) error {
	if err := runOrchestratorStop(cmd, args); err != nil {
		return err
	}
	return runOrchestratorStart(cmd, args)
}

func runOrchestratorStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := buildStore(cfg)
	log, closer, err := logging.New(cfg.LogDir, "orchestrator", cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closer.Close()

	sup, err := buildSupervisor(cfg, store, log)
	if err != nil {
		return err
	}
	// sup.Status, not a raw store.LoadStatus, so a crashed-but-not-yet-reaped
	// PID or a stalled heartbeat is detected and reported even though this
	// CLI invocation never called sup.Start itself (spec.md §4.7's
	// liveness algorithm).
	status, err := sup.Status()
	if err != nil {
		return fmt.Errorf("load status: %w", err)
	}

	if len(status.Services) == 0 {
		fmt.Println("no services recorded; has the orchestrator been started?")
		return nil
	}
	fmt.Printf("updated %s\n", status.UpdatedAt.Format(time.RFC3339))
	for name, svc := range status.Services {
		fmt.Printf("  %-12s state=%-9s pid=%-7d restarts=%d", name, svc.State, svc.PID, svc.RestartCount)
		if svc.LastError != "" {
			fmt.Printf(" last_error=%q", svc.LastError)
		}
		fmt.Println()
	}
	return nil
}

func runOrchestratorMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closer, err := logging.New(cfg.LogDir, "orchestrator", cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closer.Close()

	store := buildStore(cfg)
	sup, err := buildSupervisor(cfg, store, log)
	if err != nil {
		return err
	}

	if err := sup.Start(cmd.Context(), time.Now()); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runMetricsServer(ctx, cfg, sup, log)
	sup.MonitorLoop(ctx, 5*time.Second)
	return nil
}
