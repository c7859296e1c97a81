package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelalgo/momentum/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show a live-refreshing view of the orchestrator's fleet status",
	RunE:  runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := buildStore(cfg)
	if err := dashboard.Run(store); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
