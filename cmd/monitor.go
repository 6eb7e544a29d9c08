package main

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/scrape-cleaner/internal/monitoring"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch saved runs for quality regressions and send alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("monitor"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		collector := monitoring.NewCollector(st)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)

		if once, _ := cmd.Flags().GetBool("once"); !once {
			checker.Run(ctx)
			return nil
		}

		snap, err := collector.Collect(ctx, cfg.Monitoring.LookbackHours)
		if err != nil {
			return err
		}
		alerts := checker.Check(ctx)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"snapshot": snap,
			"alerts":   alerts,
		})
	},
}

func init() {
	monitorCmd.Flags().Bool("once", false, "run a single check, print it and exit")
	rootCmd.AddCommand(monitorCmd)
}
