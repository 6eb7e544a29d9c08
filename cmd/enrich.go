package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/scrape-cleaner/internal/enrich"
	"github.com/sells-group/scrape-cleaner/internal/fetcher"
	"github.com/sells-group/scrape-cleaner/pkg/anthropic"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <file-or-url>",
	Short: "Add AI summaries and categories to a record file",
	Long:  "Sends each record's text fields to Claude and stores the returned summary and category as content. Confidence is only ever lowered.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("enrich"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		output, _ := cmd.Flags().GetString("output")
		format, _ := cmd.Flags().GetString("format")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		records, err := fetcher.LoadRecords(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "enrich: load %s", args[0])
		}

		e := enrich.NewAnthropicEnricher(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic)
		sum, err := enrich.EnrichAll(ctx, e, records, concurrency)
		if err != nil {
			return err
		}
		e.Usage().LogCost(cfg.Anthropic.Model, "enrich")

		zap.L().Info("enrichment finished",
			zap.Int("enriched", sum.Enriched),
			zap.Int("failed", sum.Failed),
		)
		return writeRecords(output, format, records)
	},
}

func init() {
	enrichCmd.Flags().StringP("output", "o", "-", "write enriched records to this file ('-' for stdout)")
	enrichCmd.Flags().String("format", "", "output format when it cannot be taken from the file name")
	enrichCmd.Flags().Int("concurrency", 2, "max requests in flight")
	rootCmd.AddCommand(enrichCmd)
}
