package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/scrape-cleaner/internal/export"
	"github.com/sells-group/scrape-cleaner/internal/fetcher"
	"github.com/sells-group/scrape-cleaner/internal/model"
	"github.com/sells-group/scrape-cleaner/internal/pipeline"
	"github.com/sells-group/scrape-cleaner/internal/store"
)

var cleanCmd = &cobra.Command{
	Use:   "clean <file-or-url>",
	Short: "Clean one record file and print a quality report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("clean"); err != nil {
			return err
		}
		ctx := cmd.Context()

		output, _ := cmd.Flags().GetString("output")
		format, _ := cmd.Flags().GetString("format")
		reportFmt, _ := cmd.Flags().GetString("report")
		jobID, _ := cmd.Flags().GetString("job-id")
		save, _ := cmd.Flags().GetBool("save")
		if rules, _ := cmd.Flags().GetString("rules"); rules != "" {
			cfg.Cleaner.RulesFile = rules
		}

		dc, err := pipeline.NewDataCleanerFromConfig(cfg.Cleaner)
		if err != nil {
			return eris.Wrap(err, "clean: build cleaner")
		}

		var st store.Store
		if save {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		res, err := cleanSource(ctx, dc, st, args[0], jobID)
		if err != nil {
			return err
		}

		if output != "" {
			if err := writeRecords(output, format, res.Records); err != nil {
				return err
			}
		}
		return printReport(cmd.OutOrStdout(), reportFmt, res)
	},
}

func init() {
	cleanCmd.Flags().StringP("output", "o", "", "write cleaned records to this file (json, jsonl, csv, xlsx; '-' for stdout)")
	cleanCmd.Flags().String("format", "", "output format when it cannot be taken from the file name")
	cleanCmd.Flags().String("report", "text", "report format: text or json")
	cleanCmd.Flags().String("job-id", "", "job ID recorded on the run (defaults to the records' job_id)")
	cleanCmd.Flags().Bool("save", false, "persist the run and cleaned records to the store")
	cleanCmd.Flags().String("rules", "", "YAML rule file overriding the default rules")
	rootCmd.AddCommand(cleanCmd)
}

// cleanResult is the outcome of cleaning one source.
type cleanResult struct {
	RunID   string                   `json:"run_id,omitempty"`
	Source  string                   `json:"source"`
	Records []model.Record           `json:"records"`
	Metrics model.DataQualityMetrics `json:"metrics"`
	Report  model.QualityReport      `json:"report"`
}

// cleanSource loads, cleans and optionally saves one record source. st may
// be nil.
func cleanSource(ctx context.Context, dc *pipeline.DataCleaner, st store.Store, src, jobID string) (*cleanResult, error) {
	records, err := fetcher.LoadRecords(ctx, src)
	if err != nil {
		return nil, eris.Wrapf(err, "clean: load %s", src)
	}
	return cleanRecords(ctx, dc, st, src, jobID, records)
}

// cleanRecords cleans a batch, builds its report and saves the run when st
// is non-nil.
func cleanRecords(ctx context.Context, dc *pipeline.DataCleaner, st store.Store, src, jobID string, records []model.Record) (*cleanResult, error) {
	cleaned, metrics := dc.CleanData(records)
	res := &cleanResult{
		Source:  src,
		Records: cleaned,
		Metrics: metrics,
		Report:  dc.GenerateQualityReport(metrics),
	}

	zap.L().Info("records cleaned",
		zap.String("source", src),
		zap.Int("total", metrics.TotalRecords),
		zap.Int("valid", metrics.ValidRecords),
		zap.Int("duplicates", metrics.DuplicateRecords),
		zap.Float64("overall_score", metrics.OverallScore),
	)

	if st == nil {
		return res, nil
	}

	if jobID == "" {
		jobID = batchJobID(cleaned)
	}
	run := &model.CleaningRun{
		ID:      uuid.NewString(),
		JobID:   jobID,
		Source:  src,
		Metrics: metrics,
		Report:  res.Report,
	}
	if err := st.SaveRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "clean: save run")
	}
	n, err := st.SaveRecords(ctx, run.ID, cleaned)
	if err != nil {
		return nil, eris.Wrap(err, "clean: save records")
	}
	zap.L().Info("run saved", zap.String("run_id", run.ID), zap.Int64("records", n))

	res.RunID = run.ID
	return res, nil
}

// batchJobID returns the job ID shared by every record, or "" when they
// differ.
func batchJobID(records []model.Record) string {
	if len(records) == 0 {
		return ""
	}
	id := records[0].JobID
	for _, r := range records[1:] {
		if r.JobID != id {
			return ""
		}
	}
	return id
}

// writeRecords exports records to path. "-" writes to stdout and needs an
// explicit format or defaults to json.
func writeRecords(path, format string, records []model.Record) error {
	if path == "-" {
		f := export.FormatJSON
		if format != "" {
			var err error
			if f, err = export.ParseFormat(format); err != nil {
				return err
			}
		}
		return export.Write(os.Stdout, f, records)
	}
	if format != "" && filepath.Ext(path) == "" {
		path += "." + strings.TrimPrefix(format, ".")
	}
	if err := export.WriteFile(path, records); err != nil {
		return eris.Wrapf(err, "clean: write %s", path)
	}
	zap.L().Info("records written", zap.String("path", path), zap.Int("count", len(records)))
	return nil
}

func printReport(w io.Writer, format string, res *cleanResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			RunID  string              `json:"run_id,omitempty"`
			Source string              `json:"source"`
			Report model.QualityReport `json:"report"`
		}{res.RunID, res.Source, res.Report})
	case "", "text":
		if res.RunID != "" {
			fmt.Fprintf(w, "Run: %s\n", res.RunID)
		}
		fmt.Fprintf(w, "Source: %s\n", res.Source)
		_, err := io.WriteString(w, pipeline.FormatReport(res.Report))
		return err
	case "none":
		return nil
	}
	return eris.Errorf("clean: unknown report format %q", format)
}
