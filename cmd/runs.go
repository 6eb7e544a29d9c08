package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/scrape-cleaner/internal/model"
	"github.com/sells-group/scrape-cleaner/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect cleaning run history",
	Long:  "Commands for listing, viewing, and summarizing saved cleaning runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cleaning runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		jobID, _ := cmd.Flags().GetString("job-id")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{JobID: jobID, Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		out := struct {
			*model.CleaningRun
			Records []model.Record `json:"records,omitempty"`
		}{CleaningRun: run}

		if withRecords, _ := cmd.Flags().GetBool("records"); withRecords {
			out.Records, err = st.ListRecords(ctx, run.ID)
			if err != nil {
				return eris.Wrap(err, "runs show")
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		filter := store.RunFilter{Limit: 10000}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(cmd.OutOrStdout(), computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("job-id", "", "filter by job ID")
	runsListCmd.Flags().Duration("since", 0, "only runs newer than this (e.g. 24h)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("records", false, "include the cleaned records")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Runs          int
	Records       int
	Valid         int
	Invalid       int
	Duplicates    int
	Corrected     int
	AvgOverall    float64
	AvgDurationMS float64
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.CleaningRun) runStats {
	var s runStats
	s.Runs = len(runs)

	var totalDur time.Duration
	for _, r := range runs {
		m := r.Metrics
		s.Records += m.TotalRecords
		s.Valid += m.ValidRecords
		s.Invalid += m.InvalidRecords
		s.Duplicates += m.DuplicateRecords
		s.Corrected += m.CorrectedRecords
		s.AvgOverall += m.OverallScore
		totalDur += m.ProcessingTime
	}

	if s.Runs > 0 {
		s.AvgOverall /= float64(s.Runs)
		s.AvgDurationMS = float64(totalDur.Microseconds()) / 1000 / float64(s.Runs)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.CleaningRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tJOB\tSOURCE\tRECORDS\tVALID\tDUPES\tSCORE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t---\t------\t-------\t-----\t-----\t-----\t-------")

	for _, r := range runs {
		source := r.Source
		if len(source) > 30 {
			source = "..." + source[len(source)-27:]
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%.2f\t%s\n",
			truncateID(r.ID),
			r.JobID,
			source,
			r.Metrics.TotalRecords,
			r.Metrics.ValidRecords,
			r.Metrics.DuplicateRecords,
			r.Metrics.OverallScore,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Runs)
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", s.Records)
	_, _ = fmt.Fprintf(w, "  Valid:\t%d\n", s.Valid)
	_, _ = fmt.Fprintf(w, "  Invalid:\t%d\n", s.Invalid)
	_, _ = fmt.Fprintf(w, "  Duplicates:\t%d\n", s.Duplicates)
	_, _ = fmt.Fprintf(w, "  Corrected:\t%d\n", s.Corrected)
	if s.Runs > 0 {
		_, _ = fmt.Fprintf(w, "Avg overall score:\t%.3f\n", s.AvgOverall)
		_, _ = fmt.Fprintf(w, "Avg processing time:\t%.1fms\n", s.AvgDurationMS)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
