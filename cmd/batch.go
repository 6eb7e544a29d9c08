package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/scrape-cleaner/internal/pipeline"
	"github.com/sells-group/scrape-cleaner/internal/store"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file-or-url>...",
	Short: "Clean many record files concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("clean"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		outDir, _ := cmd.Flags().GetString("out-dir")
		format, _ := cmd.Flags().GetString("format")
		jobID, _ := cmd.Flags().GetString("job-id")
		save, _ := cmd.Flags().GetBool("save")

		dc, err := pipeline.NewDataCleanerFromConfig(cfg.Cleaner)
		if err != nil {
			return eris.Wrap(err, "batch: build cleaner")
		}

		var st store.Store
		if save {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		return processBatch(ctx, args, cfg.Batch.MaxConcurrentFiles, func(ctx context.Context, src string) error {
			res, err := cleanSource(ctx, dc, st, src, jobID)
			if err != nil {
				return err
			}
			if outDir == "" {
				return nil
			}
			return writeRecords(cleanedPath(outDir, src, format), "", res.Records)
		})
	},
}

func init() {
	batchCmd.Flags().String("out-dir", "", "directory for cleaned files (omit to only report)")
	batchCmd.Flags().String("format", "", "output format (defaults to each input's format)")
	batchCmd.Flags().String("job-id", "", "job ID recorded on every run")
	batchCmd.Flags().Bool("save", false, "persist each run to the store")
	rootCmd.AddCommand(batchCmd)
}

// sourceFunc processes a single record source.
type sourceFunc func(ctx context.Context, src string) error

// processBatch runs fn over every source with at most concurrency in flight.
// A failing source is logged and does not stop the others.
func processBatch(ctx context.Context, sources []string, concurrency int, fn sourceFunc) error {
	if len(sources) == 0 {
		zap.L().Info("no sources given")
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("sources", len(sources)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, src := range sources {
		g.Go(func() error {
			log := zap.L().With(zap.String("source", src))

			if err := fn(gctx, src); err != nil {
				failed.Add(1)
				log.Error("source failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	if n := failed.Load(); n > 0 {
		return eris.Errorf("batch: %d of %d sources failed", n, len(sources))
	}
	return nil
}

// cleanedPath names the output file for src inside dir. An empty format
// keeps the input's extension.
func cleanedPath(dir, src, format string) string {
	base := filepath.Base(src)
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem = "records"
	}
	if format != "" {
		ext = "." + strings.TrimPrefix(format, ".")
	}
	if ext == "" {
		ext = ".json"
	}
	return filepath.Join(dir, stem+".cleaned"+ext)
}
