// Package monitoring watches stored cleaning runs for quality regressions
// and posts alerts to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/scrape-cleaner/internal/model"
	"github.com/sells-group/scrape-cleaner/internal/store"
)

// maxRunsPerWindow caps how many runs one collection reads.
const maxRunsPerWindow = 10000

// RunLister is the part of store.Store the collector reads from.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.CleaningRun, error)
}

// MetricsSnapshot holds averaged quality figures over a lookback window.
type MetricsSnapshot struct {
	Runs    int `json:"runs"`
	Records int `json:"records"`

	AvgOverall      float64 `json:"avg_overall"`
	AvgCompleteness float64 `json:"avg_completeness"`
	AvgAccuracy     float64 `json:"avg_accuracy"`
	AvgConsistency  float64 `json:"avg_consistency"`

	// Rates are weighted by record count across runs.
	InvalidRate   float64 `json:"invalid_rate"`
	DuplicateRate float64 `json:"duplicate_rate"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from stored runs.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect aggregates runs created within the last lookbackHours. Runs with
// no records do not count toward the averages.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		Since: cutoff,
		Limit: maxRunsPerWindow,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var invalid, duplicates int
	for _, r := range runs {
		m := r.Metrics
		if m.TotalRecords == 0 {
			continue
		}
		snap.Runs++
		snap.Records += m.TotalRecords
		invalid += m.InvalidRecords
		duplicates += m.DuplicateRecords
		snap.AvgOverall += m.OverallScore
		snap.AvgCompleteness += m.CompletenessScore
		snap.AvgAccuracy += m.AccuracyScore
		snap.AvgConsistency += m.ConsistencyScore
	}

	if snap.Runs > 0 {
		n := float64(snap.Runs)
		snap.AvgOverall /= n
		snap.AvgCompleteness /= n
		snap.AvgAccuracy /= n
		snap.AvgConsistency /= n
	}
	if snap.Records > 0 {
		snap.InvalidRate = float64(invalid) / float64(snap.Records)
		snap.DuplicateRate = float64(duplicates) / float64(snap.Records)
	}

	return snap, nil
}
