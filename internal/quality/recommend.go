package quality

import (
	"fmt"
	"sort"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

// Recommendation codes.
const (
	CodeLowCompleteness   = "low_completeness"
	CodeLowAccuracy       = "low_accuracy"
	CodeLowConsistency    = "low_consistency"
	CodeHighDuplicateRate = "high_duplicate_rate"
	CodeHighInvalidRate   = "high_invalid_rate"
	CodeLowOverall        = "low_overall_quality"
	CodeLowFieldQuality   = "low_field_quality"
)

// Thresholds for the batch-level rules.
const (
	MinCompleteness   = 0.8
	MinAccuracy       = 0.7
	MinConsistency    = 0.6
	MaxDuplicateRate  = 0.1
	MaxInvalidRate    = 0.2
	MinOverall        = 0.7
	MinFieldQuality   = 0.5
	criticalThreshold = 0.5
)

type rule struct {
	code  string
	limit float64
	// ceiling rules fire above limit; floor rules fire below it.
	ceiling bool
	value   func(m model.DataQualityMetrics) float64
	message string
}

func (r rule) applies(m model.DataQualityMetrics) (float64, bool) {
	v := r.value(m)
	if r.ceiling {
		return v, v > r.limit
	}
	return v, v < r.limit
}

// severity escalates floor rules to critical below 0.5 and ceiling rules to
// critical above 0.5.
func (r rule) severity(v float64) model.Severity {
	if (r.ceiling && v > criticalThreshold) || (!r.ceiling && v < criticalThreshold) {
		return model.SeverityCritical
	}
	return model.SeverityWarning
}

// rules is evaluated in order; the result order is stable.
var rules = []rule{
	{
		code:    CodeLowCompleteness,
		limit:   MinCompleteness,
		value:   func(m model.DataQualityMetrics) float64 { return m.CompletenessScore },
		message: "completeness %.2f below %.2f: review extraction selectors for missing fields",
	},
	{
		code:    CodeLowAccuracy,
		limit:   MinAccuracy,
		value:   func(m model.DataQualityMetrics) float64 { return m.AccuracyScore },
		message: "accuracy %.2f below %.2f: improve validation and cleaning rules",
	},
	{
		code:    CodeLowConsistency,
		limit:   MinConsistency,
		value:   func(m model.DataQualityMetrics) float64 { return m.ConsistencyScore },
		message: "consistency %.2f below %.2f: standardize formats across sources",
	},
	{
		code:    CodeHighDuplicateRate,
		limit:   MaxDuplicateRate,
		ceiling: true,
		value:   model.DataQualityMetrics.DuplicateRate,
		message: "duplicate rate %.2f above %.2f: deduplicate upstream or tighten crawl scope",
	},
	{
		code:    CodeHighInvalidRate,
		limit:   MaxInvalidRate,
		ceiling: true,
		value:   model.DataQualityMetrics.InvalidRate,
		message: "invalid rate %.2f above %.2f: review extraction logic and required fields",
	},
	{
		code:    CodeLowOverall,
		limit:   MinOverall,
		value:   func(m model.DataQualityMetrics) float64 { return m.OverallScore },
		message: "overall quality %.2f below %.2f: consider a full review of the scraping configuration",
	},
}

// Recommend derives recommendations from metrics with a fixed rule table.
// An empty run yields none.
func Recommend(m model.DataQualityMetrics) []model.Recommendation {
	out := []model.Recommendation{}
	if m.TotalRecords == 0 {
		return out
	}

	for _, r := range rules {
		v, ok := r.applies(m)
		if !ok {
			continue
		}
		out = append(out, model.Recommendation{
			Code:     r.code,
			Severity: r.severity(v),
			Message:  fmt.Sprintf(r.message, v, r.limit),
		})
	}

	fields := make([]string, 0, len(m.FieldQuality))
	for f := range m.FieldQuality {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		q := m.FieldQuality[f]
		if q >= MinFieldQuality {
			continue
		}
		out = append(out, model.Recommendation{
			Code:     CodeLowFieldQuality,
			Severity: model.SeverityWarning,
			Field:    f,
			Message:  fmt.Sprintf("field %q quality %.2f below %.2f: check its cleaning rule and source", f, q, MinFieldQuality),
		})
	}
	return out
}
