package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/scrape-cleaner/internal/model"
	"github.com/sells-group/scrape-cleaner/internal/quality"
)

// GenerateQualityReport builds the structured report for a run.
func (dc *DataCleaner) GenerateQualityReport(m model.DataQualityMetrics) model.QualityReport {
	return BuildReport(m, dc.opts.now())
}

// BuildReport assembles a QualityReport from metrics. Maps are copied so the
// report does not alias the metrics.
func BuildReport(m model.DataQualityMetrics, generatedAt time.Time) model.QualityReport {
	fq := make(map[string]float64, len(m.FieldQuality))
	for k, v := range m.FieldQuality {
		fq[k] = v
	}
	ve := make(map[string]int, len(m.ValidationErrors))
	for k, v := range m.ValidationErrors {
		ve[k] = v
	}

	return model.QualityReport{
		Summary: model.ReportSummary{
			TotalRecords:     m.TotalRecords,
			ValidRecords:     m.ValidRecords,
			InvalidRecords:   m.InvalidRecords,
			DuplicateRecords: m.DuplicateRecords,
			CorrectedRecords: m.CorrectedRecords,
			ProcessingTimeMS: float64(m.ProcessingTime.Microseconds()) / 1000,
		},
		QualityScores: model.QualityScores{
			Overall:      m.OverallScore,
			Completeness: m.CompletenessScore,
			Accuracy:     m.AccuracyScore,
			Consistency:  m.ConsistencyScore,
		},
		FieldQuality:     fq,
		ValidationErrors: ve,
		Recommendations:  quality.Recommend(m),
		GeneratedAt:      generatedAt.UTC(),
	}
}

// FormatReport renders a report as Markdown.
func FormatReport(r model.QualityReport) string {
	var b strings.Builder

	b.WriteString("# Data Quality Report\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	// Summary.
	s := r.Summary
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Total records: %d\n", s.TotalRecords)
	fmt.Fprintf(&b, "- Valid: %d\n", s.ValidRecords)
	fmt.Fprintf(&b, "- Invalid: %d\n", s.InvalidRecords)
	fmt.Fprintf(&b, "- Duplicates: %d\n", s.DuplicateRecords)
	fmt.Fprintf(&b, "- Corrected: %d\n", s.CorrectedRecords)
	fmt.Fprintf(&b, "- Processing time: %.1fms\n\n", s.ProcessingTimeMS)

	// Scores.
	q := r.QualityScores
	b.WriteString("## Quality Scores\n")
	fmt.Fprintf(&b, "- Overall: %.2f\n", q.Overall)
	fmt.Fprintf(&b, "- Completeness: %.2f\n", q.Completeness)
	fmt.Fprintf(&b, "- Accuracy: %.2f\n", q.Accuracy)
	fmt.Fprintf(&b, "- Consistency: %.2f\n\n", q.Consistency)

	b.WriteString("## Field Quality\n")
	if len(r.FieldQuality) == 0 {
		b.WriteString("No fields cleaned.\n\n")
	} else {
		for _, k := range sortedKeys(r.FieldQuality) {
			fmt.Fprintf(&b, "- %s: %.0f%%\n", k, r.FieldQuality[k]*100)
		}
		b.WriteString("\n")
	}

	if len(r.ValidationErrors) > 0 {
		b.WriteString("## Validation Errors\n")
		for _, k := range sortedKeys(r.ValidationErrors) {
			fmt.Fprintf(&b, "- %s: %d\n", k, r.ValidationErrors[k])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recommendations\n")
	if len(r.Recommendations) == 0 {
		b.WriteString("None.\n")
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", strings.ToUpper(string(rec.Severity)), rec.Code, rec.Message)
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
