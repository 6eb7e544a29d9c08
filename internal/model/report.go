package model

import "time"

// Severity ranks a recommendation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Recommendation is a structured, rule-derived suggestion for improving a
// batch. Code is stable and meant for programmatic matching.
type Recommendation struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
}

// ReportSummary carries the record counts of a run.
type ReportSummary struct {
	TotalRecords     int     `json:"total_records"`
	ValidRecords     int     `json:"valid_records"`
	InvalidRecords   int     `json:"invalid_records"`
	DuplicateRecords int     `json:"duplicate_records"`
	CorrectedRecords int     `json:"corrected_records"`
	ProcessingTimeMS float64 `json:"processing_time_ms"`
}

// QualityScores carries the four quality dimensions of a run.
type QualityScores struct {
	Overall      float64 `json:"overall"`
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Consistency  float64 `json:"consistency"`
}

// QualityReport is the serialisable report built from DataQualityMetrics.
type QualityReport struct {
	Summary          ReportSummary      `json:"summary"`
	QualityScores    QualityScores      `json:"quality_scores"`
	FieldQuality     map[string]float64 `json:"field_quality"`
	ValidationErrors map[string]int     `json:"validation_errors"`
	Recommendations  []Recommendation   `json:"recommendations"`
	GeneratedAt      time.Time          `json:"generated_at"`
}

// CleaningRun is a persisted cleaning invocation.
type CleaningRun struct {
	ID        string             `json:"id"`
	JobID     string             `json:"job_id"`
	Source    string             `json:"source"`
	Metrics   DataQualityMetrics `json:"metrics"`
	Report    QualityReport      `json:"report"`
	CreatedAt time.Time          `json:"created_at"`
}
