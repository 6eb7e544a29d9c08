package model

import "time"

// Validation error codes recorded in DataQualityMetrics.ValidationErrors and
// on each record.
const (
	ErrCodeRejected        = "rejected"
	ErrCodeCleanerFailure  = "cleaner_failure"
	ErrCodeMissingRequired = "missing_required_field"
	ErrCodeLowConfidence   = "low_confidence"
	ErrCodeRecordFailure   = "record_failure"
	ErrCodeValidator       = "validator"
)

// DuplicatePair is an unordered pair of near-duplicate records. IDA always
// sorts before IDB.
type DuplicatePair struct {
	IDA        string  `json:"id_a"`
	IDB        string  `json:"id_b"`
	Similarity float64 `json:"similarity"`
}

// RecordError notes why a record was marked invalid.
type RecordError struct {
	RecordID string `json:"record_id"`
	Code     string `json:"code"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

func (e RecordError) String() string {
	if e.Field == "" {
		return e.Code + ": " + e.Message
	}
	return e.Code + " [" + e.Field + "]: " + e.Message
}

// DataQualityMetrics is the aggregate outcome of one cleaning run.
// ValidRecords + InvalidRecords always equals TotalRecords.
type DataQualityMetrics struct {
	TotalRecords     int           `json:"total_records"`
	ValidRecords     int           `json:"valid_records"`
	InvalidRecords   int           `json:"invalid_records"`
	DuplicateRecords int           `json:"duplicate_records"`
	CorrectedRecords int           `json:"corrected_records"`
	ProcessingTime   time.Duration `json:"processing_time_ns"`

	OverallScore      float64 `json:"overall_score"`
	CompletenessScore float64 `json:"completeness_score"`
	AccuracyScore     float64 `json:"accuracy_score"`
	ConsistencyScore  float64 `json:"consistency_score"`

	FieldQuality     map[string]float64 `json:"field_quality"`
	ValidationErrors map[string]int     `json:"validation_errors"`
	Duplicates       []DuplicatePair    `json:"duplicates"`
	RecordErrors     []RecordError      `json:"record_errors,omitempty"`
	ProcessedAt      time.Time          `json:"processed_at"`
}

// DuplicateRate returns DuplicateRecords / TotalRecords, 0 for an empty run.
func (m DataQualityMetrics) DuplicateRate() float64 {
	if m.TotalRecords == 0 {
		return 0
	}
	return float64(m.DuplicateRecords) / float64(m.TotalRecords)
}

// InvalidRate returns InvalidRecords / TotalRecords, 0 for an empty run.
func (m DataQualityMetrics) InvalidRate() float64 {
	if m.TotalRecords == 0 {
		return 0
	}
	return float64(m.InvalidRecords) / float64(m.TotalRecords)
}
