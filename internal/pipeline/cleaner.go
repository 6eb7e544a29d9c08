// Package pipeline orchestrates cleaning, duplicate detection and quality
// scoring over a batch of scraped records.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/scrape-cleaner/internal/clean"
	"github.com/sells-group/scrape-cleaner/internal/config"
	"github.com/sells-group/scrape-cleaner/internal/dedupe"
	"github.com/sells-group/scrape-cleaner/internal/model"
	"github.com/sells-group/scrape-cleaner/internal/quality"
)

// DataCleaner applies cleaning rules to record batches and measures the
// result. It owns its rule registry; CleanData works on a snapshot, so rules
// added concurrently only affect later calls.
type DataCleaner struct {
	mu       sync.RWMutex
	registry *clean.Registry
	opts     options
}

// NewDataCleaner builds a DataCleaner. Out-of-range thresholds return a
// *clean.ConfigurationError.
func NewDataCleaner(opts ...Option) (*DataCleaner, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if !unit(o.similarityThreshold) {
		return nil, &clean.ConfigurationError{Reason: fmt.Sprintf("similarity threshold %v outside [0,1]", o.similarityThreshold)}
	}
	if !unit(o.confidenceFloor) {
		return nil, &clean.ConfigurationError{Reason: fmt.Sprintf("confidence floor %v outside [0,1]", o.confidenceFloor)}
	}
	if o.now == nil {
		return nil, &clean.ConfigurationError{Reason: "clock is nil"}
	}

	reg := clean.NewDefaultRegistry()
	if o.registry != nil {
		reg = o.registry.Snapshot()
	}
	return &DataCleaner{registry: reg, opts: o}, nil
}

// NewDataCleanerFromConfig builds a DataCleaner from configuration. Rules in
// cfg.RulesFile override the defaults field by field.
func NewDataCleanerFromConfig(cfg config.CleanerConfig) (*DataCleaner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := clean.NewDefaultRegistry()
	if cfg.RulesFile != "" {
		rules, err := clean.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		overridden := map[string]bool{}
		for _, r := range rules {
			if !overridden[r.FieldName] {
				overridden[r.FieldName] = true
				err = reg.Replace(r)
			} else {
				err = reg.Add(r)
			}
			if err != nil {
				return nil, eris.Wrapf(err, "pipeline: register rule for %s", r.FieldName)
			}
		}
	}

	w := cfg.QualityWeights
	opts := []Option{
		WithRegistry(reg),
		WithSimilarityThreshold(cfg.SimilarityThreshold),
		WithConfidenceFloor(cfg.ConfidenceFloor),
		WithRequiredFields(cfg.RequiredFields...),
		WithExpectedFields(cfg.ExpectedFields...),
		WithWeights(quality.Weights{Completeness: w.Completeness, Accuracy: w.Accuracy, Consistency: w.Consistency}),
	}
	if len(cfg.TextFields) > 0 {
		opts = append(opts, WithTextFields(cfg.TextFields...))
	}
	return NewDataCleaner(opts...)
}

// AddCleaningRule validates and appends a rule.
func (dc *DataCleaner) AddCleaningRule(rule model.CleaningRule) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.registry.Add(rule)
}

// ReplaceCleaningRule replaces every rule for the rule's field.
func (dc *DataCleaner) ReplaceCleaningRule(rule model.CleaningRule) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.registry.Replace(rule)
}

// Rules returns a copy of the current rules.
func (dc *DataCleaner) Rules() []model.CleaningRule {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.registry.Rules()
}

func (dc *DataCleaner) snapshot() *clean.Registry {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.registry.Snapshot()
}

// CleanData cleans a copy of records and returns it, in input order, with
// the run's metrics. Invalid records are returned flagged, not dropped. It
// never fails: cleaner and record failures are recorded in the metrics.
func (dc *DataCleaner) CleanData(records []model.Record) ([]model.Record, model.DataQualityMetrics) {
	log := zap.L().With(zap.String("component", "data_cleaner"))
	start := dc.opts.now()
	reg := dc.snapshot()

	out := make([]model.Record, len(records))
	for i := range records {
		out[i] = records[i].Clone()
		out[i].Valid = false
		out[i].Corrected = false
		out[i].ValidationErrors = nil
	}

	notes := make([][]model.RecordError, len(out))
	outcomes := make([]quality.RecordOutcome, len(out))

	// Clean.
	for i := range out {
		original := out[i].Clone()
		outcome, fieldNotes, err := cleanRecord(reg, &out[i])
		if err != nil {
			log.Warn("record failed during cleaning", zap.String("record_id", original.ID), zap.Error(err))
			out[i] = original
			outcome = quality.RecordOutcome{Failed: true}
			fieldNotes = []model.RecordError{{RecordID: original.ID, Code: model.ErrCodeRecordFailure, Message: err.Error()}}
		}
		outcomes[i] = outcome
		notes[i] = fieldNotes
	}

	// Detect duplicates.
	detector := dedupe.NewDetector(dedupe.DefaultThreshold)
	detector.Threshold = dc.opts.similarityThreshold
	if len(dc.opts.textFields) > 0 {
		detector.TextFields = dc.opts.textFields
	}
	pairs := detector.Detect(out)
	if pairs == nil {
		pairs = []model.DuplicatePair{}
	}

	// Score.
	scorer := &quality.Scorer{ExpectedFields: dc.opts.expectedFields, Weights: dc.opts.weights}
	scores := scorer.Score(out, outcomes, pairs)

	// Validate.
	m := model.DataQualityMetrics{
		TotalRecords:     len(out),
		DuplicateRecords: dedupe.Redundant(pairs),
		ValidationErrors: map[string]int{},
		Duplicates:       pairs,
		RecordErrors:     []model.RecordError{},
	}
	for i := range out {
		rec := &out[i]
		if acc, ok := outcomes[i].Accuracy(); ok {
			rec.ConfidenceScore = math.Min(rec.ConfidenceScore, acc)
		}
		if i < len(scores.Records) {
			rec.QualityScore = scores.Records[i]
		}

		if outcomes[i].Failed {
			rec.ConfidenceScore = 0
		} else {
			problems := dc.validate(*rec)
			rec.Valid = len(problems) == 0
			notes[i] = append(notes[i], problems...)
		}

		if rec.Valid {
			m.ValidRecords++
		} else {
			m.InvalidRecords++
		}
		if rec.Corrected {
			m.CorrectedRecords++
		}
		for _, n := range notes[i] {
			m.ValidationErrors[n.Code]++
			rec.ValidationErrors = append(rec.ValidationErrors, n.String())
		}
		m.RecordErrors = append(m.RecordErrors, notes[i]...)
	}

	m.OverallScore = scores.Overall
	m.CompletenessScore = scores.Completeness
	m.AccuracyScore = scores.Accuracy
	m.ConsistencyScore = scores.Consistency
	m.FieldQuality = scores.FieldQuality
	m.ProcessedAt = dc.opts.now()
	m.ProcessingTime = m.ProcessedAt.Sub(start)

	log.Info("cleaned batch",
		zap.Int("total", m.TotalRecords),
		zap.Int("valid", m.ValidRecords),
		zap.Int("invalid", m.InvalidRecords),
		zap.Int("duplicates", m.DuplicateRecords),
		zap.Int("corrected", m.CorrectedRecords),
		zap.Float64("overall", m.OverallScore),
		zap.Duration("elapsed", m.ProcessingTime),
	)
	return out, m
}

// applyRule runs one rule. Tests replace it to inject failures.
var applyRule = clean.Apply

// cleanRecord applies every matching rule to the record's fields, in sorted
// key order. A panic outside a cleaner becomes a record failure.
func cleanRecord(reg *clean.Registry, rec *model.Record) (outcome quality.RecordOutcome, notes []model.RecordError, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pipeline: record %s: %v", rec.ID, r)
		}
	}()

	for _, key := range rec.Content.Keys() {
		for _, rule := range reg.RulesFor(key) {
			value, _ := rec.Content.Get(key)
			if model.IsBlank(value) {
				break
			}

			res, cerr := applyRule(rule, value)
			fo := quality.FieldOutcome{Field: key, Confidence: res.Confidence, Accepted: res.Accepted}
			switch {
			case cerr != nil:
				fo.Failed = true
				fo.Accepted = false
				notes = append(notes, model.RecordError{RecordID: rec.ID, Code: model.ErrCodeCleanerFailure, Field: key, Message: cerr.Error()})
				zap.L().Debug("cleaner failed", zap.String("record_id", rec.ID), zap.String("field", key), zap.Error(cerr))
			case !res.Accepted:
				notes = append(notes, model.RecordError{
					RecordID: rec.ID,
					Code:     model.ErrCodeRejected,
					Field:    key,
					Message:  fmt.Sprintf("%s confidence %.2f below threshold %.2f", rule.Kind, res.Confidence, rule.ConfidenceThreshold),
				})
			case !reflect.DeepEqual(value, res.Value):
				rec.Content.Set(key, res.Value)
				rec.Corrected = true
			}
			outcome.Fields = append(outcome.Fields, fo)
		}
	}
	return outcome, notes, nil
}

// validate returns the reasons a cleaned record is invalid. The validator
// runs under recover; a panic counts as a record failure.
func (dc *DataCleaner) validate(rec model.Record) (problems []model.RecordError) {
	for _, f := range dc.opts.requiredFields {
		if v, ok := rec.Content.Get(f); !ok || model.IsBlank(v) {
			problems = append(problems, model.RecordError{
				RecordID: rec.ID,
				Code:     model.ErrCodeMissingRequired,
				Field:    f,
				Message:  fmt.Sprintf("required field %q is missing", f),
			})
		}
	}

	if dc.opts.validator != nil {
		if err := runValidator(dc.opts.validator, rec); err != nil {
			code := model.ErrCodeValidator
			var pe *panicError
			if errors.As(err, &pe) {
				code = model.ErrCodeRecordFailure
			}
			problems = append(problems, model.RecordError{RecordID: rec.ID, Code: code, Message: err.Error()})
		}
	}

	if rec.ConfidenceScore < dc.opts.confidenceFloor {
		problems = append(problems, model.RecordError{
			RecordID: rec.ID,
			Code:     model.ErrCodeLowConfidence,
			Message:  fmt.Sprintf("confidence %.2f below floor %.2f", rec.ConfidenceScore, dc.opts.confidenceFloor),
		})
	}
	return problems
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("validator panicked: %v", e.value)
}

func runValidator(v Validator, rec model.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return v(rec)
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
