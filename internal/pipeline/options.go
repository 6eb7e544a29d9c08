package pipeline

import (
	"time"

	"github.com/sells-group/scrape-cleaner/internal/clean"
	"github.com/sells-group/scrape-cleaner/internal/dedupe"
	"github.com/sells-group/scrape-cleaner/internal/model"
	"github.com/sells-group/scrape-cleaner/internal/quality"
)

// DefaultConfidenceFloor is the post-clean confidence below which a record is
// invalid.
const DefaultConfidenceFloor = 0.3

// Validator is a caller-supplied per-record check. A non-nil error marks the
// record invalid.
type Validator func(rec model.Record) error

type options struct {
	registry            *clean.Registry
	similarityThreshold float64
	requiredFields      []string
	expectedFields      []string
	textFields          []string
	confidenceFloor     float64
	weights             quality.Weights
	validator           Validator
	now                 func() time.Time
}

func defaultOptions() options {
	return options{
		similarityThreshold: dedupe.DefaultThreshold,
		confidenceFloor:     DefaultConfidenceFloor,
		weights:             quality.DefaultWeights(),
		now:                 time.Now,
	}
}

// Option configures a DataCleaner.
type Option func(*options)

// WithRegistry uses reg instead of the default rules. The cleaner keeps its
// own copy.
func WithRegistry(reg *clean.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithSimilarityThreshold sets the duplicate threshold.
func WithSimilarityThreshold(t float64) Option {
	return func(o *options) { o.similarityThreshold = t }
}

// WithRequiredFields lists fields every valid record must carry.
func WithRequiredFields(fields ...string) Option {
	return func(o *options) { o.requiredFields = append([]string(nil), fields...) }
}

// WithExpectedFields fixes the field set used for completeness.
func WithExpectedFields(fields ...string) Option {
	return func(o *options) { o.expectedFields = append([]string(nil), fields...) }
}

// WithTextFields sets the fields compared as free text by the duplicate
// detector.
func WithTextFields(fields ...string) Option {
	return func(o *options) { o.textFields = append([]string(nil), fields...) }
}

// WithConfidenceFloor sets the minimum post-clean record confidence.
func WithConfidenceFloor(f float64) Option {
	return func(o *options) { o.confidenceFloor = f }
}

// WithWeights sets the overall-score weights.
func WithWeights(w quality.Weights) Option {
	return func(o *options) { o.weights = w }
}

// WithValidator adds a custom per-record check.
func WithValidator(v Validator) Option {
	return func(o *options) { o.validator = v }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
