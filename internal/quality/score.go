// Package quality scores a cleaned batch along completeness, accuracy and
// consistency, and derives recommendations from the result.
package quality

import (
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

// Weights combine the three dimensions into the overall score.
type Weights struct {
	Completeness float64 `mapstructure:"completeness" json:"completeness"`
	Accuracy     float64 `mapstructure:"accuracy" json:"accuracy"`
	Consistency  float64 `mapstructure:"consistency" json:"consistency"`
}

// DefaultWeights gives an unweighted mean.
func DefaultWeights() Weights {
	return Weights{Completeness: 1, Accuracy: 1, Consistency: 1}
}

// FieldOutcome is one cleaning attempt on one field.
type FieldOutcome struct {
	Field      string
	Confidence float64 // raw cleaner confidence
	Accepted   bool
	Failed     bool
}

// Accuracy is the confidence credited to the field: rejected or failed
// attempts count as 0.
func (o FieldOutcome) Accuracy() float64 {
	if !o.Accepted || o.Failed {
		return 0
	}
	return o.Confidence
}

// RecordOutcome collects the cleaning attempts made on one record.
type RecordOutcome struct {
	Fields []FieldOutcome
	Failed bool
}

// Accuracy returns the mean accuracy of the record's attempts; ok is false
// when nothing was attempted.
func (o RecordOutcome) Accuracy() (float64, bool) {
	if len(o.Fields) == 0 {
		return 0, false
	}
	var sum float64
	for _, f := range o.Fields {
		sum += f.Accuracy()
	}
	return sum / float64(len(o.Fields)), true
}

// Scores is the scorer's output for a batch.
type Scores struct {
	Overall      float64
	Completeness float64
	Accuracy     float64
	Consistency  float64
	FieldQuality map[string]float64
	// Records holds a per-record quality score, aligned with the input.
	Records []float64
}

// Scorer computes batch quality. ExpectedFields drives completeness; when
// empty the union of keys seen in the batch is used.
type Scorer struct {
	ExpectedFields []string
	Weights        Weights
}

// NewScorer returns a Scorer with default weights.
func NewScorer(expected []string) *Scorer {
	return &Scorer{ExpectedFields: expected, Weights: DefaultWeights()}
}

// Score computes the batch dimensions. outcomes must align with records.
// Every score is clamped to [0,1] and rounded to four decimals; an empty
// batch scores 0 on every dimension.
func (s *Scorer) Score(records []model.Record, outcomes []RecordOutcome, pairs []model.DuplicatePair) Scores {
	out := Scores{FieldQuality: map[string]float64{}}
	n := len(records)
	if n == 0 {
		return out
	}

	expected := s.expectedFields(records)
	out.Records = make([]float64, n)

	var compSum, accSum float64
	attempts := 0
	fieldSum := map[string]float64{}
	fieldCount := map[string]int{}

	for i, r := range records {
		comp := completeness(r, expected)
		compSum += comp

		recAcc := 1.0
		if i < len(outcomes) {
			for _, f := range outcomes[i].Fields {
				accSum += f.Accuracy()
				attempts++
				fieldSum[f.Field] += f.Confidence
				fieldCount[f.Field]++
			}
			if a, ok := outcomes[i].Accuracy(); ok {
				recAcc = a
			}
			if outcomes[i].Failed {
				recAcc = 0
			}
		}
		out.Records[i] = round4(clamp((comp + recAcc) / 2))
	}

	out.Completeness = round4(clamp(compSum / float64(n)))
	out.Accuracy = 1
	if attempts > 0 {
		out.Accuracy = round4(clamp(accSum / float64(attempts)))
	}
	out.Consistency = round4(clamp(Consistency(n, len(pairs))))
	out.Overall = round4(clamp(s.overall(out.Completeness, out.Accuracy, out.Consistency)))

	for f, sum := range fieldSum {
		out.FieldQuality[f] = round4(clamp(sum / float64(fieldCount[f])))
	}
	return out
}

// Consistency is 1 - pairs / (n choose 2); batches under two records are
// fully consistent.
func Consistency(n, pairs int) float64 {
	if n < 2 {
		return 1
	}
	possible := float64(n) * float64(n-1) / 2
	return 1 - float64(pairs)/possible
}

func (s *Scorer) overall(comp, acc, cons float64) float64 {
	w := s.Weights
	values := []float64{comp, acc, cons}
	weights := []float64{w.Completeness, w.Accuracy, w.Consistency}

	total := 0.0
	for _, v := range weights {
		if v < 0 || math.IsNaN(v) {
			total = 0
			break
		}
		total += v
	}
	if total == 0 {
		zap.L().Warn("quality: weights are zero or invalid, using unweighted mean")
		return stat.Mean(values, nil)
	}
	return stat.Mean(values, weights)
}

func (s *Scorer) expectedFields(records []model.Record) []string {
	if len(s.ExpectedFields) > 0 {
		return s.ExpectedFields
	}
	seen := map[string]struct{}{}
	var keys []string
	for _, r := range records {
		for _, k := range r.Content.Keys() {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func completeness(r model.Record, expected []string) float64 {
	if len(expected) == 0 {
		return 0
	}
	present := 0
	for _, f := range expected {
		if v, ok := r.Content.Get(f); ok && !model.IsBlank(v) {
			present++
		}
	}
	return float64(present) / float64(len(expected))
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
