package clean

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

// Result is the outcome of applying one rule to one value.
type Result struct {
	Value      any
	Confidence float64
	Accepted   bool
}

// Apply runs the rule's cleaner against value. A panicking cleaner or a NaN
// confidence yields a *CleanerFailure with the original value and confidence
// 0. Otherwise the confidence is clamped to [0,1] and the result is accepted
// when it reaches the rule's threshold.
func Apply(rule model.CleaningRule, value any) (res Result, err error) {
	res = Result{Value: value}

	fn, ok := Lookup(rule.Kind)
	if !ok {
		return res, &CleanerFailure{
			Field: rule.FieldName,
			Kind:  rule.Kind,
			Cause: eris.Errorf("clean: no cleaner for kind %q", rule.Kind),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{Value: value}
			err = &CleanerFailure{
				Field: rule.FieldName,
				Kind:  rule.Kind,
				Cause: eris.New(fmt.Sprintf("panic: %v", r)),
			}
		}
	}()

	cleaned, confidence := fn(value, rule.Params)
	if math.IsNaN(confidence) {
		return res, &CleanerFailure{
			Field: rule.FieldName,
			Kind:  rule.Kind,
			Cause: eris.New("confidence is NaN"),
		}
	}

	res.Confidence = Clamp(confidence)
	if res.Confidence >= rule.ConfidenceThreshold {
		res.Value = cleaned
		res.Accepted = true
	}
	return res, nil
}

// Clamp bounds v to [0,1].
func Clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
