package clean

import (
	"errors"
	"fmt"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

// ErrConfiguration is matched by every ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("clean: invalid rule configuration")

// ConfigurationError reports a malformed cleaning rule. It is returned at
// registration time, never during a batch.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("clean: invalid rule: %s", e.Reason)
	}
	return fmt.Sprintf("clean: invalid rule for field %q: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrConfiguration) match.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// CleanerFailure wraps a cleaner that panicked or produced an out-of-domain
// confidence. The field keeps its original value.
type CleanerFailure struct {
	Field string
	Kind  model.RuleKind
	Cause error
}

func (e *CleanerFailure) Error() string {
	return fmt.Sprintf("clean: %s cleaner failed on field %q: %v", e.Kind, e.Field, e.Cause)
}

func (e *CleanerFailure) Unwrap() error {
	return e.Cause
}
