package clean

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

type paramType int

const (
	paramBool paramType = iota
	paramInt
	paramString
	paramStrings
)

// allowedParams lists the switches each cleaner understands.
var allowedParams = map[model.RuleKind]map[string]paramType{
	model.KindEmail: {"normalize_case": paramBool},
	model.KindPhone: {"remove_formatting": paramBool},
	model.KindURL:   {"normalize_scheme": paramBool, "remove_fragments": paramBool},
	model.KindText: {
		"strip_html":              paramBool,
		"normalize_unicode":       paramBool,
		"remove_extra_whitespace": paramBool,
	},
	model.KindPrice: {
		"decimal_places":    paramInt,
		"currency_symbol":   paramString,
		"decimal_separator": paramString,
	},
	model.KindDate: {
		"output_layout": paramString,
		"input_layouts": paramStrings,
		"day_first":     paramBool,
	},
}

// Validate checks a rule and returns a *ConfigurationError describing the
// first problem found.
func Validate(rule model.CleaningRule) error {
	field := strings.TrimSpace(rule.FieldName)
	if field == "" {
		return &ConfigurationError{Reason: "field name is empty"}
	}
	if _, ok := Lookup(rule.Kind); !ok {
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown rule kind %q", rule.Kind)}
	}
	t := rule.ConfidenceThreshold
	if math.IsNaN(t) || t < 0 || t > 1 {
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("confidence threshold %v outside [0,1]", t)}
	}

	allowed := allowedParams[rule.Kind]
	for name, v := range rule.Params {
		typ, ok := allowed[name]
		if !ok {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown %s param %q", rule.Kind, name)}
		}
		var err error
		switch typ {
		case paramBool:
			_, err = cast.ToBoolE(v)
		case paramInt:
			var n int
			n, err = cast.ToIntE(v)
			if err == nil && (n < 0 || n > 10) {
				err = eris.Errorf("%d outside [0,10]", n)
			}
		case paramString:
			_, err = cast.ToStringE(v)
		case paramStrings:
			_, err = cast.ToStringSliceE(v)
		}
		if err != nil {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("param %q: %v", name, err)}
		}
	}
	if rule.Kind == model.KindPrice {
		return validatePriceParams(field, rule.Params)
	}
	return nil
}

// validatePriceParams rejects separators other than '.' and ','. Three
// decimal places need a fixed separator: with detection, "1.500" would read
// back as fifteen hundred.
func validatePriceParams(field string, params model.Params) error {
	sep := params.String("decimal_separator", "")
	switch sep {
	case "", ".", ",":
	default:
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("param \"decimal_separator\": %q is not \".\" or \",\"", sep)}
	}
	if sep == "" && params.Int("decimal_places", 2) == 3 {
		return &ConfigurationError{Field: field, Reason: "decimal_places 3 requires decimal_separator"}
	}
	return nil
}

// Registry is an ordered list of cleaning rules. Several rules may target
// the same field; they run in registration order. A Registry is not safe for
// concurrent mutation; owners guard it or hand out snapshots.
type Registry struct {
	rules []model.CleaningRule
}

// NewRegistry builds a registry from rules, validating each.
func NewRegistry(rules ...model.CleaningRule) (*Registry, error) {
	r := &Registry{}
	for _, rule := range rules {
		if err := r.Add(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRules returns the stock rule set.
func DefaultRules() []model.CleaningRule {
	return []model.CleaningRule{
		{
			FieldName:           string(model.FieldEmail),
			Kind:                model.KindEmail,
			Params:              model.Params{"normalize_case": true},
			ConfidenceThreshold: 0.9,
			Enabled:             true,
		},
		{
			FieldName:           string(model.FieldPhone),
			Kind:                model.KindPhone,
			Params:              model.Params{"remove_formatting": true},
			ConfidenceThreshold: 0.8,
			Enabled:             true,
		},
		{
			FieldName:           string(model.FieldURL),
			Kind:                model.KindURL,
			Params:              model.Params{"normalize_scheme": true, "remove_fragments": false},
			ConfidenceThreshold: 0.9,
			Enabled:             true,
		},
		{
			FieldName:           string(model.FieldTitle),
			Kind:                model.KindText,
			Params:              model.Params{"remove_extra_whitespace": true, "normalize_unicode": true},
			ConfidenceThreshold: 0.7,
			Enabled:             true,
		},
		{
			FieldName:           string(model.FieldDescription),
			Kind:                model.KindText,
			Params:              model.Params{"remove_extra_whitespace": true, "normalize_unicode": true},
			ConfidenceThreshold: 0.7,
			Enabled:             true,
		},
		{
			FieldName:           string(model.FieldPrice),
			Kind:                model.KindPrice,
			Params:              model.Params{"decimal_places": 2},
			ConfidenceThreshold: 0.8,
			Enabled:             true,
		},
	}
}

// NewDefaultRegistry returns a registry holding DefaultRules.
func NewDefaultRegistry() *Registry {
	return &Registry{rules: DefaultRules()}
}

// Add validates and appends a rule.
func (r *Registry) Add(rule model.CleaningRule) error {
	if err := Validate(rule); err != nil {
		return err
	}
	rule = rule.Clone()
	rule.FieldName = strings.TrimSpace(rule.FieldName)
	r.rules = append(r.rules, rule)
	return nil
}

// Replace swaps every rule for the field with rule, keeping the position of
// the first one. With no existing rule it appends.
func (r *Registry) Replace(rule model.CleaningRule) error {
	if err := Validate(rule); err != nil {
		return err
	}
	rule = rule.Clone()
	rule.FieldName = strings.TrimSpace(rule.FieldName)

	out := make([]model.CleaningRule, 0, len(r.rules)+1)
	placed := false
	for _, existing := range r.rules {
		if existing.FieldName != rule.FieldName {
			out = append(out, existing)
			continue
		}
		if !placed {
			out = append(out, rule)
			placed = true
		}
	}
	if !placed {
		out = append(out, rule)
	}
	r.rules = out
	return nil
}

// RulesFor returns the enabled rules for field in registration order.
func (r *Registry) RulesFor(field string) []model.CleaningRule {
	var out []model.CleaningRule
	for _, rule := range r.rules {
		if rule.Enabled && rule.FieldName == field {
			out = append(out, rule)
		}
	}
	return out
}

// Rules returns a copy of every registered rule.
func (r *Registry) Rules() []model.CleaningRule {
	out := make([]model.CleaningRule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.Clone()
	}
	return out
}

// Fields returns the sorted set of fields with at least one rule.
func (r *Registry) Fields() []string {
	seen := make(map[string]struct{}, len(r.rules))
	var out []string
	for _, rule := range r.rules {
		if _, ok := seen[rule.FieldName]; ok {
			continue
		}
		seen[rule.FieldName] = struct{}{}
		out = append(out, rule.FieldName)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	return len(r.rules)
}

// Snapshot returns an independent copy of the registry.
func (r *Registry) Snapshot() *Registry {
	return &Registry{rules: r.Rules()}
}
