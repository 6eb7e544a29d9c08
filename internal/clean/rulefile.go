package clean

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	FieldName           string       `yaml:"field_name"`
	Kind                string       `yaml:"kind"`
	Params              model.Params `yaml:"params"`
	ConfidenceThreshold *float64     `yaml:"confidence_threshold"`
	Enabled             *bool        `yaml:"enabled"`
}

// ParseRules decodes a YAML rule list. Kinds may use legacy aliases,
// enabled defaults to true and a missing threshold defaults to 0.8. Every
// rule is validated; the first bad one fails the whole file.
func ParseRules(data []byte) ([]model.CleaningRule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("parse rule file: %v", err)}
	}

	rules := make([]model.CleaningRule, 0, len(f.Rules))
	for i, e := range f.Rules {
		kind, err := model.ParseRuleKind(e.Kind)
		if err != nil {
			return nil, &ConfigurationError{Field: e.FieldName, Reason: fmt.Sprintf("rule %d: %v", i, err)}
		}
		rule := model.CleaningRule{
			FieldName:           e.FieldName,
			Kind:                kind,
			Params:              e.Params,
			ConfidenceThreshold: 0.8,
			Enabled:             true,
		}
		if e.ConfidenceThreshold != nil {
			rule.ConfidenceThreshold = *e.ConfidenceThreshold
		}
		if e.Enabled != nil {
			rule.Enabled = *e.Enabled
		}
		if err := Validate(rule); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// LoadRulesFile reads and parses a YAML rule file.
func LoadRulesFile(path string) ([]model.CleaningRule, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from CLI flag or config
	if err != nil {
		return nil, eris.Wrapf(err, "clean: read rule file %s", path)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, eris.Wrapf(err, "clean: load rule file %s", path)
	}
	return rules, nil
}

// MarshalRules encodes rules in the rule file format.
func MarshalRules(rules []model.CleaningRule) ([]byte, error) {
	f := ruleFile{Rules: make([]ruleEntry, len(rules))}
	for i, r := range rules {
		threshold := r.ConfidenceThreshold
		enabled := r.Enabled
		f.Rules[i] = ruleEntry{
			FieldName:           r.FieldName,
			Kind:                string(r.Kind),
			Params:              r.Params,
			ConfidenceThreshold: &threshold,
			Enabled:             &enabled,
		}
	}
	out, err := yaml.Marshal(f)
	if err != nil {
		return nil, eris.Wrap(err, "clean: marshal rules")
	}
	return out, nil
}
