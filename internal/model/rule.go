package model

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
)

// RuleKind selects the cleaner a rule dispatches to.
type RuleKind string

const (
	KindText  RuleKind = "text"
	KindEmail RuleKind = "email"
	KindPhone RuleKind = "phone"
	KindURL   RuleKind = "url"
	KindPrice RuleKind = "price"
	KindDate  RuleKind = "date"
)

// RuleKinds lists every supported kind.
var RuleKinds = []RuleKind{KindText, KindEmail, KindPhone, KindURL, KindPrice, KindDate}

// ruleKindAliases maps legacy rule type names onto kinds.
var ruleKindAliases = map[string]RuleKind{
	"text_cleaning":       KindText,
	"text_normalization":  KindText,
	"email_validation":    KindEmail,
	"email_normalization": KindEmail,
	"phone_normalization": KindPhone,
	"url_validation":      KindURL,
	"url_normalization":   KindURL,
	"price_normalization": KindPrice,
	"date_normalization":  KindDate,
}

// ParseRuleKind resolves a canonical kind name or legacy alias.
func ParseRuleKind(s string) (RuleKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, k := range RuleKinds {
		if string(k) == name {
			return k, nil
		}
	}
	if k, ok := ruleKindAliases[name]; ok {
		return k, nil
	}
	return "", eris.Errorf("model: unknown rule kind %q", s)
}

// Valid reports whether k is one of the supported kinds.
func (k RuleKind) Valid() bool {
	for _, known := range RuleKinds {
		if k == known {
			return true
		}
	}
	return false
}

// UnmarshalText lets rule files and env config use aliases.
func (k *RuleKind) UnmarshalText(b []byte) error {
	parsed, err := ParseRuleKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Params holds the behaviour switches of a rule.
type Params map[string]any

// Bool returns the named switch, or def when absent. Strings such as "yes" or
// "0" are coerced; an uncoercible value yields def.
func (p Params) Bool(name string, def bool) bool {
	v, ok := p[name]
	if !ok || v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// Int returns the named integer parameter, or def when absent or invalid.
func (p Params) Int(name string, def int) int {
	v, ok := p[name]
	if !ok || v == nil {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

// String returns the named string parameter, or def when absent.
func (p Params) String(name, def string) string {
	v, ok := p[name]
	if !ok || v == nil {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

// Strings returns the named list parameter.
func (p Params) Strings(name string) []string {
	v, ok := p[name]
	if !ok || v == nil {
		return nil
	}
	out, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil
	}
	return out
}

// Clone copies the parameter map.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// CleaningRule binds a content field to a cleaner kind and an acceptance
// threshold. A cleaned value whose confidence falls below the threshold is
// discarded and the original kept.
type CleaningRule struct {
	FieldName           string   `json:"field_name" yaml:"field_name"`
	Kind                RuleKind `json:"kind" yaml:"kind"`
	Params              Params   `json:"params,omitempty" yaml:"params,omitempty"`
	ConfidenceThreshold float64  `json:"confidence_threshold" yaml:"confidence_threshold"`
	Enabled             bool     `json:"enabled" yaml:"enabled"`
}

// Clone returns a copy that shares nothing with r.
func (r CleaningRule) Clone() CleaningRule {
	r.Params = r.Params.Clone()
	return r
}
