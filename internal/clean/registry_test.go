package clean

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

func emailRule(threshold float64) model.CleaningRule {
	return model.CleaningRule{
		FieldName:           "email",
		Kind:                model.KindEmail,
		Params:              model.Params{"normalize_case": true},
		ConfidenceThreshold: threshold,
		Enabled:             true,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rule    model.CleaningRule
		wantErr bool
	}{
		{"valid", emailRule(0.9), false},
		{"threshold above one", emailRule(1.5), true},
		{"negative threshold", emailRule(-0.1), true},
		{"nan threshold", emailRule(math.NaN()), true},
		{"empty field", model.CleaningRule{Kind: model.KindText, ConfidenceThreshold: 0.5}, true},
		{"unknown kind", model.CleaningRule{FieldName: "x", Kind: "soundex", ConfidenceThreshold: 0.5}, true},
		{"unknown param", model.CleaningRule{FieldName: "x", Kind: model.KindText, Params: model.Params{"shout": true}}, true},
		{"bad bool param", model.CleaningRule{FieldName: "x", Kind: model.KindText, Params: model.Params{"strip_html": "maybe"}}, true},
		{"decimal places out of range", model.CleaningRule{FieldName: "p", Kind: model.KindPrice, Params: model.Params{"decimal_places": 42}}, true},
		{"string bool ok", model.CleaningRule{FieldName: "x", Kind: model.KindText, Params: model.Params{"strip_html": "true"}}, false},
		{"decimal separator comma", model.CleaningRule{FieldName: "p", Kind: model.KindPrice, Params: model.Params{"decimal_separator": ","}}, false},
		{"decimal separator unknown", model.CleaningRule{FieldName: "p", Kind: model.KindPrice, Params: model.Params{"decimal_separator": ";"}}, true},
		{"three places need a separator", model.CleaningRule{FieldName: "p", Kind: model.KindPrice, Params: model.Params{"decimal_places": 3}}, true},
		{"three places with separator", model.CleaningRule{FieldName: "p", Kind: model.KindPrice, Params: model.Params{"decimal_places": 3, "decimal_separator": "."}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tt.rule)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
			var cfgErr *ConfigurationError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestRegistry_AddRejectsBadThreshold(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry()
	before := r.Len()

	err := r.Add(emailRule(1.5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, before, r.Len())
}

func TestRegistry_RulesForKeepsOrder(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(
		model.CleaningRule{FieldName: "title", Kind: model.KindText, ConfidenceThreshold: 0.5, Enabled: true},
		model.CleaningRule{FieldName: "email", Kind: model.KindEmail, ConfidenceThreshold: 0.9, Enabled: true},
		model.CleaningRule{FieldName: "title", Kind: model.KindText, Params: model.Params{"strip_html": true}, ConfidenceThreshold: 0.6, Enabled: true},
		model.CleaningRule{FieldName: "title", Kind: model.KindText, ConfidenceThreshold: 0.1, Enabled: false},
	)
	require.NoError(t, err)

	rules := r.RulesFor("title")
	require.Len(t, rules, 2)
	assert.InDelta(t, 0.5, rules[0].ConfidenceThreshold, 1e-9)
	assert.InDelta(t, 0.6, rules[1].ConfidenceThreshold, 1e-9)
	assert.Empty(t, r.RulesFor("phone"))
	assert.Equal(t, []string{"email", "title"}, r.Fields())
}

func TestRegistry_Replace(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(
		model.CleaningRule{FieldName: "title", Kind: model.KindText, ConfidenceThreshold: 0.5, Enabled: true},
		model.CleaningRule{FieldName: "email", Kind: model.KindEmail, ConfidenceThreshold: 0.9, Enabled: true},
		model.CleaningRule{FieldName: "title", Kind: model.KindText, ConfidenceThreshold: 0.6, Enabled: true},
	)
	require.NoError(t, err)

	require.NoError(t, r.Replace(model.CleaningRule{FieldName: "title", Kind: model.KindText, ConfidenceThreshold: 0.2, Enabled: true}))

	rules := r.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "title", rules[0].FieldName)
	assert.InDelta(t, 0.2, rules[0].ConfidenceThreshold, 1e-9)
	assert.Equal(t, "email", rules[1].FieldName)

	require.NoError(t, r.Replace(model.CleaningRule{FieldName: "date", Kind: model.KindDate, ConfidenceThreshold: 1, Enabled: true}))
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, "date", r.Rules()[2].FieldName)

	assert.ErrorIs(t, r.Replace(model.CleaningRule{FieldName: "date", Kind: model.KindDate, ConfidenceThreshold: 2}), ErrConfiguration)
}

func TestRegistry_SnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry()
	snap := r.Snapshot()

	require.NoError(t, r.Add(model.CleaningRule{FieldName: "date", Kind: model.KindDate, ConfidenceThreshold: 1, Enabled: true}))
	r.rules[0].Params["normalize_case"] = false

	assert.Equal(t, len(DefaultRules()), snap.Len())
	assert.Equal(t, true, snap.Rules()[0].Params["normalize_case"])
}

func TestDefaultRules(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry()
	assert.Equal(t, []string{"description", "email", "phone", "price", "title", "url"}, r.Fields())
	for _, rule := range r.Rules() {
		assert.NoError(t, Validate(rule), rule.FieldName)
	}
	assert.InDelta(t, 0.9, r.RulesFor("email")[0].ConfidenceThreshold, 1e-9)
	assert.InDelta(t, 0.8, r.RulesFor("phone")[0].ConfidenceThreshold, 1e-9)
	assert.InDelta(t, 0.7, r.RulesFor("title")[0].ConfidenceThreshold, 1e-9)
}

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		res, err := Apply(emailRule(0.9), "  CONTACT@EXAMPLE.COM  ")
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		assert.Equal(t, "contact@example.com", res.Value)
		assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	})

	t.Run("rejected keeps original", func(t *testing.T) {
		t.Parallel()
		res, err := Apply(emailRule(0.9), " Not An Email ")
		require.NoError(t, err)
		assert.False(t, res.Accepted)
		assert.Equal(t, " Not An Email ", res.Value)
		assert.InDelta(t, 0.3, res.Confidence, 1e-9)
	})

	t.Run("unknown kind fails", func(t *testing.T) {
		t.Parallel()
		res, err := Apply(model.CleaningRule{FieldName: "x", Kind: "nope"}, "v")
		var cf *CleanerFailure
		require.ErrorAs(t, err, &cf)
		assert.Equal(t, "v", res.Value)
		assert.Zero(t, res.Confidence)
	})
}

func swapCleaner(t *testing.T, kind model.RuleKind, fn CleanFunc) {
	t.Helper()
	prev := cleaners[kind]
	cleaners[kind] = fn
	t.Cleanup(func() { cleaners[kind] = prev })
}

func TestApply_PanickingCleaner(t *testing.T) {
	swapCleaner(t, model.KindText, func(any, model.Params) (any, float64) {
		panic("boom")
	})

	rule := model.CleaningRule{FieldName: "title", Kind: model.KindText, ConfidenceThreshold: 0.5, Enabled: true}
	res, err := Apply(rule, "  Widget  ")

	var cf *CleanerFailure
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, "title", cf.Field)
	assert.Equal(t, model.KindText, cf.Kind)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "  Widget  ", res.Value)
	assert.Zero(t, res.Confidence)
	assert.False(t, res.Accepted)
}

func TestApply_NaNConfidence(t *testing.T) {
	swapCleaner(t, model.KindText, func(v any, _ model.Params) (any, float64) {
		return "changed", math.NaN()
	})

	rule := model.CleaningRule{FieldName: "title", Kind: model.KindText, Enabled: true}
	res, err := Apply(rule, "orig")

	var cf *CleanerFailure
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, "orig", res.Value)
	assert.Zero(t, res.Confidence)
}

func TestApply_ClampsConfidence(t *testing.T) {
	swapCleaner(t, model.KindText, func(v any, _ model.Params) (any, float64) {
		return v, 7
	})

	res, err := Apply(model.CleaningRule{FieldName: "title", Kind: model.KindText, ConfidenceThreshold: 1, Enabled: true}, "x")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.True(t, res.Accepted)
}

func TestParseRules(t *testing.T) {
	t.Parallel()

	data := []byte(`
rules:
  - field_name: email
    kind: email_validation
    confidence_threshold: 0.95
    params:
      normalize_case: true
  - field_name: body
    kind: text_cleaning
    enabled: false
  - field_name: published
    kind: date
    params:
      output_layout: "2006-01-02"
      input_layouts: ["02-01-2006"]
`)

	rules, err := ParseRules(data)
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, model.KindEmail, rules[0].Kind)
	assert.InDelta(t, 0.95, rules[0].ConfidenceThreshold, 1e-9)
	assert.True(t, rules[0].Enabled)

	assert.Equal(t, model.KindText, rules[1].Kind)
	assert.False(t, rules[1].Enabled)
	assert.InDelta(t, 0.8, rules[1].ConfidenceThreshold, 1e-9)

	assert.Equal(t, []string{"02-01-2006"}, rules[2].Params.Strings("input_layouts"))
}

func TestParseRules_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"bad yaml":       "rules: [",
		"unknown kind":   "rules:\n  - field_name: x\n    kind: soundex\n",
		"bad threshold":  "rules:\n  - field_name: x\n    kind: text\n    confidence_threshold: 1.5\n",
		"missing field":  "rules:\n  - kind: text\n",
		"unknown params": "rules:\n  - field_name: x\n    kind: phone\n    params: {loud: true}\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseRules([]byte(data))
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestLoadRulesFile_RoundTrip(t *testing.T) {
	t.Parallel()

	data, err := MarshalRules(DefaultRules())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)
	require.Len(t, rules, len(DefaultRules()))
	for i, want := range DefaultRules() {
		assert.Equal(t, want.FieldName, rules[i].FieldName)
		assert.Equal(t, want.Kind, rules[i].Kind)
		assert.InDelta(t, want.ConfidenceThreshold, rules[i].ConfidenceThreshold, 1e-9)
	}

	_, err = LoadRulesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
