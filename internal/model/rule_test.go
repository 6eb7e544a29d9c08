package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseRuleKind(t *testing.T) {
	tests := []struct {
		in   string
		want RuleKind
	}{
		{"email", KindEmail},
		{" Phone ", KindPhone},
		{"text_cleaning", KindText},
		{"url_validation", KindURL},
		{"price_normalization", KindPrice},
		{"date_normalization", KindDate},
	}
	for _, tt := range tests {
		got, err := ParseRuleKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseRuleKind("regex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown rule kind "regex"`)
}

func TestRuleKind_UnmarshalYAMLAlias(t *testing.T) {
	var r struct {
		Kind RuleKind `yaml:"kind"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("kind: email_normalization\n"), &r))
	assert.Equal(t, KindEmail, r.Kind)
	assert.True(t, r.Kind.Valid())
	assert.False(t, RuleKind("nope").Valid())
}

func TestParams_Coercion(t *testing.T) {
	p := Params{
		"lowercase": "true",
		"max":       "12",
		"bad":       "abc",
		"region":    "US",
		"formats":   []any{"2006-01-02", "01/02/2006"},
	}
	assert.True(t, p.Bool("lowercase", false))
	assert.True(t, p.Bool("missing", true))
	assert.Equal(t, 12, p.Int("max", 0))
	assert.Equal(t, 7, p.Int("bad", 7))
	assert.Equal(t, "US", p.String("region", ""))
	assert.Equal(t, "x", p.String("missing", "x"))
	assert.Equal(t, []string{"2006-01-02", "01/02/2006"}, p.Strings("formats"))
	assert.Nil(t, p.Strings("missing"))
}

func TestCleaningRule_CloneCopiesParams(t *testing.T) {
	r := CleaningRule{FieldName: "title", Kind: KindText, Params: Params{"lowercase": true}}
	c := r.Clone()
	c.Params["lowercase"] = false
	assert.Equal(t, true, r.Params["lowercase"])
	assert.Nil(t, Params(nil).Clone())
}
