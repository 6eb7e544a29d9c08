package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentType(t *testing.T) {
	assert.Equal(t, ContentTypeJSON, ParseContentType(" JSON "))
	assert.Equal(t, ContentTypeDocument, ParseContentType("document"))
	assert.Equal(t, ContentTypeHTML, ParseContentType(""))
	assert.Equal(t, ContentTypeHTML, ParseContentType("pdf"))
}

func TestLookupField(t *testing.T) {
	for _, f := range KnownFields {
		got, ok := LookupField(string(f))
		assert.True(t, ok)
		assert.Equal(t, f, got)
	}
	_, ok := LookupField("sku")
	assert.False(t, ok)
}

func TestField_DefaultKind(t *testing.T) {
	assert.Equal(t, KindEmail, FieldEmail.DefaultKind())
	assert.Equal(t, KindPrice, FieldPrice.DefaultKind())
	assert.Equal(t, KindText, FieldTitle.DefaultKind())
	assert.Equal(t, KindText, FieldDescription.DefaultKind())
}

func TestContent_RoutesKnownAndExtra(t *testing.T) {
	c := NewContent(map[string]any{"title": "Widget", "sku": "A1"})
	assert.Equal(t, "Widget", c.Known[FieldTitle])
	assert.Equal(t, "A1", c.Extra["sku"])
	assert.Equal(t, []string{"sku", "title"}, c.Keys())
	assert.Equal(t, 2, c.Len())

	c.Delete("title")
	_, ok := c.Get("title")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestContent_CloneIsDeep(t *testing.T) {
	c := NewContent(map[string]any{
		"tags":  []any{"a", "b"},
		"specs": map[string]any{"color": "blue"},
	})
	clone := c.Clone()
	clone.Extra["tags"].([]any)[0] = "z"
	clone.Extra["specs"].(map[string]any)["color"] = "red"

	assert.Equal(t, "a", c.Extra["tags"].([]any)[0])
	assert.Equal(t, "blue", c.Extra["specs"].(map[string]any)["color"])
}

func TestContent_JSONRoundTripKeepsNumbers(t *testing.T) {
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`{"price": 10, "title": "x", "qty": 3}`), &c))
	assert.Equal(t, json.Number("10"), c.Known[FieldPrice])
	assert.Equal(t, json.Number("3"), c.Extra["qty"])

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"price": 10, "title": "x", "qty": 3}`, string(out))
}

func TestRecord_CloneIsolatesErrors(t *testing.T) {
	r := Record{ID: "1", ValidationErrors: []string{"a"}, Content: NewContent(map[string]any{"title": "t"})}
	c := r.Clone()
	c.ValidationErrors[0] = "b"
	c.Content.Set("title", "changed")

	assert.Equal(t, "a", r.ValidationErrors[0])
	v, _ := r.Content.Get("title")
	assert.Equal(t, "t", v)
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(nil))
	assert.True(t, IsBlank("  "))
	assert.True(t, IsBlank([]any{}))
	assert.True(t, IsBlank(map[string]any{}))
	assert.False(t, IsBlank("x"))
	assert.False(t, IsBlank(0))
	assert.False(t, IsBlank(false))
}
