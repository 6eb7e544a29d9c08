package model

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// ContentType tags the kind of source a record was extracted from.
type ContentType string

const (
	ContentTypeHTML     ContentType = "html"
	ContentTypeText     ContentType = "text"
	ContentTypeJSON     ContentType = "json"
	ContentTypeXML      ContentType = "xml"
	ContentTypeImage    ContentType = "image"
	ContentTypeDocument ContentType = "document"
)

// ParseContentType maps a free-form tag to a ContentType. Unknown or empty
// tags fall back to html, the scraper's default.
func ParseContentType(s string) ContentType {
	switch ContentType(strings.ToLower(strings.TrimSpace(s))) {
	case ContentTypeText:
		return ContentTypeText
	case ContentTypeJSON:
		return ContentTypeJSON
	case ContentTypeXML:
		return ContentTypeXML
	case ContentTypeImage:
		return ContentTypeImage
	case ContentTypeDocument:
		return ContentTypeDocument
	default:
		return ContentTypeHTML
	}
}

// Record is a single scraped item flowing through the cleaning pipeline.
type Record struct {
	ID              string      `json:"id"`
	JobID           string      `json:"job_id"`
	URL             string      `json:"url"`
	Content         Content     `json:"content"`
	ContentType     ContentType `json:"content_type"`
	ConfidenceScore float64     `json:"confidence_score"`

	// Populated by the cleaner.
	QualityScore     float64  `json:"data_quality_score"`
	Valid            bool     `json:"valid"`
	Corrected        bool     `json:"corrected"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Content = r.Content.Clone()
	if r.ValidationErrors != nil {
		out.ValidationErrors = append([]string(nil), r.ValidationErrors...)
	}
	return out
}

// Field is one of the semantic content keys the cleaner knows about.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldText        Field = "text"
	FieldEmail       Field = "email"
	FieldPhone       Field = "phone"
	FieldURL         Field = "url"
	FieldPrice       Field = "price"
	FieldDate        Field = "date"
)

// KnownFields lists every semantic field in a stable order.
var KnownFields = []Field{
	FieldTitle, FieldDescription, FieldText, FieldEmail,
	FieldPhone, FieldURL, FieldPrice, FieldDate,
}

// LookupField reports whether name is a known semantic field.
func LookupField(name string) (Field, bool) {
	switch f := Field(name); f {
	case FieldTitle, FieldDescription, FieldText, FieldEmail,
		FieldPhone, FieldURL, FieldPrice, FieldDate:
		return f, true
	}
	return "", false
}

// DefaultKind returns the rule kind that normally cleans this field.
func (f Field) DefaultKind() RuleKind {
	switch f {
	case FieldEmail:
		return KindEmail
	case FieldPhone:
		return KindPhone
	case FieldURL:
		return KindURL
	case FieldPrice:
		return KindPrice
	case FieldDate:
		return KindDate
	default:
		return KindText
	}
}

// Content is the extracted field bag of a record. Known semantic fields live
// in Known; anything else lands in Extra. It marshals as one flat object.
type Content struct {
	Known map[Field]any
	Extra map[string]any
}

// NewContent builds a Content from a flat map, routing keys to Known or Extra.
func NewContent(m map[string]any) Content {
	var c Content
	for k, v := range m {
		c.Set(k, v)
	}
	return c
}

// Get returns the value stored under name.
func (c Content) Get(name string) (any, bool) {
	if f, ok := LookupField(name); ok {
		v, ok := c.Known[f]
		return v, ok
	}
	v, ok := c.Extra[name]
	return v, ok
}

// Set stores v under name.
func (c *Content) Set(name string, v any) {
	if f, ok := LookupField(name); ok {
		if c.Known == nil {
			c.Known = make(map[Field]any)
		}
		c.Known[f] = v
		return
	}
	if c.Extra == nil {
		c.Extra = make(map[string]any)
	}
	c.Extra[name] = v
}

// Delete removes name from the bag.
func (c *Content) Delete(name string) {
	if f, ok := LookupField(name); ok {
		delete(c.Known, f)
		return
	}
	delete(c.Extra, name)
}

// Len returns the number of keys in the bag.
func (c Content) Len() int {
	return len(c.Known) + len(c.Extra)
}

// Keys returns every key in sorted order.
func (c Content) Keys() []string {
	keys := make([]string, 0, c.Len())
	for f := range c.Known {
		keys = append(keys, string(f))
	}
	for k := range c.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map flattens the bag into a plain map. Values are shared, not copied.
func (c Content) Map() map[string]any {
	m := make(map[string]any, c.Len())
	for f, v := range c.Known {
		m[string(f)] = v
	}
	for k, v := range c.Extra {
		m[k] = v
	}
	return m
}

// Clone returns a deep copy. Nested maps and slices are copied so the clone
// can be mutated without touching the original.
func (c Content) Clone() Content {
	var out Content
	if c.Known != nil {
		out.Known = make(map[Field]any, len(c.Known))
		for f, v := range c.Known {
			out.Known[f] = cloneValue(v)
		}
	}
	if c.Extra != nil {
		out.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = cloneValue(v)
		}
	}
	return out
}

// MarshalJSON encodes the bag as a single flat object.
func (c Content) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

// UnmarshalJSON decodes a flat object into Known and Extra. Numbers are kept
// as json.Number so integer-looking prices survive the round trip unchanged.
func (c *Content) UnmarshalJSON(data []byte) error {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*c = NewContent(m)
	return nil
}

// IsBlank reports whether v carries no usable value: nil, whitespace-only
// strings, and empty slices or maps.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
