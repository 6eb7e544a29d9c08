// Package clean holds the field cleaners and the rule registry that binds
// content fields to them.
package clean

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/spf13/cast"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

// CleanFunc normalises one value. It returns the cleaned value and a
// confidence in [0,1]. Cleaners never fail: unusable input comes back
// unchanged with confidence 0.
type CleanFunc func(value any, params model.Params) (any, float64)

var cleaners = map[model.RuleKind]CleanFunc{
	model.KindEmail: Email,
	model.KindPhone: Phone,
	model.KindURL:   URL,
	model.KindText:  Text,
	model.KindPrice: Price,
	model.KindDate:  Date,
}

// Lookup returns the cleaner for kind.
func Lookup(kind model.RuleKind) (CleanFunc, bool) {
	fn, ok := cleaners[kind]
	return fn, ok
}

var (
	emailPattern      = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	numberPattern     = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)
	isoCodePattern    = regexp.MustCompile(`^[A-Z]{3}|[A-Z]{3}$`)
	schemePattern     = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
	portPattern       = regexp.MustCompile(`^\d+(/|\?|#|$)`)
	strictPolicy      = bluemonday.StrictPolicy()
)

// asString coerces scalar input to a trimmed string. ok is false for blank
// or uncoercible values.
func asString(value any) (string, bool) {
	if model.IsBlank(value) {
		return "", false
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func trimPrefixFold(s, prefix string) string {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return strings.TrimSpace(s[len(prefix):])
	}
	return s
}

// Email trims and lowercases an address. Params: normalize_case (true).
func Email(value any, params model.Params) (any, float64) {
	s, ok := asString(value)
	if !ok {
		return value, 0
	}
	s = trimPrefixFold(s, "mailto:")
	if s == "" {
		return value, 0
	}
	if params.Bool("normalize_case", true) {
		s = strings.ToLower(s)
	}
	if emailPattern.MatchString(s) {
		return s, 1.0
	}
	return s, 0.3
}

// Phone strips formatting from a phone number, keeping a leading +.
// Params: remove_formatting (true).
func Phone(value any, params model.Params) (any, float64) {
	s, ok := asString(value)
	if !ok {
		return value, 0
	}
	s = trimPrefixFold(s, "tel:")

	if params.Bool("remove_formatting", true) {
		var b strings.Builder
		for _, r := range s {
			switch {
			case r >= '0' && r <= '9':
				b.WriteRune(r)
			case r == '+' && b.Len() == 0:
				b.WriteRune(r)
			}
		}
		s = b.String()
	}
	if s == "" || s == "+" {
		return value, 0
	}

	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits >= 7 && digits <= 15 {
		return s, 1.0
	}
	return s, 0.4
}

// URL adds a scheme to protocol-relative and bare-domain URLs.
// Params: normalize_scheme (true), remove_fragments (false).
func URL(value any, params model.Params) (any, float64) {
	s, ok := asString(value)
	if !ok {
		return value, 0
	}

	if params.Bool("normalize_scheme", true) && !strings.Contains(s, "://") && !hasScheme(s) {
		switch {
		case strings.HasPrefix(s, "//"):
			s = "https:" + s
		case strings.Contains(s, ".") && !strings.ContainsAny(s, " \t"):
			s = "https://" + s
		}
	}
	if params.Bool("remove_fragments", false) {
		if i := strings.IndexByte(s, '#'); i >= 0 {
			s = s[:i]
		}
	}

	u, err := url.Parse(s)
	if err == nil && u.IsAbs() && u.Host != "" {
		return s, 1.0
	}
	return s, 0.2
}

// hasScheme reports whether s starts with a URI scheme such as mailto: or
// tel:. A host followed by a port ("example.com:8080") is not a scheme.
func hasScheme(s string) bool {
	m := schemePattern.FindString(s)
	if m == "" {
		return false
	}
	return !portPattern.MatchString(s[len(m):])
}

// Text normalises free text. Params: strip_html (false),
// normalize_unicode (true), remove_extra_whitespace (true).
func Text(value any, params model.Params) (any, float64) {
	if model.IsBlank(value) {
		return value, 0
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return value, 0
	}

	if params.Bool("strip_html", false) {
		s = html.UnescapeString(strictPolicy.Sanitize(s))
	}
	if params.Bool("normalize_unicode", true) {
		s = norm.NFKC.String(s)
	}
	if params.Bool("remove_extra_whitespace", true) {
		s = strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
	}
	if s == "" {
		return value, 0
	}
	return s, 1.0
}

// Price parses a price into a fixed-precision decimal string.
// Params: decimal_places (2), currency_symbol (""), decimal_separator
// ("" detects it, "." or "," fixes it).
func Price(value any, params model.Params) (any, float64) {
	s, ok := asString(value)
	if !ok {
		return value, 0
	}
	n, ok := parsePrice(s, params.String("decimal_separator", ""))
	if !ok {
		return value, 0
	}
	places := params.Int("decimal_places", 2)
	if places < 0 {
		places = 0
	}
	return params.String("currency_symbol", "") + strconv.FormatFloat(n, 'f', places, 64), 1.0
}

func parsePrice(s, decimalSep string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) || r == '\'' {
			continue
		}
		b.WriteRune(r)
	}
	s = isoCodePattern.ReplaceAllString(b.String(), "")
	switch decimalSep {
	case ".":
		s = strings.ReplaceAll(s, ",", "")
	case ",":
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = normalizeSeparators(s)
	}
	if !numberPattern.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// normalizeSeparators rewrites thousands and decimal separators so that the
// result uses a single '.' as the decimal point. When both appear, the last
// one is the decimal point. A lone separator is a thousands separator only
// when it is followed by exactly three digits and preceded by a non-zero
// group of one to three digits; '.' and ',' follow the same rule.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.299,99
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		return normalizeLoneSeparator(s, ",")
	case lastDot >= 0:
		return normalizeLoneSeparator(s, ".")
	}
	return s
}

func normalizeLoneSeparator(s, sep string) string {
	if strings.Count(s, sep) > 1 {
		return strings.ReplaceAll(s, sep, "")
	}
	i := strings.Index(s, sep)
	if thousandsGroup(s[:i], s[i+1:]) {
		return s[:i] + s[i+1:]
	}
	return s[:i] + "." + s[i+1:]
}

func thousandsGroup(intPart, frac string) bool {
	intPart = strings.TrimLeft(intPart, "+-")
	if len(frac) != 3 || len(intPart) < 1 || len(intPart) > 3 || intPart[0] == '0' {
		return false
	}
	return allDigits(intPart) && allDigits(frac)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02 Jan 2006",
	time.RFC1123Z,
	time.RFC1123,
}

// Date reformats a date into a canonical layout.
// Params: output_layout ("2006-01-02"), input_layouts, day_first (false).
func Date(value any, params model.Params) (any, float64) {
	out := params.String("output_layout", "2006-01-02")
	if t, ok := value.(time.Time); ok {
		if t.IsZero() {
			return value, 0
		}
		return t.Format(out), 1.0
	}
	s, ok := asString(value)
	if !ok {
		return value, 0
	}

	layouts := append([]string{out}, params.Strings("input_layouts")...)
	if params.Bool("day_first", false) {
		layouts = append(layouts, "02/01/2006", "2/1/2006")
	}
	layouts = append(layouts, dateLayouts...)

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(out), 1.0
		}
	}
	return value, 0
}
