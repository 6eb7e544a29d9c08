// Package dedupe finds near-duplicate records within a batch.
package dedupe

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"github.com/spf13/cast"
	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

// DefaultThreshold is the similarity a pair must exceed to be reported.
const DefaultThreshold = 0.85

// Group weights for the combined similarity.
const (
	textWeight    = 0.5
	contactWeight = 0.35
	otherWeight   = 0.15
)

var (
	defaultTextFields    = []string{string(model.FieldTitle), string(model.FieldDescription), string(model.FieldText)}
	defaultContactFields = []string{string(model.FieldEmail), string(model.FieldPhone), string(model.FieldURL)}
)

// Detector compares every pair of records in a batch.
type Detector struct {
	Threshold     float64
	TextFields    []string
	ContactFields []string
}

// NewDetector returns a Detector with the default field groups. A
// non-positive threshold selects DefaultThreshold.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{
		Threshold:     threshold,
		TextFields:    append([]string(nil), defaultTextFields...),
		ContactFields: append([]string(nil), defaultContactFields...),
	}
}

// Detect returns every unordered pair whose similarity exceeds the
// threshold. IDA sorts before IDB and the result is ordered by (IDA, IDB),
// so the output does not depend on the order of records in the batch beyond
// tie-breaking between equal IDs.
func (d *Detector) Detect(records []model.Record) []model.DuplicatePair {
	var pairs []model.DuplicatePair
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			sim := d.Similarity(records[i].Content, records[j].Content)
			if sim <= d.Threshold {
				continue
			}
			a, b := records[i].ID, records[j].ID
			if b < a {
				a, b = b, a
			}
			pairs = append(pairs, model.DuplicatePair{IDA: a, IDB: b, Similarity: sim})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].IDA != pairs[j].IDA {
			return pairs[i].IDA < pairs[j].IDA
		}
		return pairs[i].IDB < pairs[j].IDB
	})
	return pairs
}

// Similarity combines text, contact and remaining-field agreement into a
// score in [0,1], rounded to four decimals. Contact and remaining-field
// groups with no field present in both records are left out and the weights
// renormalised. The text group always keeps its weight: with no comparable
// text it scores 0, so contact and other fields alone reach at most 0.5.
func (d *Detector) Similarity(a, b model.Content) float64 {
	var scores, weights []float64

	grouped := make(map[string]struct{}, len(d.TextFields)+len(d.ContactFields))
	for _, f := range d.TextFields {
		grouped[f] = struct{}{}
	}
	for _, f := range d.ContactFields {
		grouped[f] = struct{}{}
	}

	text, textOK := groupScore(a, b, d.TextFields, textSimilarity)
	if s, ok := groupScore(a, b, d.ContactFields, contactEqual); ok {
		scores = append(scores, s)
		weights = append(weights, contactWeight)
	}

	var others []string
	for _, k := range a.Keys() {
		if _, ok := grouped[k]; !ok {
			others = append(others, k)
		}
	}
	if s, ok := groupScore(a, b, others, otherEqual); ok {
		scores = append(scores, s)
		weights = append(weights, otherWeight)
	}

	if !textOK && len(scores) == 0 {
		return 0
	}
	scores = append(scores, text)
	weights = append(weights, textWeight)
	return round4(stat.Mean(scores, weights))
}

type fieldScorer func(field string, a, b any) float64

// groupScore averages scorer over fields present and non-blank in both.
func groupScore(a, b model.Content, fields []string, scorer fieldScorer) (float64, bool) {
	var total float64
	n := 0
	for _, f := range fields {
		va, okA := a.Get(f)
		vb, okB := b.Get(f)
		if !okA || !okB || model.IsBlank(va) || model.IsBlank(vb) {
			continue
		}
		total += scorer(f, va, vb)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return total / float64(n), true
}

func textSimilarity(_ string, a, b any) float64 {
	na, nb := normalizeText(a), normalizeText(b)
	if na == nb {
		return 1
	}
	lev := levenshtein.Similarity(na, nb, nil)
	return math.Max(lev, jaccard(strings.Fields(na), strings.Fields(nb)))
}

func contactEqual(field string, a, b any) float64 {
	if normalizeContact(field, a) == normalizeContact(field, b) {
		return 1
	}
	return 0
}

func otherEqual(_ string, a, b any) float64 {
	if normalizeText(a) == normalizeText(b) {
		return 1
	}
	return 0
}

// normalizeText folds case, unicode width and punctuation, and collapses
// whitespace.
func normalizeText(v any) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		s = fmt.Sprintf("%v", v)
	}
	s = strings.ToLower(norm.NFKC.String(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func normalizeContact(field string, v any) string {
	s := strings.ToLower(strings.TrimSpace(cast.ToString(v)))
	switch model.Field(field) {
	case model.FieldPhone:
		return strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, s)
	case model.FieldURL:
		for _, prefix := range []string{"https://", "http://", "//"} {
			s = strings.TrimPrefix(s, prefix)
		}
		s = strings.TrimPrefix(s, "www.")
		return strings.TrimRight(s, "/")
	case model.FieldEmail:
		return strings.TrimPrefix(s, "mailto:")
	}
	return s
}

// jaccard is the token-set overlap |A∩B| / |A∪B|.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]uint8, len(a)+len(b))
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	inter := 0
	for _, m := range set {
		if m == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Redundant counts the records that duplicate an earlier member of their
// cluster: for each connected group of paired IDs, every member but one.
func Redundant(pairs []model.DuplicatePair) int {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		p, ok := parent[x]
		if !ok {
			parent[x] = x
			return x
		}
		if p == x {
			return x
		}
		root := find(p)
		parent[x] = root
		return root
	}

	for _, p := range pairs {
		ra, rb := find(p.IDA), find(p.IDB)
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	roots := make(map[string]struct{})
	for id := range parent {
		roots[find(id)] = struct{}{}
	}
	return len(parent) - len(roots)
}
