package fetcher

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cast"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

// Record attribute columns. Every other column or key is content.
const (
	colID         = "id"
	colJobID      = "job_id"
	colURL        = "url"
	colType       = "content_type"
	colConfidence = "confidence_score"
	colContent    = "content"
)

// Keys written by the cleaner. They are dropped on ingest so a cleaned file
// can be fed back in.
var outputKeys = map[string]bool{
	"data_quality_score": true,
	"valid":              true,
	"corrected":          true,
	"validation_errors":  true,
}

// RecordFromMap builds a record from a decoded JSON object. A nested
// "content" object is merged with any other non-attribute keys.
func RecordFromMap(obj map[string]any) (model.Record, error) {
	var rec model.Record
	flat := make(map[string]any, len(obj))
	hasConfidence := false

	for k, v := range obj {
		key := strings.TrimSpace(k)
		switch {
		case key == colID:
			rec.ID = cast.ToString(v)
		case key == colJobID:
			rec.JobID = cast.ToString(v)
		case key == colURL:
			rec.URL = cast.ToString(v)
		case key == colType:
			rec.ContentType = model.ParseContentType(cast.ToString(v))
		case key == colConfidence:
			if v == nil {
				continue
			}
			f, err := cast.ToFloat64E(v)
			if err != nil {
				return rec, eris.Wrapf(err, "fetcher: parse %s", colConfidence)
			}
			rec.ConfidenceScore = f
			hasConfidence = true
		case key == colContent:
			nested, ok := v.(map[string]any)
			if !ok {
				flat[key] = v
				continue
			}
			for nk, nv := range nested {
				flat[nk] = nv
			}
		case outputKeys[key]:
		default:
			flat[key] = v
		}
	}

	rec.Content = model.NewContent(flat)
	applyDefaults(&rec, hasConfidence)
	return rec, nil
}

// RecordFromRow builds a record from a tabular row keyed by header. Empty
// cells are skipped. Cells holding a JSON object or array are decoded.
func RecordFromRow(header, row []string) (model.Record, error) {
	obj := make(map[string]any, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" || i >= len(row) {
			continue
		}
		cell := row[i]
		if strings.TrimSpace(cell) == "" {
			continue
		}
		obj[name] = decodeCell(cell)
	}
	return RecordFromMap(obj)
}

func decodeCell(cell string) any {
	trimmed := strings.TrimSpace(cell)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return cell
}

func applyDefaults(rec *model.Record, hasConfidence bool) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if !hasConfidence {
		rec.ConfidenceScore = 1.0
	}
	if rec.ContentType == "" {
		rec.ContentType = model.ContentTypeHTML
	}
}
