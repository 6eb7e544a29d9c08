// Package export writes cleaned records as JSON, JSON Lines, CSV or XLSX.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
)

// ParseFormat accepts a format name or a file name with a known extension.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if ext := filepath.Ext(name); ext != "" {
		name = ext[1:]
	}
	switch name {
	case "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	}
	return "", eris.Errorf("export: unsupported format %q", s)
}

// attributeColumns lead every tabular export, before the content columns.
var attributeColumns = []string{
	"id", "job_id", "url", "content_type", "confidence_score",
	"data_quality_score", "valid", "corrected", "validation_errors",
}

// document is the JSON export envelope.
type document struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Count       int            `json:"count"`
	Records     []model.Record `json:"records"`
}

// Write encodes records to w in the given format.
func Write(w io.Writer, format Format, records []model.Record) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, records, time.Now().UTC())
	case FormatJSONL:
		return writeJSONL(w, records)
	case FormatCSV:
		return writeCSV(w, records)
	case FormatXLSX:
		return writeXLSX(w, records)
	}
	return eris.Errorf("export: unsupported format %q", format)
}

// WriteFile writes records to path, picking the format from its extension.
func WriteFile(path string, records []model.Record) error {
	format, err := ParseFormat(filepath.Base(path))
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := Write(f, format, records); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

func writeJSON(w io.Writer, records []model.Record, now time.Time) error {
	if records == nil {
		records = []model.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	err := enc.Encode(document{GeneratedAt: now, Count: len(records), Records: records})
	return eris.Wrap(err, "export: encode json")
}

func writeJSONL(w io.Writer, records []model.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return eris.Wrapf(err, "export: encode record %s", r.ID)
		}
	}
	return nil
}

func writeCSV(w io.Writer, records []model.Record) error {
	header, rows, err := table(records)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// ContentColumns returns the sorted union of content keys across records.
func ContentColumns(records []model.Record) []string {
	seen := map[string]bool{}
	for _, r := range records {
		for _, k := range r.Content.Keys() {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// table flattens records into a header and string rows. Content columns
// that clash with an attribute column are prefixed with "content.".
func table(records []model.Record) ([]string, [][]string, error) {
	contentCols := ContentColumns(records)
	header := append([]string(nil), attributeColumns...)
	attr := make(map[string]bool, len(attributeColumns))
	for _, c := range attributeColumns {
		attr[c] = true
	}
	for _, c := range contentCols {
		if attr[c] {
			header = append(header, "content."+c)
		} else {
			header = append(header, c)
		}
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := []string{
			r.ID,
			r.JobID,
			r.URL,
			string(r.ContentType),
			formatFloat(r.ConfidenceScore),
			formatFloat(r.QualityScore),
			strconv.FormatBool(r.Valid),
			strconv.FormatBool(r.Corrected),
			strings.Join(r.ValidationErrors, "; "),
		}
		for _, c := range contentCols {
			v, ok := r.Content.Get(c)
			if !ok {
				row = append(row, "")
				continue
			}
			s, err := cellString(v)
			if err != nil {
				return nil, nil, eris.Wrapf(err, "export: record %s field %s", r.ID, c)
			}
			row = append(row, s)
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// cellString renders scalars directly and nested values as JSON.
func cellString(v any) (string, error) {
	switch v.(type) {
	case map[string]any, []any, []string:
		b, err := json.Marshal(v)
		return string(b), err
	}
	return cast.ToStringE(v)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
