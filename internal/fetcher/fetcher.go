// Package fetcher loads scraped records from local files or HTTP sources in
// JSON, JSON Lines, CSV and XLSX form.
package fetcher

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

// Fetcher downloads remote record files.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Format is a record file encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
)

// DetectFormat picks a Format from a file name or URL by extension.
func DetectFormat(name string) (Format, error) {
	if isURL(name) {
		name = strings.SplitN(strings.SplitN(name, "?", 2)[0], "#", 2)[0]
		name = path.Base(name)
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", eris.Errorf("fetcher: unsupported record file %q", name)
}

// Loader reads record files. Remote sources go through Fetcher.
type Loader struct {
	Fetcher Fetcher
}

// NewLoader returns a Loader using a default HTTPFetcher.
func NewLoader() *Loader {
	return &Loader{Fetcher: NewHTTPFetcher(HTTPOptions{})}
}

// LoadRecords reads every record from a path or URL with the default loader.
func LoadRecords(ctx context.Context, src string) ([]model.Record, error) {
	return NewLoader().Load(ctx, src)
}

// Load reads every record from src, a local path or an http(s) URL.
func (l *Loader) Load(ctx context.Context, src string) ([]model.Record, error) {
	format, err := DetectFormat(src)
	if err != nil {
		return nil, err
	}

	if isURL(src) {
		if l.Fetcher == nil {
			return nil, eris.Errorf("fetcher: no fetcher configured for %s", src)
		}
		if format == FormatXLSX {
			return l.loadRemoteXLSX(ctx, src)
		}
		body, err := l.Fetcher.Download(ctx, src)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: download %s", src)
		}
		defer body.Close() //nolint:errcheck
		return ReadRecords(ctx, body, format)
	}

	if format == FormatXLSX {
		return ReadXLSXRecords(ctx, src, XLSXOptions{})
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", src)
	}
	defer f.Close() //nolint:errcheck

	records, err := ReadRecords(ctx, f, format)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("loaded records", zap.String("source", src), zap.Int("count", len(records)))
	return records, nil
}

func (l *Loader) loadRemoteXLSX(ctx context.Context, src string) ([]model.Record, error) {
	dir, err := os.MkdirTemp("", "scrape-cleaner-*")
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	local := filepath.Join(dir, "records.xlsx")
	if _, err := l.Fetcher.DownloadToFile(ctx, src, local); err != nil {
		return nil, eris.Wrapf(err, "fetcher: download %s", src)
	}
	return ReadXLSXRecords(ctx, local, XLSXOptions{})
}

// ReadRecords decodes records from r. XLSX needs a file and is rejected here.
func ReadRecords(ctx context.Context, r io.Reader, format Format) ([]model.Record, error) {
	switch format {
	case FormatJSON:
		return collect(DecodeJSONArray[map[string]any](ctx, r))
	case FormatJSONL:
		return collect(DecodeJSONLines[map[string]any](ctx, r))
	case FormatCSV:
		return ReadCSVRecords(ctx, r, CSVOptions{TrimSpace: true})
	}
	return nil, eris.Errorf("fetcher: format %q cannot be read from a stream", format)
}

// collect drains a decoded object stream into records.
func collect(objs <-chan map[string]any, errs <-chan error) ([]model.Record, error) {
	var out []model.Record
	for obj := range objs {
		rec, err := RecordFromMap(obj)
		if err != nil {
			// Drain so the producer can exit.
			for range objs {
			}
			return nil, eris.Wrapf(err, "fetcher: record %d", len(out))
		}
		out = append(out, rec)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return out, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
