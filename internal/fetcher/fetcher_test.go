package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"records.json", FormatJSON},
		{"RECORDS.JSON", FormatJSON},
		{"out.jsonl", FormatJSONL},
		{"out.ndjson", FormatJSONL},
		{"/tmp/a.csv", FormatCSV},
		{"book.xlsx", FormatXLSX},
		{"https://data.example.com/export.csv?token=abc", FormatCSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DetectFormat("records.parquet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported record file")
}

func TestLoadRecords_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, writeTestFile(path, `[
		{"id":"r1","url":"https://a.example.com","content":{"title":"A","price":10}},
		{"id":"r2","title":"B","confidence_score":0.5}
	]`))

	recs, err := LoadRecords(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r1", recs[0].ID)
	price, _ := recs[0].Content.Get("price")
	assert.Equal(t, json.Number("10"), price)
	assert.InDelta(t, 0.5, recs[1].ConfidenceScore, 1e-9)
}

func TestLoadRecords_JSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.ndjson")
	require.NoError(t, writeTestFile(path, "{\"id\":\"r1\",\"title\":\"A\"}\n{\"id\":\"r2\",\"title\":\"B\"}\n"))

	recs, err := LoadRecords(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r2", recs[1].ID)
}

func TestLoadRecords_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	require.NoError(t, writeTestFile(path, "id,title\nr1,A\nr2,B\n"))

	recs, err := LoadRecords(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestLoadRecords_XLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"id", "title"}, {"r1", "A"}}})

	recs, err := LoadRecords(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "r1", recs[0].ID)
}

func TestLoadRecords_MissingFile(t *testing.T) {
	_, err := LoadRecords(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher: open")
}

func TestLoadRecords_BadRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, writeTestFile(path, `[{"id":"r1"},{"id":"r2","confidence_score":"high"}]`))

	_, err := LoadRecords(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")
}

func TestLoader_Remote(t *testing.T) {
	xlsxPath := createTestXLSX(t, map[string][][]string{"Sheet1": {{"id", "title"}, {"x1", "A"}}})
	xlsxBytes, err := os.ReadFile(xlsxPath)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/records.json":
			w.Write([]byte(`[{"id":"j1","title":"A"}]`))
		case "/records.xlsx":
			w.Write(xlsxBytes)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	l := &Loader{Fetcher: newTestFetcher()}

	recs, err := l.Load(context.Background(), srv.URL+"/records.json")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "j1", recs[0].ID)

	recs, err = l.Load(context.Background(), srv.URL+"/records.xlsx")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "x1", recs[0].ID)

	_, err = l.Load(context.Background(), srv.URL+"/missing.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestLoader_RemoteWithoutFetcher(t *testing.T) {
	_, err := (&Loader{}).Load(context.Background(), "https://example.com/a.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fetcher configured")
}

func TestReadRecords_XLSXRejected(t *testing.T) {
	_, err := ReadRecords(context.Background(), nil, FormatXLSX)
	require.Error(t, err)
}
