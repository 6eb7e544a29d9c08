package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/scrape-cleaner/internal/fetcher"
	"github.com/sells-group/scrape-cleaner/internal/pipeline"
)

func TestProcessBatch_Empty(t *testing.T) {
	called := false
	err := processBatch(context.Background(), nil, 2, func(context.Context, string) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestProcessBatch_AllSucceed(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	err := processBatch(context.Background(), []string{"a.json", "b.json", "c.json"}, 2, func(_ context.Context, src string) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, src)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.json", "b.json", "c.json"}, seen)
}

func TestProcessBatch_ContinuesPastFailure(t *testing.T) {
	var calls atomic.Int32
	err := processBatch(context.Background(), []string{"ok.json", "bad.json", "ok2.json"}, 1, func(_ context.Context, src string) error {
		calls.Add(1)
		if src == "bad.json" {
			return errors.New("broken file")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 sources failed")
	assert.Equal(t, int32(3), calls.Load())
}

func TestProcessBatch_RespectsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	sources := []string{"1", "2", "3", "4", "5", "6"}
	err := processBatch(context.Background(), sources, 2, func(context.Context, string) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		inFlight.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestCleanedPath(t *testing.T) {
	tests := []struct {
		src, format, want string
	}{
		{"in/products.json", "", "out/products.cleaned.json"},
		{"in/products.csv", "xlsx", "out/products.cleaned.xlsx"},
		{"https://example.com/export.jsonl?token=x", "", "out/export.cleaned.jsonl"},
		{"noext", "", "out/noext.cleaned.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, filepath.FromSlash(tt.want), cleanedPath("out", tt.src, tt.format), tt.src)
	}
}

func TestBatch_CleansFilesToOutDir(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(a, []byte(`[{"id":"1","title":"  Hello  "}]`), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("id,title\n2,World\n3,Again\n"), 0o644))

	dc, err := pipeline.NewDataCleaner()
	require.NoError(t, err)

	err = processBatch(context.Background(), []string{a, b}, 2, func(ctx context.Context, src string) error {
		res, err := cleanSource(ctx, dc, nil, src, "")
		if err != nil {
			return err
		}
		return writeRecords(cleanedPath(outDir, src, ""), "", res.Records)
	})
	require.NoError(t, err)

	got, err := fetcher.LoadRecords(context.Background(), filepath.Join(outDir, "a.cleaned.json"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)

	got, err = fetcher.LoadRecords(context.Background(), filepath.Join(outDir, "b.cleaned.csv"))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
