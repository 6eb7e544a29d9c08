package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/scrape-cleaner/internal/config"
	"github.com/sells-group/scrape-cleaner/internal/model"
)

func sampleRun(id, job string, createdAt time.Time) *model.CleaningRun {
	return &model.CleaningRun{
		ID:    id,
		JobID: job,
		Metrics: model.DataQualityMetrics{
			TotalRecords:     2,
			ValidRecords:     1,
			InvalidRecords:   1,
			OverallScore:     0.75,
			FieldQuality:     map[string]float64{"email": 1},
			ValidationErrors: map[string]int{"rejected": 1},
			Duplicates:       []model.DuplicatePair{},
		},
		Report: model.QualityReport{
			Summary:         model.ReportSummary{TotalRecords: 2, ValidRecords: 1, InvalidRecords: 1},
			QualityScores:   model.QualityScores{Overall: 0.75},
			Recommendations: []model.Recommendation{{Code: "high_invalid_rate", Severity: model.SeverityWarning, Message: "m"}},
		},
		CreatedAt: createdAt,
	}
}

func sampleRecords() []model.Record {
	return []model.Record{
		{
			ID:              "r1",
			JobID:           "job-1",
			URL:             "https://shop.example.com/1",
			ContentType:     model.ContentTypeHTML,
			ConfidenceScore: 0.9,
			QualityScore:    0.8,
			Valid:           true,
			Content:         model.NewContent(map[string]any{"title": "Widget", "sku": "W-1"}),
		},
		{
			ID:               "r2",
			ContentType:      model.ContentTypeText,
			Corrected:        true,
			Content:          model.NewContent(map[string]any{"email": "a@b.com"}),
			ValidationErrors: []string{"low_confidence: confidence 0.10 below floor 0.30"},
		},
	}
}

func TestOpen_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite", DatabaseURL: path})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, ok := st.(*SQLiteStore)
	assert.True(t, ok)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires store.database_url")

	_, err = Open(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestPrepareRun(t *testing.T) {
	run := &model.CleaningRun{}
	prepareRun(run, func() string { return "fixed" })
	assert.Equal(t, "fixed", run.ID)
	assert.False(t, run.CreatedAt.IsZero())
	assert.Equal(t, time.UTC, run.CreatedAt.Location())

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	run = &model.CleaningRun{ID: "keep", CreatedAt: ts}
	prepareRun(run, func() string { return "fixed" })
	assert.Equal(t, "keep", run.ID)
	assert.True(t, ts.Equal(run.CreatedAt))
}

func TestEncodeDecodeRecord(t *testing.T) {
	rec := sampleRecords()[0]
	enc, err := encodeRecord(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Widget","sku":"W-1"}`, string(enc.content))
	assert.Equal(t, "[]", string(enc.errors))

	var back model.Record
	require.NoError(t, decodeRecord(&back, enc.content, enc.errors))
	assert.Equal(t, rec.Content.Keys(), back.Content.Keys())
	assert.Nil(t, back.ValidationErrors)
}
