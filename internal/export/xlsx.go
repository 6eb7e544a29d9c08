package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

// Sheet names of the XLSX export.
const (
	SheetRecords = "Records"
	SheetSummary = "Summary"
)

func writeXLSX(w io.Writer, records []model.Record) error {
	header, rows, err := table(records)
	if err != nil {
		return err
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetRecords)
	if err != nil {
		return eris.Wrap(err, "xlsx: add records sheet")
	}
	addRow(sheet, header)
	for _, row := range rows {
		addRow(sheet, row)
	}

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}
	addRow(summary, []string{"metric", "value"})
	for _, kv := range summarize(records) {
		row := summary.AddRow()
		row.AddCell().SetString(kv.name)
		row.AddCell().SetFloat(kv.value)
	}

	return eris.Wrap(f.Write(w), "xlsx: write file")
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

type summaryValue struct {
	name  string
	value float64
}

// summarize computes the Summary sheet from the records alone.
func summarize(records []model.Record) []summaryValue {
	var valid, corrected float64
	quality := make([]float64, 0, len(records))
	confidence := make([]float64, 0, len(records))
	for _, r := range records {
		if r.Valid {
			valid++
		}
		if r.Corrected {
			corrected++
		}
		quality = append(quality, r.QualityScore)
		confidence = append(confidence, r.ConfidenceScore)
	}

	var meanQuality, meanConfidence float64
	if len(records) > 0 {
		meanQuality = stat.Mean(quality, nil)
		meanConfidence = stat.Mean(confidence, nil)
	}
	total := float64(len(records))
	return []summaryValue{
		{"total_records", total},
		{"valid_records", valid},
		{"invalid_records", total - valid},
		{"corrected_records", corrected},
		{"mean_quality_score", meanQuality},
		{"mean_confidence_score", meanConfidence},
	}
}
