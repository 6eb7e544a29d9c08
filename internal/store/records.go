package store

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/scrape-cleaner/internal/model"
)

// recordColumns is the column order of cleaned_records used by both backends.
var recordColumns = []string{
	"run_id", "position", "record_id", "job_id", "url", "content_type",
	"confidence_score", "data_quality_score", "valid", "corrected",
	"content", "validation_errors",
}

// encodedRecord holds the JSON columns of a record.
type encodedRecord struct {
	content []byte
	errors  []byte
}

func encodeRecord(r model.Record) (encodedRecord, error) {
	content, err := json.Marshal(r.Content)
	if err != nil {
		return encodedRecord{}, eris.Wrapf(err, "store: marshal content of %s", r.ID)
	}
	errs := r.ValidationErrors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return encodedRecord{}, eris.Wrapf(err, "store: marshal validation errors of %s", r.ID)
	}
	return encodedRecord{content: content, errors: errJSON}, nil
}

func decodeRecord(r *model.Record, content, errs []byte) error {
	if err := json.Unmarshal(content, &r.Content); err != nil {
		return eris.Wrapf(err, "store: unmarshal content of %s", r.ID)
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &r.ValidationErrors); err != nil {
			return eris.Wrapf(err, "store: unmarshal validation errors of %s", r.ID)
		}
		if len(r.ValidationErrors) == 0 {
			r.ValidationErrors = nil
		}
	}
	return nil
}

func encodeRun(run *model.CleaningRun) (metrics, report []byte, err error) {
	metrics, err = json.Marshal(run.Metrics)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal metrics")
	}
	report, err = json.Marshal(run.Report)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal report")
	}
	return metrics, report, nil
}

func decodeRun(run *model.CleaningRun, metrics, report []byte) error {
	if err := json.Unmarshal(metrics, &run.Metrics); err != nil {
		return eris.Wrapf(err, "store: unmarshal metrics of run %s", run.ID)
	}
	if err := json.Unmarshal(report, &run.Report); err != nil {
		return eris.Wrapf(err, "store: unmarshal report of run %s", run.ID)
	}
	return nil
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}
