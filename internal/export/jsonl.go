package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
)

// JSONLExporter exports reports in JSONL format: a run line, then one line
// per metric and one per threshold
type JSONLExporter struct{}

type jsonlRecord struct {
	Type      string                   `json:"type"`
	RunID     string                   `json:"run_id"`
	Run       *Report                  `json:"run,omitempty"`
	Metric    *metrics.Aggregate       `json:"metric,omitempty"`
	Threshold *metrics.ThresholdResult `json:"threshold,omitempty"`
}

// Export exports a report to JSONL format
func (e *JSONLExporter) Export(report *Report, w io.Writer) error {
	enc := json.NewEncoder(w)

	header := *report
	header.Metrics = nil
	header.Thresholds = nil
	if err := enc.Encode(jsonlRecord{Type: "run", RunID: report.RunID, Run: &header}); err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	for i := range report.Metrics {
		if err := enc.Encode(jsonlRecord{Type: "metric", RunID: report.RunID, Metric: &report.Metrics[i]}); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", report.Metrics[i].Name, err)
		}
	}
	for i := range report.Thresholds {
		if err := enc.Encode(jsonlRecord{Type: "threshold", RunID: report.RunID, Threshold: &report.Thresholds[i]}); err != nil {
			return fmt.Errorf("failed to encode threshold: %w", err)
		}
	}
	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}

// TraceWriter streams one JSON line per event. It is safe for concurrent use.
type TraceWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewTraceWriter writes trace lines to w.
func NewTraceWriter(w io.Writer) *TraceWriter {
	return &TraceWriter{enc: json.NewEncoder(w)}
}

// Write encodes v as one line. After the first failure every call is a
// no-op; Err reports it.
func (t *TraceWriter) Write(v interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	t.err = t.enc.Encode(v)
}

// Err returns the first encoding error.
func (t *TraceWriter) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
