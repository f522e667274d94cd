// Package export renders run reports as json, yaml, markdown or jsonl and
// writes them under a reports directory.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal"
	"github.com/nilo-qa/nilo-loadtest/internal/engine"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
)

// Report is the end-of-run summary.
type Report struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Application string    `json:"application" yaml:"application"`
	Strategy    string    `json:"strategy" yaml:"strategy"`
	Environment string    `json:"environment" yaml:"environment"`
	Scenario    string    `json:"scenario" yaml:"scenario"`
	BaseURL     string    `json:"base_url" yaml:"base_url"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`

	Profile          engine.Profile `json:"profile" yaml:"profile"`
	Iterations       int64          `json:"iterations" yaml:"iterations"`
	FailedIterations int64          `json:"failed_iterations" yaml:"failed_iterations"`
	PeakVUs          int            `json:"peak_vus" yaml:"peak_vus"`

	Metrics    []metrics.Aggregate       `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Thresholds []metrics.ThresholdResult `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Passed     bool                      `json:"passed" yaml:"passed"`
}

// Duration is the wall-clock length of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Metric returns the aggregate of name, if recorded.
func (r *Report) Metric(name string) (metrics.Aggregate, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return metrics.Aggregate{}, false
}

// FailedThresholds lists the crossed thresholds.
func (r *Report) FailedThresholds() []string {
	return metrics.Failed(r.Thresholds)
}

// FileName returns <app>-<strategy>-<env>-<timestamp>.<ext>, the timestamp
// being the UTC start time with separators safe for file names.
func FileName(r *Report, ext string) string {
	stamp := r.StartedAt.UTC().Format("2006-01-02T15-04-05Z")
	name := fmt.Sprintf("%s-%s-%s-%s.%s", r.Application, r.Strategy, r.Environment, stamp, ext)
	return strings.ReplaceAll(name, string(filepath.Separator), "_")
}

// WriteFile exports r into dir, creating it when needed, and returns the
// written path.
func WriteFile(dir string, r *Report, e Exporter) (string, error) {
	path := filepath.Join(dir, FileName(r, e.Extension()))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}

	f, err := os.Create(path)
	if err != nil {
		return "", &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}
	if err := e.Export(r, f); err != nil {
		_ = f.Close()
		return "", &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}
	return path, nil
}
