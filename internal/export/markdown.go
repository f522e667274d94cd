package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
)

// MarkdownExporter exports reports in Markdown format
type MarkdownExporter struct{}

// Export exports a report to Markdown format
func (e *MarkdownExporter) Export(report *Report, w io.Writer) error {
	verdict := "PASSED"
	if !report.Passed {
		verdict = "FAILED"
	}

	// Header
	_, _ = fmt.Fprintf(w, "# Load test %s: %s\n\n", report.RunID, verdict)
	_, _ = fmt.Fprintf(w, "**Application:** %s  \n", report.Application)
	_, _ = fmt.Fprintf(w, "**Strategy:** %s (%s)  \n", report.Strategy, report.Profile)
	_, _ = fmt.Fprintf(w, "**Environment:** %s  \n", report.Environment)
	if report.Scenario != "" {
		_, _ = fmt.Fprintf(w, "**Scenario:** %s  \n", report.Scenario)
	}
	_, _ = fmt.Fprintf(w, "**Started:** %s  \n", report.StartedAt.UTC().Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "**Duration:** %s  \n", report.Duration().Round(time.Second))
	_, _ = fmt.Fprintf(w, "**Iterations:** %d (%d failed), peak %d VUs\n\n", report.Iterations, report.FailedIterations, report.PeakVUs)

	if len(report.Thresholds) > 0 {
		_, _ = fmt.Fprintf(w, "## Thresholds\n\n")
		_, _ = fmt.Fprintf(w, "| | Threshold | Observed |\n|---|---|---|\n")
		for _, t := range report.Thresholds {
			mark := "✓"
			if !t.Passed {
				mark = "✗"
			}
			observed := formatValue(t.Observed)
			if t.NoData {
				observed = "no data"
			}
			_, _ = fmt.Fprintf(w, "| %s | `%s` | %s |\n", mark, escapeMarkdown(t.String()), observed)
		}
		_, _ = fmt.Fprintf(w, "\n")
	}

	if len(report.Metrics) > 0 {
		_, _ = fmt.Fprintf(w, "## Metrics\n\n")
		_, _ = fmt.Fprintf(w, "| Metric | Kind | Count | Value |\n|---|---|---|---|\n")
		for _, m := range report.Metrics {
			_, _ = fmt.Fprintf(w, "| %s | %s | %s | %s |\n", escapeMarkdown(m.Name), m.Kind, formatValue(m.Count), Describe(m))
		}
	}

	return nil
}

// Describe renders the headline statistics of an aggregate.
func Describe(m metrics.Aggregate) string {
	switch m.Kind {
	case metrics.Trend.String():
		return fmt.Sprintf("avg=%sms min=%sms med=%sms p(90)=%sms p(95)=%sms p(99)=%sms max=%sms",
			formatValue(m.Avg), formatValue(m.Min), formatValue(m.Med),
			formatValue(m.P90), formatValue(m.P95), formatValue(m.P99), formatValue(m.Max))
	case metrics.Rate.String():
		return fmt.Sprintf("%.2f%%", m.Rate*100)
	case metrics.Gauge.String():
		return fmt.Sprintf("%s (min=%s max=%s)", formatValue(m.Value), formatValue(m.Min), formatValue(m.Max))
	default:
		return formatValue(m.Value)
	}
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

// escapeMarkdown escapes characters that break table cells
func escapeMarkdown(text string) string {
	text = strings.ReplaceAll(text, "|", "\\|")
	text = strings.ReplaceAll(text, "__", "\\_\\_")
	return text
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
