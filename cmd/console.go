package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/nilo-qa/nilo-loadtest/internal/export"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func mark(passed bool) string {
	if passed {
		return passStyle.Render("✓")
	}
	return failStyle.Render("✗")
}

// printSummary writes the end-of-run tables: run header, metrics and
// thresholds.
func printSummary(w io.Writer, r *export.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s / %s / %s", r.Application, r.Strategy, r.Environment)))
	fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("run:"), idStyle.Render(r.RunID))
	fmt.Fprintf(w, "  %s %s (%s)\n", dimStyle.Render("profile:"), r.Profile, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  %s %d (%d failed), peak %d VUs\n\n", dimStyle.Render("iterations:"), r.Iterations, r.FailedIterations, r.PeakVUs)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, m := range r.Metrics {
		name := m.Name
		if len(m.Tags) > 0 {
			name = metrics.Threshold{Metric: m.Name, Tags: m.Tags}.Key()
		}
		fmt.Fprintf(tw, "  %s\t%s\n", titleStyle.Render(name), export.Describe(m))
	}
	_ = tw.Flush()

	if len(r.Thresholds) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Thresholds"))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, t := range r.Thresholds {
		observed := fmt.Sprintf("%.2f", t.Observed)
		if t.NoData {
			observed = dimStyle.Render("no data")
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", mark(t.Passed), t.String(), observed)
	}
	_ = tw.Flush()

	fmt.Fprintln(w)
	if r.Passed {
		fmt.Fprintln(w, passStyle.Render("All thresholds passed"))
	} else {
		fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("%d threshold(s) crossed", len(r.FailedThresholds()))))
	}
}
