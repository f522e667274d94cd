package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal"
	"github.com/nilo-qa/nilo-loadtest/internal/export"
	"github.com/nilo-qa/nilo-loadtest/internal/history"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	historyDB    string
	historyLimit int
	reportFormat string
	reportOutput string
)

func openHistory() (*history.Store, error) {
	path := historyDB
	if path == "" {
		var err error
		if path, err = history.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return history.Open(path)
}

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs",
	Long:  `List the runs saved in the local history database, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No runs recorded yet.")
			return nil
		}

		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"", "ID", "Started", "Duration", "Application", "Strategy", "Environment", "Iterations"})
		table.SetBorder(false)
		table.SetHeaderLine(false)
		table.SetColumnSeparator("")
		table.SetAutoWrapText(false)
		for _, e := range entries {
			table.Append([]string{
				mark(e.Passed),
				idStyle.Render(shortID(e.ID)),
				e.StartedAt.Local().Format("2006-01-02 15:04:05"),
				e.FinishedAt.Sub(e.StartedAt).Round(time.Second).String(),
				e.Application,
				e.Strategy,
				e.Environment,
				strconv.FormatInt(e.Iterations, 10),
			})
		}
		table.Render()
		return nil
	},
}

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Re-export a stored run",
	Long: `Print the summary of a stored run and, with --output, write it as a
report file. A unique prefix of the run id is enough.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		r, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if reportOutput == "" {
			printSummary(cmd.OutOrStdout(), r)
			return nil
		}
		exporter, err := export.NewExporter(reportFormat)
		if err != nil {
			return err
		}
		info, statErr := os.Stat(reportOutput)
		if statErr == nil && info.IsDir() {
			path, err := export.WriteFile(reportOutput, r, exporter)
			if err != nil {
				return err
			}
			internal.PrintSuccess("Report written to " + path)
			return nil
		}
		if err := writeReport(reportOutput, r, exporter); err != nil {
			return err
		}
		internal.PrintSuccess("Report written to " + reportOutput)
		return nil
	},
}

func writeReport(path string, r *export.Report, e export.Exporter) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}
	defer f.Close()
	if err := e.Export(r, f); err != nil {
		return &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(reportCmd)
	historyCmd.PersistentFlags().StringVar(&historyDB, "db", "", "History database path (default: ~/.nilo-loadtest/history.db)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show (0 for all)")
	reportCmd.Flags().StringVar(&historyDB, "db", "", "History database path (default: ~/.nilo-loadtest/history.db)")
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "md", "Report format: json, yaml, md or jsonl")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write the report to this file or directory instead of printing the summary")
}
