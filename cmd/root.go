package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/nilo-qa/nilo-loadtest/internal"
	"github.com/nilo-qa/nilo-loadtest/internal/config"
	"github.com/spf13/cobra"
)

var (
	verbose   bool
	logFormat string
	configDir string
	version   string = "dev"
	commit    string = "unknown"
	date      string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nilo-loadtest",
	Short: "Load-test the functionary and citizen applications",
	Long: `A load-testing harness for the functionary and citizen web applications.

Virtual users log in, reuse their session across iterations and walk the
read-only business workflow (expedients by user, expedients by court,
pending signatures) under a named strategy. Response checks and custom
metrics are aggregated and compared against thresholds at the end of the run.

Features:
  • Strategies: smoke, load, stress, spike, soak, average (or your own)
  • Environments: sandbox, production, local with env var overrides
  • Per-VU session cache, partial-failure workflow steps
  • Reports in JSON, YAML, Markdown or JSONL, plus a local run history
  • Prometheus metrics endpoint while a run is in progress

Quick Start:
  nilo-loadtest run                                   # smoke test against sandbox
  nilo-loadtest run -s load -e production -a citizen  # pick strategy, env and app
  nilo-loadtest login --validate                      # single login check
  nilo-loadtest strategies                            # list load profiles`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetLogOutput(os.Stderr, logFormat)
		internal.SetVerbose(verbose)
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var thErr *internal.ThresholdsFailedError
		if errors.As(err, &thErr) {
			internal.PrintError(err.Error())
			os.Exit(internal.ExitThresholdsFailed)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configDir)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "Log format: auto, console or json")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.GetEnv("NILO_CONFIG_DIR", ""), "Directory with environments.yaml, applications.yaml and strategies.yaml overrides")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
