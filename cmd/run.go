package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nilo-qa/nilo-loadtest/internal"
	"github.com/nilo-qa/nilo-loadtest/internal/config"
	"github.com/nilo-qa/nilo-loadtest/internal/engine"
	"github.com/nilo-qa/nilo-loadtest/internal/export"
	"github.com/nilo-qa/nilo-loadtest/internal/history"
	"github.com/nilo-qa/nilo-loadtest/internal/httpclient"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
	"github.com/nilo-qa/nilo-loadtest/internal/scenario"
	"github.com/nilo-qa/nilo-loadtest/internal/workflow"
	"github.com/spf13/cobra"
)

var (
	runStrategy    string
	runEnvironment string
	runApplication string
	runScenario    string
	runUsers       string
	runReportDir   string
	runFormat      string
	runVUs         int
	runDuration    time.Duration
	runMetricsAddr string
	runHistory     bool
	runHistoryPath string
	runTrace       string
	runCatalog     string
	runRetries     int
	runStepDelay   time.Duration
	runThinkTime   time.Duration
	runNoBanner    bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a load test",
	Long: `Run a load test of one application against one environment using a strategy.

The strategy, environment and application default to the STRATEGY,
ENVIRONMENT and APPLICATION environment variables, then to smoke, sandbox
and functionary. Unknown names fall back to those defaults with a warning.

Test users are read from data/users.<environment>.yaml unless --users is
given. The run exits with code 99 when any threshold is crossed.`,
	Example: `  nilo-loadtest run
  nilo-loadtest run --strategy load --environment production
  nilo-loadtest run --application citizen --vus 5 --duration 30s
  nilo-loadtest run --scenario catalogs --catalog headings --format md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		env, _ := cfg.Environment(runEnvironment)
		app, _ := cfg.Application(runApplication)
		strategy, _ := cfg.Strategy(runStrategy)

		profile := strategy.Profile()
		if runVUs > 0 {
			d := runDuration
			if d <= 0 {
				d = profile.TotalDuration()
			}
			profile = engine.Profile{VUs: runVUs, Duration: d, GracefulStop: profile.GracefulStop}
		} else if runDuration > 0 && len(profile.Stages) == 0 {
			profile.Duration = runDuration
		}
		if err := profile.Validate(); err != nil {
			return err
		}

		thresholds, err := config.Thresholds(strategy, app)
		if err != nil {
			return err
		}
		exporter, err := export.NewExporter(runFormat)
		if err != nil {
			return err
		}

		name := runScenario
		if name == "" {
			name = app.Scenario
		}
		if name == "" {
			name = app.Name
		}

		var users scenario.Users
		if name != scenario.Front {
			path := runUsers
			if path == "" {
				path = config.DefaultUsersPath(env.Name)
			}
			var pool *config.Users
			err := internal.ShowProgress(cmd.Context(), "Loading users from "+path, func() (err error) {
				pool, err = config.LoadUsers(path, app.ID)
				return err
			})
			if err != nil {
				return err
			}
			if pool.Len() < profile.MaxVUs() {
				internal.LogWarn("%d users for up to %d VUs: users will be shared between VUs", pool.Len(), profile.MaxVUs())
			}
			users = pool
		}

		reg := metrics.NewRegistry()
		observer := scenario.NewLogObserver(reg)
		if runTrace != "" {
			f, err := os.Create(runTrace)
			if err != nil {
				return &internal.ExportError{Format: "jsonl", Path: runTrace, Err: err}
			}
			defer f.Close()
			tw := export.NewTraceWriter(f)
			observer.WithTrace(tw)
			defer func() {
				if err := tw.Err(); err != nil {
					internal.LogWarn("Trace %s is incomplete: %v", runTrace, err)
				}
			}()
		}

		var client httpclient.Client = httpclient.New(env.Timeout())
		if runRetries > 1 {
			client = &httpclient.RetryingClient{Client: client, Attempts: runRetries, Delay: time.Second}
		}

		sc, err := scenario.New(name, scenario.Options{
			BaseURL:    env.APIBaseURL,
			FrontURL:   env.FrontURL,
			LoginPath:  app.LoginPath,
			Headers:    env.Headers(),
			Client:     client,
			Metrics:    reg,
			Users:      users,
			Observer:   observer,
			Catalog:    runCatalog,
			StepPacing: pacing(runStepDelay, workflow.DefaultPacing.Variance),
			ThinkTime:  pacing(runThinkTime, scenario.ThinkTime.Variance),
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !runNoBanner {
			fmt.Fprintln(cmd.ErrOrStderr(), internal.RenderBanner("nilo loadtest"))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if runMetricsAddr != "" {
			shutdown, err := serveMetrics(runMetricsAddr, reg)
			if err != nil {
				return err
			}
			defer shutdown()
		}

		runID := uuid.NewString()
		internal.Logger().Info().
			Str("run_id", runID).
			Str("application", app.Name).
			Str("environment", env.Name).
			Str("strategy", strategy.Name).
			Str("scenario", sc.Name).
			Str("base_url", env.APIBaseURL).
			Stringer("profile", profile).
			Msg("Starting run")

		eng := &engine.Engine{Profile: profile, Iterate: sc.Iterate, Metrics: reg}
		statusCtx, cancelStatus := context.WithCancel(ctx)
		go internal.ShowLiveStatus(statusCtx, 5*time.Second, func(elapsed time.Duration) string {
			return fmt.Sprintf("%s / %s  %d VUs  %d iterations", elapsed, profile.TotalDuration(), eng.Active(), eng.Iterations())
		})
		stats, runErr := eng.Run(ctx)
		cancelStatus()
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return runErr
		}
		if runErr != nil {
			internal.LogWarn("Run interrupted, reporting partial results")
		}

		results := metrics.Evaluate(reg, thresholds)
		report := &export.Report{
			RunID:            runID,
			Application:      app.Name,
			Strategy:         strategy.Name,
			Environment:      env.Name,
			Scenario:         sc.Name,
			BaseURL:          env.APIBaseURL,
			StartedAt:        stats.Started.UTC(),
			FinishedAt:       stats.Finished.UTC(),
			Profile:          profile,
			Iterations:       stats.Iterations,
			FailedIterations: stats.Failed,
			PeakVUs:          stats.PeakVUs,
			Metrics:          reg.Summary(),
			Thresholds:       results,
			Passed:           len(metrics.Failed(results)) == 0,
		}
		if n := reg.Dropped(); n > 0 {
			internal.LogWarn("%d samples for undeclared metrics were dropped", n)
		}

		printSummary(out, report)

		var path string
		steps := []internal.ProgressStep{{
			Message: "Writing " + exporter.Extension() + " report",
			Fn: func() (err error) {
				path, err = export.WriteFile(runReportDir, report, exporter)
				return err
			},
		}}
		if runHistory {
			steps = append(steps, internal.ProgressStep{
				Message: "Saving run history",
				Fn: func() error {
					if err := saveHistory(context.Background(), report); err != nil {
						internal.LogWarn("Failed to save run history: %v", err)
					}
					return nil
				},
			})
		}
		if err := internal.ShowProgressWithSteps(context.Background(), steps); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nReport written to %s\n", path)

		if failed := report.FailedThresholds(); len(failed) > 0 {
			return &internal.ThresholdsFailedError{Failed: failed}
		}
		return nil
	},
}

func pacing(d time.Duration, variance float64) workflow.Pacing {
	if d <= 0 {
		return workflow.Pacing{}
	}
	return workflow.Pacing{Delay: d, Variance: variance}
}

func historyPath() (string, error) {
	if runHistoryPath != "" {
		return runHistoryPath, nil
	}
	return history.DefaultPath()
}

func saveHistory(ctx context.Context, r *export.Report) error {
	path, err := historyPath()
	if err != nil {
		return err
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Save(ctx, r); err != nil {
		return err
	}
	internal.LogDebug("Saved run %s to %s", r.RunID, path)
	return nil
}

// serveMetrics exposes the registry on addr/metrics until shutdown is called.
func serveMetrics(addr string, reg *metrics.Registry) (shutdown func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			internal.LogError("Metrics server stopped: %v", err)
		}
	}()
	internal.LogInfo("Serving metrics on http://%s/metrics", ln.Addr())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.StringVarP(&runStrategy, "strategy", "s", config.GetEnv("STRATEGY", config.DefaultStrategy), "Load strategy")
	f.StringVarP(&runEnvironment, "environment", "e", config.GetEnv("ENVIRONMENT", config.DefaultEnvironment), "Target environment")
	f.StringVarP(&runApplication, "application", "a", config.GetEnv("APPLICATION", config.DefaultApplication), "Application under test")
	f.StringVar(&runScenario, "scenario", "", "Scenario: functionary, citizen, catalogs or front (default: the application's)")
	f.StringVar(&runUsers, "users", "", "Users file (default: data/users.<environment>.yaml)")
	f.StringVarP(&runReportDir, "report-dir", "o", "reports", "Directory for the summary report")
	f.StringVarP(&runFormat, "format", "f", "json", "Report format: json, yaml, md or jsonl")
	f.IntVar(&runVUs, "vus", 0, "Override the strategy with a fixed number of VUs")
	f.DurationVar(&runDuration, "duration", 0, "Override the run duration")
	f.StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run (e.g. :9090)")
	f.BoolVar(&runHistory, "history", true, "Save the run to the local history database")
	f.StringVar(&runHistoryPath, "history-db", "", "History database path (default: ~/.nilo-loadtest/history.db)")
	f.StringVar(&runTrace, "trace", "", "Write every step outcome as JSON lines to this file")
	f.StringVar(&runCatalog, "catalog", "", "Catalog endpoint for the catalogs scenario (e.g. matters, headings, crimes/penal)")
	f.IntVar(&runRetries, "retries", 1, "Attempts per request on transport errors and 5xx")
	f.DurationVar(&runStepDelay, "step-delay", 0, "Pause before each workflow step (default 1s)")
	f.DurationVar(&runThinkTime, "think-time", 0, "Pause between iterations (default depends on the scenario)")
	f.BoolVar(&runNoBanner, "no-banner", false, "Do not print the banner")
}
