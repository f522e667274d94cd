// Package workflow runs the authenticated business calls of one iteration.
// A failing step never stops the steps after it.
package workflow

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal/auth"
	"github.com/nilo-qa/nilo-loadtest/internal/check"
	"github.com/nilo-qa/nilo-loadtest/internal/engine"
	"github.com/nilo-qa/nilo-loadtest/internal/httpclient"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
)

// Pacing is the wait before each step.
type Pacing struct {
	Delay    time.Duration
	Variance float64
}

// FixedPacing waits exactly d.
func FixedPacing(d time.Duration) Pacing {
	return Pacing{Delay: d}
}

// DefaultPacing is 1s with 20% jitter.
var DefaultPacing = Pacing{Delay: time.Second, Variance: 0.2}

// Next returns the next wait.
func (p Pacing) Next() time.Duration {
	return engine.Jitter(p.Delay, p.Variance)
}

// StepOutcome is the result of one step.
type StepOutcome struct {
	Step     string        `json:"step" yaml:"step"`
	Status   int           `json:"status" yaml:"status"`
	Passed   bool          `json:"passed" yaml:"passed"`
	Duration time.Duration `json:"duration_ns" yaml:"duration"`
	Failures []string      `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Result is the ordered list of step outcomes of one run.
type Result struct {
	VU    int           `json:"vu" yaml:"vu"`
	Steps []StepOutcome `json:"steps" yaml:"steps"`
}

// Passed is true when every step passed.
func (r Result) Passed() bool {
	for _, s := range r.Steps {
		if !s.Passed {
			return false
		}
	}
	return true
}

// Observer receives every finished step. resp is nil for steps that were
// never sent because the context ended.
type Observer interface {
	StepFinished(s *auth.Session, outcome StepOutcome, resp *httpclient.Response)
}

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Runner executes workflow steps for a session.
type Runner struct {
	BaseURL string
	// Headers are the environment's base headers; the session token is
	// added per request.
	Headers  map[string]string
	Client   httpclient.Client
	Metrics  metrics.Sink
	Observer Observer
	Sleeper  SleepFunc
	// CourtLimit and Page parameterize the expedient listings.
	CourtLimit int
	Page       int
}

// Run executes the three workflow steps. The result always holds exactly
// three outcomes.
func (r *Runner) Run(ctx context.Context, s *auth.Session, pacing Pacing) Result {
	return r.RunSteps(ctx, s, pacing, WorkflowSteps(r.Page, r.CourtLimit))
}

// RunSteps executes specs in order, each after a pacing wait. Every spec
// yields one outcome. Once ctx is done the remaining steps are recorded as
// failed without being sent.
func (r *Runner) RunSteps(ctx context.Context, s *auth.Session, pacing Pacing, specs []StepSpec) Result {
	result := Result{VU: s.VirtualUserID, Steps: make([]StepOutcome, 0, len(specs))}
	headers := auth.AuthHeaders(r.Headers, s.Token)

	for _, spec := range specs {
		if err := r.sleep(ctx, pacing.Next()); err != nil {
			outcome := StepOutcome{Step: spec.Name, Failures: []string{"not sent: " + err.Error()}}
			result.Steps = append(result.Steps, outcome)
			r.observer(s, outcome, nil)
			continue
		}
		result.Steps = append(result.Steps, r.step(ctx, s, headers, spec))
	}
	return result
}

func (r *Runner) step(ctx context.Context, s *auth.Session, headers map[string]string, spec StepSpec) StepOutcome {
	sink := r.sink()
	resp := r.Client.Do(ctx, &httpclient.Request{
		Method:  http.MethodGet,
		URL:     r.BaseURL + expand(spec.Path, s),
		Headers: headers,
		Name:    spec.Name,
	})

	tag := metrics.T("endpoint", spec.Name)
	ms := metrics.Millis(resp.Duration)
	sink.Add(metrics.APIResponseTime, ms, tag)
	if spec.Trend != "" {
		sink.Add(spec.Trend, ms)
	}
	metrics.RecordHTTP(sink, spec.Name, resp)

	report := spec.Checks.Run(resp)
	metrics.RecordChecks(sink, spec.Name, report)

	if resp.Status == http.StatusOK && len(spec.Counts) > 0 {
		if shape, err := check.Validate(resp.Body); err == nil {
			for _, c := range spec.Counts {
				sink.Add(c.Metric, float64(shape.Len(c.Path)))
			}
		}
	}

	outcome := StepOutcome{
		Step:     spec.Name,
		Status:   resp.Status,
		Passed:   report.Passed(),
		Duration: resp.Duration,
		Failures: report.Failures(),
	}
	r.observer(s, outcome, resp)
	return outcome
}

func expand(path string, s *auth.Session) string {
	if !strings.Contains(path, "{userId}") {
		return path
	}
	return strings.ReplaceAll(path, "{userId}", url.PathEscape(s.UserID))
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleeper != nil {
		return r.Sleeper(ctx, d)
	}
	return engine.Sleep(ctx, d)
}

func (r *Runner) sink() metrics.Sink {
	if r.Metrics == nil {
		return metrics.Discard
	}
	return r.Metrics
}

func (r *Runner) observer(s *auth.Session, o StepOutcome, resp *httpclient.Response) {
	if r.Observer != nil {
		r.Observer.StepFinished(s, o, resp)
	}
}
