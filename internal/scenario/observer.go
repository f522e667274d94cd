package scenario

import (
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal"
	"github.com/nilo-qa/nilo-loadtest/internal/auth"
	"github.com/nilo-qa/nilo-loadtest/internal/check"
	"github.com/nilo-qa/nilo-loadtest/internal/engine"
	"github.com/nilo-qa/nilo-loadtest/internal/export"
	"github.com/nilo-qa/nilo-loadtest/internal/httpclient"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
	"github.com/nilo-qa/nilo-loadtest/internal/workflow"
	"github.com/rs/zerolog"
)

// TraceEvent is one line of a --trace file.
type TraceEvent struct {
	Type       string    `json:"type"`
	Time       time.Time `json:"time"`
	VU         int       `json:"vu"`
	Email      string    `json:"email,omitempty"`
	Step       string    `json:"step,omitempty"`
	Status     int       `json:"status"`
	Passed     bool      `json:"passed"`
	DurationMS float64   `json:"duration_ms"`
	Failures   []string  `json:"failures,omitempty"`
	Body       string    `json:"body,omitempty"`
}

// LogObserver reports session and step events through zerolog, counts
// token reuse and optionally streams a trace.
type LogObserver struct {
	log     *zerolog.Logger
	metrics metrics.Sink
	trace   *export.TraceWriter
}

var (
	_ auth.Observer     = (*LogObserver)(nil)
	_ workflow.Observer = (*LogObserver)(nil)
)

// NewLogObserver logs to the shared harness logger.
func NewLogObserver(sink metrics.Sink) *LogObserver {
	if sink == nil {
		sink = metrics.Discard
	}
	return &LogObserver{log: internal.Logger(), metrics: sink}
}

// WithLogger replaces the logger.
func (o *LogObserver) WithLogger(l zerolog.Logger) *LogObserver {
	o.log = &l
	return o
}

// WithTrace streams every step and login outcome to t.
func (o *LogObserver) WithTrace(t *export.TraceWriter) *LogObserver {
	o.trace = t
	return o
}

func (o *LogObserver) SessionReused(s *auth.Session) {
	o.metrics.Add(metrics.TokenReuse, 1)
	o.log.Debug().Int("vu", s.VirtualUserID).Str("email", s.Email).Msg("Reusing JWT")
}

func (o *LogObserver) SessionStored(s *auth.Session) {
	ev := o.log.Info().Int("vu", s.VirtualUserID).Str("email", s.Email).Str("user_id", s.UserID)
	if !s.ExpiresAt.IsZero() {
		ev = ev.Time("expires_at", s.ExpiresAt)
	}
	ev.Msg("Initial login")
}

func (o *LogObserver) SessionCleared(vuID int) {
	o.log.Debug().Int("vu", vuID).Msg("Session cleared")
}

func (o *LogObserver) LoginFailed(email string, err *auth.AuthError) {
	o.log.Error().
		Str("email", email).
		Int("status", err.Status).
		Str("reason", string(err.Reason)).
		Str("body", err.Snippet).
		AnErr("cause", err.Err).
		Msg("Login failed")
	o.emit(TraceEvent{Type: "login", Email: email, Status: err.Status, Failures: []string{string(err.Reason)}, Body: err.Snippet})
}

// LoggedIn records a login that is not cached.
func (o *LogObserver) LoggedIn(s *auth.Session) {
	o.log.Debug().Int("vu", s.VirtualUserID).Str("email", s.Email).Str("user_id", s.UserID).Msg("Login OK")
	o.emit(TraceEvent{Type: "login", VU: s.VirtualUserID, Email: s.Email, Status: 200, Passed: true})
}

// IterationSkipped is called when an iteration ends before its workflow.
func (o *LogObserver) IterationSkipped(vu engine.VU, err error) {
	o.log.Warn().Int("vu", vu.ID).Int("iteration", vu.Iteration).Err(err).Msg("Authentication failed, skipping iteration")
}

func (o *LogObserver) StepFinished(s *auth.Session, outcome workflow.StepOutcome, resp *httpclient.Response) {
	ev := TraceEvent{
		Type:       "step",
		VU:         s.VirtualUserID,
		Email:      s.Email,
		Step:       outcome.Step,
		Status:     outcome.Status,
		Passed:     outcome.Passed,
		DurationMS: metrics.Millis(outcome.Duration),
		Failures:   outcome.Failures,
	}
	if outcome.Passed {
		o.log.Debug().Int("vu", s.VirtualUserID).Str("endpoint", outcome.Step).Int("status", outcome.Status).
			Dur("duration", outcome.Duration).Msg("Step passed")
		o.emit(ev)
		return
	}

	if resp != nil {
		ev.Body = resp.Snippet()
	}
	o.log.Warn().
		Int("vu", s.VirtualUserID).
		Str("endpoint", outcome.Step).
		Int("status", outcome.Status).
		Dur("duration", outcome.Duration).
		Strs("failures", outcome.Failures).
		Str("body", ev.Body).
		Msg("Step failed")
	o.emit(ev)
}

// PageLoaded reports a front page request.
func (o *LogObserver) PageLoaded(vu engine.VU, resp *httpclient.Response, report check.Report) {
	ev := TraceEvent{
		Type:       "page",
		VU:         vu.ID,
		Step:       resp.Name,
		Status:     resp.Status,
		Passed:     report.Passed(),
		DurationMS: metrics.Millis(resp.Duration),
		Failures:   report.Failures(),
	}
	if ev.Passed {
		o.log.Debug().Int("vu", vu.ID).Str("url", resp.URL).Int("status", resp.Status).Msg("Page loaded")
	} else {
		o.log.Warn().Int("vu", vu.ID).Str("url", resp.URL).Int("status", resp.Status).
			Strs("failures", ev.Failures).Msg("Page check failed")
	}
	o.emit(ev)
}

func (o *LogObserver) emit(ev TraceEvent) {
	if o.trace == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	o.trace.Write(ev)
}
