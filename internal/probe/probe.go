// Package probe fires a constant-rate GET attack at a single URL. It backs
// the checks of static pages, assets and datatable endpoints that do not
// need a logged-in virtual user.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal/check"
	"github.com/nilo-qa/nilo-loadtest/internal/httpclient"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
	vegeta "github.com/tsenart/vegeta/v12/lib"
)

const endpoint = "probe"

// Config describes an attack.
type Config struct {
	URL      string
	Method   string
	Rate     int
	Duration time.Duration
	Timeout  time.Duration
	Headers  map[string]string
	// Cookies are sent as a single Cookie header.
	Cookies map[string]string
	// Expect is the status every response must have. Zero means 200.
	Expect int
	// Contains, when set, must appear in every body.
	Contains string
	Metrics  metrics.Sink
}

// Result summarizes an attack.
type Result struct {
	Requests    uint64
	Rate        float64
	Throughput  float64
	Success     float64
	Duration    time.Duration
	Min         time.Duration
	Mean        time.Duration
	P50         time.Duration
	P90         time.Duration
	P95         time.Duration
	P99         time.Duration
	Max         time.Duration
	BytesIn     uint64
	StatusCodes map[string]int
	Errors      []string
	// CheckFailures counts responses that failed the status or body check.
	CheckFailures int
}

// Passed is true when at least one request was sent and every response
// passed the checks.
func (r *Result) Passed() bool {
	return r.Requests > 0 && r.CheckFailures == 0
}

// Codes returns the status codes sorted.
func (r *Result) Codes() []string {
	codes := make([]string, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("probe: url is required")
	}
	if c.Rate <= 0 {
		return fmt.Errorf("probe: rate must be positive, got %d", c.Rate)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("probe: duration must be positive, got %s", c.Duration)
	}
	return nil
}

func (c Config) target() vegeta.Target {
	method := c.Method
	if method == "" {
		method = http.MethodGet
	}
	header := http.Header{}
	for k, v := range c.Headers {
		header.Set(k, v)
	}
	if len(c.Cookies) > 0 {
		names := make([]string, 0, len(c.Cookies))
		for name := range c.Cookies {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			header.Add("Cookie", (&http.Cookie{Name: name, Value: c.Cookies[name]}).String())
		}
	}
	return vegeta.Target{Method: method, URL: c.URL, Header: header}
}

func (c Config) checks() check.Set {
	expect := c.Expect
	if expect == 0 {
		expect = http.StatusOK
	}
	set := check.Set{check.Status{Expect: expect}}
	if c.Contains != "" {
		set = append(set, check.BodyContains{Text: c.Contains})
	}
	return set
}

// Run attacks cfg.URL at cfg.Rate requests per second for cfg.Duration.
// Cancelling ctx stops the attack early; the partial result is returned.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	sink := cfg.Metrics
	if sink == nil {
		sink = metrics.Discard
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = httpclient.DefaultTimeout
	}

	attacker := vegeta.NewAttacker(vegeta.Timeout(timeout), vegeta.KeepAlive(true))
	targeter := vegeta.NewStaticTargeter(cfg.target())
	rate := vegeta.Rate{Freq: cfg.Rate, Per: time.Second}
	checks := cfg.checks()

	stop := context.AfterFunc(ctx, func() { attacker.Stop() })
	defer stop()

	var m vegeta.Metrics
	failures := 0
	for res := range attacker.Attack(targeter, rate, cfg.Duration, endpoint) {
		m.Add(res)
		resp := toResponse(res)
		report := checks.Run(resp)
		metrics.RecordHTTP(sink, endpoint, resp)
		metrics.RecordChecks(sink, endpoint, report)
		if !report.Passed() {
			failures++
		}
	}
	m.Close()

	return &Result{
		Requests:      m.Requests,
		Rate:          m.Rate,
		Throughput:    m.Throughput,
		Success:       m.Success,
		Duration:      m.Duration,
		Min:           m.Latencies.Min,
		Mean:          m.Latencies.Mean,
		P50:           m.Latencies.P50,
		P90:           m.Latencies.P90,
		P95:           m.Latencies.P95,
		P99:           m.Latencies.P99,
		Max:           m.Latencies.Max,
		BytesIn:       m.BytesIn.Total,
		StatusCodes:   m.StatusCodes,
		Errors:        m.Errors,
		CheckFailures: failures,
	}, nil
}

func toResponse(res *vegeta.Result) *httpclient.Response {
	resp := &httpclient.Response{
		Status:   int(res.Code),
		Body:     res.Body,
		URL:      res.URL,
		Name:     endpoint,
		Duration: res.Latency,
	}
	if res.Error != "" && res.Code == 0 {
		resp.Err = fmt.Errorf("%s", res.Error)
	}
	return resp
}

