package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal/auth"
	"github.com/nilo-qa/nilo-loadtest/internal/httpclient"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
	"github.com/nilo-qa/nilo-loadtest/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (l *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	l.mu.Lock()
	l.waits = append(l.waits, d)
	l.mu.Unlock()
	return ctx.Err()
}

type stepLog struct {
	mu       sync.Mutex
	outcomes []StepOutcome
	nilResp  int
}

func (l *stepLog) StepFinished(_ *auth.Session, o StepOutcome, resp *httpclient.Response) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, o)
	if resp == nil {
		l.nilResp++
	}
}

var session = &auth.Session{VirtualUserID: 1, Token: "T1", UserID: testutil.FakeUserID, Email: "a@x.com", Valid: true}

func newRunner(api *testutil.FakeAPI, sink metrics.Sink) (*Runner, *sleepLog, *stepLog) {
	sleeps := &sleepLog{}
	steps := &stepLog{}
	return &Runner{
		BaseURL:  api.URL,
		Headers:  map[string]string{"Accept": "application/json"},
		Client:   httpclient.New(2 * time.Second),
		Metrics:  sink,
		Observer: steps,
		Sleeper:  sleeps.sleep,
	}, sleeps, steps
}

func stepNames(r Result) []string {
	names := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		names[i] = s.Step
	}
	return names
}

func TestRun_AllStepsPass(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	reg := metrics.NewRegistry()
	r, sleeps, steps := newRunner(api, reg)

	result := r.Run(context.Background(), session, DefaultPacing)

	require.Len(t, result.Steps, 3)
	assert.Equal(t, []string{StepExpedientsByUser, StepExpedientsByCourt, StepPendingSignatures}, stepNames(result))
	assert.True(t, result.Passed())
	assert.Equal(t, 1, result.VU)
	for _, s := range result.Steps {
		assert.Equal(t, 200, s.Status)
		assert.Empty(t, s.Failures)
	}
	assert.Len(t, steps.outcomes, 3)

	require.Len(t, sleeps.waits, 3)
	for _, d := range sleeps.waits {
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}

	reqs := api.Requests(testutil.ExpedientsByUserPath)
	require.Len(t, reqs, 1)
	assert.Equal(t, "T1", reqs[0].Headers.Get("Authorization"))
	assert.Equal(t, "application/json", reqs[0].Headers.Get("Accept"))
	assert.Equal(t, "page=1", reqs[0].Query)
	assert.Equal(t, 1, api.Calls(testutil.ExpedientsByCourtPath))
	assert.Equal(t, 1, api.Calls(testutil.PendingSignaturesPath))

	fetched, ok := reg.Aggregate(metrics.ExpedientsFetched, nil)
	require.True(t, ok)
	assert.Equal(t, 3.0, fetched.Value)
	pending, ok := reg.Aggregate(metrics.SignaturesPendingCount, nil)
	require.True(t, ok)
	assert.Equal(t, 2.0, pending.Value)
	for _, name := range []string{metrics.ExpedientsFetchDuration, metrics.CourtExpedientsDuration, metrics.SignaturesFetchDuration} {
		agg, ok := reg.Aggregate(name, nil)
		require.True(t, ok, name)
		assert.Equal(t, 1.0, agg.Count, name)
	}
	byEndpoint, ok := reg.Aggregate(metrics.APIResponseTime, map[string]string{"endpoint": StepExpedientsByCourt})
	require.True(t, ok)
	assert.Equal(t, 1.0, byEndpoint.Count)
	checks, ok := reg.Aggregate(metrics.Checks, nil)
	require.True(t, ok)
	assert.Equal(t, 1.0, checks.Rate)
}

func TestRun_PartialFailure(t *testing.T) {
	tests := []struct {
		name   string
		routes map[string]testutil.Route
		passed []bool
		status []int
	}{
		{
			name: "first two steps fail",
			routes: map[string]testutil.Route{
				testutil.ExpedientsByUserPath:  {Status: 500, Body: `{"error":"boom"}`},
				testutil.ExpedientsByCourtPath: {Status: 404, Body: `{}`},
			},
			passed: []bool{false, false, true},
			status: []int{500, 404, 200},
		},
		{
			name: "missing data field",
			routes: map[string]testutil.Route{
				testutil.ExpedientsByUserPath: {Status: 200, Body: `{"message":"ok"}`},
			},
			passed: []bool{false, true, true},
			status: []int{200, 200, 200},
		},
		{
			name: "signatures without documents",
			routes: map[string]testutil.Route{
				testutil.PendingSignaturesPath: {Status: 200, Body: `{"data":{}}`},
			},
			passed: []bool{true, true, false},
			status: []int{200, 200, 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := testutil.NewFakeAPI(t)
			for path, route := range tt.routes {
				api.Set(path, route)
			}
			reg := metrics.NewRegistry()
			r, _, _ := newRunner(api, reg)

			result := r.Run(context.Background(), session, FixedPacing(0))

			require.Len(t, result.Steps, 3)
			assert.False(t, result.Passed())
			for i, s := range result.Steps {
				assert.Equal(t, tt.passed[i], s.Passed, s.Step)
				assert.Equal(t, tt.status[i], s.Status, s.Step)
				if !s.Passed {
					assert.NotEmpty(t, s.Failures, s.Step)
				}
			}
			failures, ok := reg.Aggregate(metrics.CheckFailures, nil)
			require.True(t, ok)
			assert.Greater(t, failures.Value, 0.0)
		})
	}
}

func TestRun_TransportFailure(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	r, _, _ := newRunner(api, nil)
	api.Close()

	result := r.Run(context.Background(), session, FixedPacing(0))
	require.Len(t, result.Steps, 3)
	for _, s := range result.Steps {
		assert.False(t, s.Passed)
		assert.Equal(t, 0, s.Status)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	r, _, steps := newRunner(api, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := r.Run(ctx, session, DefaultPacing)
	require.Len(t, result.Steps, 3)
	for _, s := range result.Steps {
		assert.False(t, s.Passed)
		assert.Equal(t, 0, s.Status)
	}
	assert.Equal(t, 3, steps.nilResp)
	assert.Equal(t, 0, api.Calls(testutil.ExpedientsByUserPath))
}

func TestRunSteps_Catalog(t *testing.T) {
	tests := []struct {
		name    string
		catalog string
		path    string
		route   *testutil.Route
		passed  bool
	}{
		{name: "matters", catalog: "matters", path: testutil.MattersPath, passed: true},
		{name: "matters status false", catalog: "matters", path: testutil.MattersPath, route: &testutil.Route{Status: 200, Body: `{"status":false,"data":[]}`}},
		{name: "judgement types", catalog: "judgement_types", path: testutil.JudgementTypesPath, passed: true},
		{name: "legal ways", catalog: "legal_ways", path: testutil.LegalWaysPath, passed: true},
		{name: "dependences", catalog: "dependences", path: testutil.DependencesPath, passed: true},
		{name: "party types", catalog: "party_types", path: testutil.PartyTypesPath, passed: true},
		{name: "headings", catalog: "headings", path: testutil.HeadingsPath, passed: true},
		{name: "single heading", catalog: "headings", path: testutil.HeadingsPath, route: &testutil.Route{Status: 200, Body: `{"data":{"headings":[{"id":1}]}}`}},
		{name: "crimes default matter", catalog: "crimes", path: testutil.CrimesPath, passed: true},
		{name: "notifications", catalog: "push_notifications", path: testutil.NotificationsPath, passed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := testutil.NewFakeAPI(t)
			if tt.route != nil {
				api.Set(tt.path, *tt.route)
			}
			r, _, _ := newRunner(api, nil)
			spec, ok := Catalog(tt.catalog)
			require.True(t, ok)

			result := r.RunSteps(context.Background(), session, FixedPacing(0), []StepSpec{spec})
			require.Len(t, result.Steps, 1)
			assert.Equal(t, tt.passed, result.Steps[0].Passed, result.Steps[0].Failures)
			assert.Equal(t, 1, api.Calls(tt.path))
		})
	}
}

func TestCatalog(t *testing.T) {
	spec, ok := Catalog("crimes/penal")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/electronic_expedient/crimes/penal", spec.Path)

	_, ok = Catalog("crimes/")
	assert.False(t, ok)
	_, ok = Catalog("nope")
	assert.False(t, ok)

	assert.Equal(t, []string{
		"crimes", "dependences", "headings", "judgement_types", "legal_ways",
		"matters", "party_types", "push_notifications",
	}, CatalogNames())
}

func TestWorkflowSteps_Parameters(t *testing.T) {
	steps := WorkflowSteps(3, 25)
	require.Len(t, steps, 3)
	assert.Equal(t, "/api/v1/electronic_expedients/find/user/{userId}/1/10?page=3", steps[0].Path)
	assert.Equal(t, "/api/v1/electronic_expedients/find_by_court/25?page=3", steps[1].Path)

	defaults := WorkflowSteps(0, 0)
	assert.Equal(t, "/api/v1/electronic_expedients/find_by_court/10?page=1", defaults[1].Path)

	assert.Equal(t, "/x/a%2Fb", expand("/x/{userId}", &auth.Session{UserID: "a/b"}))
}
