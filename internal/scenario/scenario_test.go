package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal/auth"
	"github.com/nilo-qa/nilo-loadtest/internal/engine"
	"github.com/nilo-qa/nilo-loadtest/internal/export"
	"github.com/nilo-qa/nilo-loadtest/internal/httpclient"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
	"github.com/nilo-qa/nilo-loadtest/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type users []auth.Credentials

func (u users) ForVU(vuID int) auth.Credentials {
	return u[(vuID-1)%len(u)]
}

type sleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleeper) contains(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.waits {
		if w == d {
			return true
		}
	}
	return false
}

var testUsers = users{{Email: "a@x.com", Password: "pw", AppID: 3}}

func options(api *testutil.FakeAPI, reg *metrics.Registry, sl *sleeper, logs *bytes.Buffer) Options {
	return Options{
		BaseURL:  api.URL,
		FrontURL: api.URL + testutil.FrontPath,
		Headers:  map[string]string{"Content-Type": "application/json"},
		Client:   httpclient.New(2 * time.Second),
		Metrics:  reg,
		Users:    testUsers,
		Observer: NewLogObserver(reg).WithLogger(zerolog.New(logs)),
		Sleeper:  sl.sleep,
	}
}

func counter(t *testing.T, reg *metrics.Registry, name string) float64 {
	t.Helper()
	agg, ok := reg.Aggregate(name, nil)
	if !ok {
		return 0
	}
	return agg.Value
}

func TestFunctionary_ReusesSession(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	reg := metrics.NewRegistry()
	sl := &sleeper{}
	var logs bytes.Buffer

	sc, err := New(Functionary, options(api, reg, sl, &logs))
	require.NoError(t, err)
	require.NotNil(t, sc.Cache)

	ctx := context.Background()
	sc.Iterate(ctx, engine.VU{ID: 1})
	sc.Iterate(ctx, engine.VU{ID: 1, Iteration: 1})

	assert.Equal(t, 1, api.Calls(testutil.LoginPath))
	assert.Equal(t, 2, api.Calls(testutil.ExpedientsByUserPath))
	assert.Equal(t, 2, api.Calls(testutil.ExpedientsByCourtPath))
	assert.Equal(t, 2, api.Calls(testutil.PendingSignaturesPath))

	s, ok := sc.Cache.Get(1)
	require.True(t, ok)
	assert.Equal(t, 1, s.VirtualUserID)
	assert.Equal(t, "T1", s.Token)
	assert.Equal(t, testutil.FakeUserID, s.UserID)

	assert.Equal(t, 1.0, counter(t, reg, metrics.TokenReuse))
	assert.Contains(t, logs.String(), "Initial login")
	assert.Contains(t, logs.String(), "Reusing JWT")

	// three step waits plus one think time per iteration
	assert.Len(t, sl.waits, 8)
}

func TestFunctionary_AuthFailure(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Set(testutil.LoginPath, testutil.Route{Status: 500, Body: `{"message":"down"}`})
	reg := metrics.NewRegistry()
	sl := &sleeper{}
	var logs bytes.Buffer

	sc, err := New(Functionary, options(api, reg, sl, &logs))
	require.NoError(t, err)

	sc.Iterate(context.Background(), engine.VU{ID: 1})

	assert.Equal(t, 0, sc.Cache.Len())
	assert.Equal(t, 0, api.Calls(testutil.ExpedientsByUserPath))
	assert.True(t, sl.contains(AuthBackoff))
	assert.Equal(t, 1.0, counter(t, reg, metrics.LoginFailures))
	assert.Contains(t, logs.String(), "Login failed")
	assert.Contains(t, logs.String(), "skipping iteration")

	api.Set(testutil.LoginPath, testutil.DefaultRoutes()[testutil.LoginPath])
	sc.Iterate(context.Background(), engine.VU{ID: 1, Iteration: 1})
	assert.Equal(t, 1, sc.Cache.Len())
	assert.Equal(t, 1, api.Calls(testutil.ExpedientsByUserPath))
}

func TestCitizen_LogsInEveryIteration(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	reg := metrics.NewRegistry()
	sl := &sleeper{}
	var logs bytes.Buffer

	sc, err := New(Citizen, options(api, reg, sl, &logs))
	require.NoError(t, err)
	assert.Nil(t, sc.Cache)

	for i := 0; i < 3; i++ {
		sc.Iterate(context.Background(), engine.VU{ID: 2, Iteration: i})
	}

	assert.Equal(t, 3, api.Calls(testutil.LoginPath))
	assert.Equal(t, 0, api.Calls(testutil.ExpedientsByUserPath))
	assert.Equal(t, 0.0, counter(t, reg, metrics.TokenReuse))
	rate, ok := reg.Aggregate(metrics.LoginSuccessRate, nil)
	require.True(t, ok)
	assert.Equal(t, 1.0, rate.Rate)
}

func TestCatalogs(t *testing.T) {
	tests := []struct {
		catalog string
		path    string
	}{
		{"", testutil.MattersPath},
		{"headings", testutil.HeadingsPath},
		{"crimes", testutil.CrimesPath},
		{"push_notifications", testutil.NotificationsPath},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			api := testutil.NewFakeAPI(t)
			reg := metrics.NewRegistry()
			var logs bytes.Buffer
			o := options(api, reg, &sleeper{}, &logs)
			o.Catalog = tt.catalog

			sc, err := New(Catalogs, o)
			require.NoError(t, err)
			sc.Iterate(context.Background(), engine.VU{ID: 1})
			sc.Iterate(context.Background(), engine.VU{ID: 1, Iteration: 1})

			assert.Equal(t, 1, api.Calls(testutil.LoginPath))
			assert.Equal(t, 2, api.Calls(tt.path))
			checks, ok := reg.Aggregate(metrics.Checks, nil)
			require.True(t, ok)
			assert.Equal(t, 1.0, checks.Rate)
		})
	}
}

func TestFront(t *testing.T) {
	tests := []struct {
		name   string
		route  *testutil.Route
		passed bool
	}{
		{name: "spa root", passed: true},
		{name: "no root", route: &testutil.Route{Status: 200, Body: "<html></html>"}},
		{name: "server error", route: &testutil.Route{Status: 502, Body: "<html>bad gateway</html>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := testutil.NewFakeAPI(t)
			if tt.route != nil {
				api.Set(testutil.FrontPath, *tt.route)
			}
			reg := metrics.NewRegistry()
			sl := &sleeper{}
			var logs bytes.Buffer

			sc, err := New(Front, options(api, reg, sl, &logs))
			require.NoError(t, err)
			sc.Iterate(context.Background(), engine.VU{ID: 1})

			reqs := api.Requests(testutil.FrontPath)
			require.Len(t, reqs, 1)
			assert.Equal(t, "text/html", reqs[0].Headers.Get("Accept"))
			assert.Equal(t, 0, api.Calls(testutil.LoginPath))
			assert.Equal(t, []time.Duration{time.Second}, sl.waits)

			checks, ok := reg.Aggregate(metrics.Checks, map[string]string{"endpoint": "front"})
			require.True(t, ok)
			if tt.passed {
				assert.Equal(t, 1.0, checks.Rate)
			} else {
				assert.Less(t, checks.Rate, 1.0)
				assert.Contains(t, logs.String(), "Page check failed")
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	var logs bytes.Buffer
	base := options(api, metrics.NewRegistry(), &sleeper{}, &logs)

	_, err := New("judge", base)
	assert.ErrorContains(t, err, "unknown scenario")

	noUsers := base
	noUsers.Users = nil
	_, err = New(Functionary, noUsers)
	assert.Error(t, err)

	badCatalog := base
	badCatalog.Catalog = "planets"
	_, err = New(Catalogs, badCatalog)
	assert.ErrorContains(t, err, "unknown catalog")

	noFront := base
	noFront.FrontURL = ""
	noFront.Users = nil
	_, err = New(Front, noFront)
	assert.Error(t, err)

	assert.Equal(t, []string{"catalogs", "citizen", "front", "functionary"}, Names())
}

func TestLogObserver_Trace(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Set(testutil.PendingSignaturesPath, testutil.Route{Status: 500, Body: `{"error":"boom"}`})
	reg := metrics.NewRegistry()
	var logs, trace bytes.Buffer
	tw := export.NewTraceWriter(&trace)

	o := options(api, reg, &sleeper{}, &logs)
	o.Observer = NewLogObserver(reg).WithLogger(zerolog.New(&logs)).WithTrace(tw)
	sc, err := New(Functionary, o)
	require.NoError(t, err)

	sc.Iterate(context.Background(), engine.VU{ID: 1})
	require.NoError(t, tw.Err())

	lines := strings.Split(strings.TrimSpace(trace.String()), "\n")
	require.Len(t, lines, 3)

	var events []TraceEvent
	for _, line := range lines {
		var ev TraceEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		events = append(events, ev)
	}
	assert.Equal(t, "step", events[0].Type)
	assert.True(t, events[0].Passed)
	assert.True(t, events[1].Passed)
	assert.False(t, events[2].Passed)
	assert.Equal(t, 500, events[2].Status)
	assert.Equal(t, `{"error":"boom"}`, events[2].Body)
	assert.Equal(t, "a@x.com", events[2].Email)

	assert.Contains(t, logs.String(), `"endpoint":"pending_signatures"`)
	assert.Contains(t, logs.String(), "Step failed")
}
