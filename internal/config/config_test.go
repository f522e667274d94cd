package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal"
	"github.com/nilo-qa/nilo-loadtest/internal/auth"
	"github.com/nilo-qa/nilo-loadtest/internal/engine"
	"github.com/nilo-qa/nilo-loadtest/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"average", "load", "smoke", "soak", "spike", "stress"}, c.StrategyNames())

	smoke := c.Strategies["smoke"]
	assert.Equal(t, "smoke", smoke.Name)
	assert.Equal(t, engine.Fixed(2, time.Minute), smoke.Profile())
	assert.Equal(t, []string{"rate<0.05"}, smoke.Thresholds["http_req_failed"])

	stress := c.Strategies["stress"]
	assert.Equal(t, 30, stress.Profile().MaxVUs())
	assert.Equal(t, 12*time.Minute, stress.Profile().TotalDuration())

	spike := c.Strategies["spike"]
	require.Len(t, spike.Stages, 4)
	assert.Equal(t, engine.Stage{Duration: 30 * time.Second, Target: 5}, spike.Stages[0])
	assert.Equal(t, []string{"p(95)<5000"}, spike.Thresholds["http_req_duration"])

	soak := c.Strategies["soak"]
	assert.Equal(t, 34*time.Minute, soak.Profile().TotalDuration())

	assert.Equal(t, 3, c.Applications["functionary"].ID)
	assert.Equal(t, 2, c.Applications["citizen"].ID)
	assert.Equal(t, "citizen", c.Applications["citizen"].Scenario)
	assert.Equal(t, 5000, c.Environments["production"].TimeoutMS)
}

func TestEnvironment(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name      string
		env       map[string]string
		wantName  string
		wantFound bool
		wantURL   string
		wantAuth  string
		timeout   time.Duration
	}{
		{name: "sandbox", wantName: "sandbox", wantFound: true, wantURL: "https://api-sandbox.example.com", wantAuth: "Bearer default-sandbox-token", timeout: 10 * time.Second},
		{name: "local", wantName: "local", wantFound: true, wantURL: "http://localhost:3000", wantAuth: "Bearer local-token", timeout: 15 * time.Second},
		{name: "staging", wantName: "sandbox", wantURL: "https://api-sandbox.example.com", wantAuth: "Bearer default-sandbox-token", timeout: 10 * time.Second},
		{
			name:      "production",
			env:       map[string]string{"API_BASE_URL_PRODUCTION": "https://prod.internal/", "API_AUTHORIZATION_PRODUCTION": "Bearer real"},
			wantName:  "production",
			wantFound: true,
			wantURL:   "https://prod.internal",
			wantAuth:  "Bearer real",
			timeout:   5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			env, found := c.Environment(tt.name)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.wantName, env.Name)
			assert.Equal(t, tt.wantURL, env.APIBaseURL)
			assert.Equal(t, tt.wantAuth, env.Authorization)
			assert.Equal(t, tt.timeout, env.Timeout())

			h := env.Headers()
			assert.Equal(t, "application/json", h["Content-Type"])
			assert.Equal(t, "application/json, text/plain, */*", h["Accept"])
			assert.Equal(t, UserAgent, h["User-Agent"])
			assert.Equal(t, tt.wantAuth, h["Authorization"])
		})
	}
}

func TestFallbacks(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	app, ok := c.Application("judge")
	assert.False(t, ok)
	assert.Equal(t, "functionary", app.Name)

	s, ok := c.Strategy("chaos")
	assert.False(t, ok)
	assert.Equal(t, "smoke", s.Name)

	s, ok = c.Strategy("load")
	assert.True(t, ok)
	assert.Equal(t, "load", s.Name)
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "strategies.yaml"), []byte(`
smoke:
  vus: 1
  duration: 10s
  thresholds:
    checks: ["rate>0.5"]
burst:
  stages:
    - {duration: 5s, target: 3}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "environments.yaml"), []byte(`
qa:
  api_base_url: http://qa.local
  timeout_ms: 2000
`), 0o644))

	c, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, engine.Fixed(1, 10*time.Second), c.Strategies["smoke"].Profile())
	assert.Equal(t, []string{"rate>0.5"}, c.Strategies["smoke"].Thresholds["checks"])
	assert.Contains(t, c.Strategies, "burst")
	assert.Contains(t, c.Strategies, "stress")

	qa, found := c.Environment("qa")
	assert.True(t, found)
	assert.Equal(t, "http://qa.local", qa.APIBaseURL)
	_, found = c.Environment("sandbox")
	assert.True(t, found)
}

func TestLoad_InvalidOverride(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "smoke: [unclosed"},
		{"no vus", "broken:\n  duration: 1m\n"},
		{"bad threshold", "smoke:\n  vus: 1\n  duration: 1m\n  thresholds:\n    checks: [\"ratio>1\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "strategies.yaml"), []byte(tt.yaml), 0o644))

			_, err := Load(dir)
			var cfgErr *internal.ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, "strategies", cfgErr.Key)
		})
	}
}

func TestThresholds(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	ths, err := Thresholds(c.Strategies["smoke"], c.Applications["functionary"])
	require.NoError(t, err)

	var rendered []string
	for _, th := range ths {
		rendered = append(rendered, th.String())
	}
	assert.Equal(t, []string{
		"checks rate>0.95",
		"expedients_fetch_duration p(95)<2000",
		"http_req_duration p(95)<2000",
		"http_req_duration p(99)<3000",
		"http_req_duration{endpoint:expedients_by_court} p(95)<2000",
		"http_req_duration{endpoint:expedients_by_user} p(95)<2000",
		"http_req_duration{endpoint:pending_signatures} p(95)<2000",
		"http_req_failed rate<0.05",
		"login_duration p(95)<2000",
		"login_success_rate rate>0.95",
		"signatures_fetch_duration p(95)<2000",
	}, rendered)

	_, err = Thresholds(Strategy{Thresholds: map[string][]string{"checks": {"nope"}}}, Application{})
	assert.Error(t, err)
}

func writeUsers(t *testing.T, name, content string) string {
	t.Helper()
	return testutil.WriteFile(t, t.TempDir(), name, content)
}

func TestLoadUsers(t *testing.T) {
	yamlPath := writeUsers(t, "users.sandbox.yaml", `
users:
  - {email: a@x.com, password: pw, app_id: 3}
  - {email: b@x.com, password: pw, app_id: 2}
  - {email: c@x.com, password: pw}
`)
	users, err := LoadUsers(yamlPath, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, users.Len())
	assert.Equal(t, auth.Credentials{Email: "a@x.com", Password: "pw", AppID: 3}, users.ForVU(1))
	assert.Equal(t, auth.Credentials{Email: "c@x.com", Password: "pw", AppID: 3}, users.ForVU(2))

	jsonPath := writeUsers(t, "users.local.json", `{"users":[{"email":"z@x.com","password":"pw","app_id":2}]}`)
	users, err = LoadUsers(jsonPath, 2)
	require.NoError(t, err)
	assert.Equal(t, "z@x.com", users.ForVU(5).Email)

	_, err = LoadUsers(jsonPath, 3)
	assert.ErrorIs(t, err, ErrNoUsers)

	_, err = LoadUsers(filepath.Join(t.TempDir(), "missing.yaml"), 3)
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := writeUsers(t, "users.yaml", "users:\n  - {email: a@x.com}\n")
	_, err = LoadUsers(bad, 3)
	var cfgErr *internal.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestUsers_ForVU(t *testing.T) {
	users := NewUsers(
		auth.Credentials{Email: "u0"},
		auth.Credentials{Email: "u1"},
		auth.Credentials{Email: "u2"},
	)

	tests := []struct {
		vu   int
		want string
	}{
		{1, "u0"},
		{2, "u1"},
		{3, "u2"},
		{4, "u0"},
		{5, "u1"},
		{30, "u2"},
		{0, "u2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, users.ForVU(tt.vu).Email, "VU %d", tt.vu)
	}

	assert.Panics(t, func() { NewUsers() })
}

func TestDefaultUsersPath(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	assert.Equal(t, filepath.Join("data", "users.sandbox.yaml"), DefaultUsersPath("sandbox"))

	require.NoError(t, os.MkdirAll("data", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("data", "users.local.json"), []byte(`{}`), 0o644))
	assert.Equal(t, filepath.Join("data", "users.local.json"), DefaultUsersPath("local"))
}

func TestGetEnv(t *testing.T) {
	t.Setenv("NILO_TEST_VALUE", "x")
	assert.Equal(t, "x", GetEnv("NILO_TEST_VALUE", "d"))
	assert.Equal(t, "d", GetEnv("NILO_TEST_UNSET_VALUE", "d"))
}
