package testutil

import (
	"fmt"
	"strings"
	"testing"
)

// User is a test account written into users fixtures
type User struct {
	Email    string
	Password string
	AppID    int
}

// CreateUsersFixture writes dir/data/users.<env>.yaml and returns its path
func CreateUsersFixture(t *testing.T, dir, env string, users ...User) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("users:\n")
	for _, u := range users {
		fmt.Fprintf(&b, "  - email: %q\n    password: %q\n", u.Email, u.Password)
		if u.AppID != 0 {
			fmt.Fprintf(&b, "    app_id: %d\n", u.AppID)
		}
	}
	return WriteFile(t, dir, "data/users."+env+".yaml", b.String())
}

// CreateConfigFixture writes a config directory pointing the "local"
// environment at baseURL, with a tiny strategy named "quick"
func CreateConfigFixture(t *testing.T, dir, baseURL string) string {
	t.Helper()
	WriteFile(t, dir, "environments.yaml", fmt.Sprintf(`local:
  description: test server
  api_base_url: %s
  authorization: Bearer test-token
  front_url: %s/
  timeout_ms: 2000
`, baseURL, baseURL))
	WriteFile(t, dir, "strategies.yaml", `quick:
  description: single VU for a moment
  vus: 1
  duration: 300ms
  graceful_stop: 1s
  thresholds:
    http_req_failed: ["rate<0.5"]
`)
	return dir
}
