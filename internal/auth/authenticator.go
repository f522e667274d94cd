package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal/check"
	"github.com/nilo-qa/nilo-loadtest/internal/httpclient"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
)

const (
	// DefaultLoginPath is the sign-in endpoint.
	DefaultLoginPath = "/api/v1/auth/sign_in"
	// ValidatePath answers 200 for a usable token.
	ValidatePath = "/api/v1/auth/validate"

	loginEndpoint    = "login"
	validateEndpoint = "validate"
	slowLogin        = 3 * time.Second
)

// Reason classifies a failed login.
type Reason string

const (
	ReasonRejected      Reason = "rejected"
	ReasonMalformed     Reason = "malformed"
	ReasonMissingToken  Reason = "missing_token"
	ReasonMissingUserID Reason = "missing_user_id"
	ReasonTransport     Reason = "transport"
)

// AuthError is returned for every failed login. Status is 0 when no HTTP
// response was received.
type AuthError struct {
	Status  int
	Reason  Reason
	Snippet string
	Err     error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("login %s (status %d)", e.Reason, e.Status)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Snippet != "" {
		msg += ": " + e.Snippet
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

var loginChecks = check.Set{
	check.Status{Expect: http.StatusOK},
	check.HasField{Path: "data.jwt"},
	check.HasField{Path: "data.user.id"},
	check.MaxDuration{Limit: slowLogin},
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	AppID    int    `json:"app_id,omitempty"`
}

// Authenticator performs logins against one environment.
type Authenticator struct {
	BaseURL   string
	LoginPath string
	// Headers are sent with the login request; they are never modified.
	Headers  map[string]string
	Client   httpclient.Client
	Metrics  metrics.Sink
	Observer Observer

	now func() time.Time
}

// Authenticate sends one login request for creds. It returns a Session only
// when the API answered 200 with both data.jwt and data.user.id; otherwise
// it returns an *AuthError.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	sink := a.sink()
	body, _ := json.Marshal(loginRequest{Email: creds.Email, Password: creds.Password, AppID: creds.AppID})

	path := a.LoginPath
	if path == "" {
		path = DefaultLoginPath
	}
	resp := a.Client.Do(ctx, &httpclient.Request{
		Method:  http.MethodPost,
		URL:     a.BaseURL + path,
		Headers: a.Headers,
		Body:    body,
		Name:    loginEndpoint,
	})

	sink.Add(metrics.LoginDuration, metrics.Millis(resp.Duration))
	metrics.RecordHTTP(sink, loginEndpoint, resp)
	metrics.RecordChecks(sink, loginEndpoint, loginChecks.Run(resp))

	s, authErr := a.session(creds, resp)
	if authErr != nil {
		sink.Add(metrics.LoginSuccessRate, 0)
		sink.Add(metrics.LoginFailures, 1, metrics.T("reason", string(authErr.Reason)))
		a.observer().LoginFailed(creds.Email, authErr)
		return nil, authErr
	}
	sink.Add(metrics.LoginSuccessRate, 1)
	return s, nil
}

func (a *Authenticator) session(creds Credentials, resp *httpclient.Response) (*Session, *AuthError) {
	if resp.Failed() {
		return nil, &AuthError{Reason: ReasonTransport, Err: resp.Err}
	}
	if resp.Status != http.StatusOK {
		return nil, &AuthError{Status: resp.Status, Reason: ReasonRejected, Snippet: resp.Snippet()}
	}

	shape, err := check.Validate(resp.Body)
	if err != nil {
		return nil, &AuthError{Status: resp.Status, Reason: ReasonMalformed, Snippet: resp.Snippet(), Err: err}
	}
	if shape.Value("data.jwt") == nil {
		return nil, &AuthError{Status: resp.Status, Reason: ReasonMissingToken, Snippet: resp.Snippet()}
	}
	if shape.Value("data.user.id") == nil {
		return nil, &AuthError{Status: resp.Status, Reason: ReasonMissingUserID, Snippet: resp.Snippet()}
	}

	s := &Session{
		Token:      shape.String("data.jwt"),
		UserID:     shape.String("data.user.id"),
		Email:      creds.Email,
		ObtainedAt: a.clock(),
		Valid:      true,
	}
	if claims, ok := ParseClaims(s.Token); ok {
		s.ExpiresAt = claims.ExpiresAt
	}
	return s, nil
}

// Validate reports whether the API still accepts token.
func (a *Authenticator) Validate(ctx context.Context, token string) (bool, *httpclient.Response) {
	resp := a.Client.Do(ctx, &httpclient.Request{
		Method:  http.MethodGet,
		URL:     a.BaseURL + ValidatePath,
		Headers: AuthHeaders(a.Headers, token),
		Name:    validateEndpoint,
	})
	metrics.RecordHTTP(a.sink(), validateEndpoint, resp)
	return resp.Status == http.StatusOK, resp
}

// AuthHeaders returns a copy of base carrying token as the raw
// Authorization value. The API does not expect a "Bearer" prefix.
func AuthHeaders(base map[string]string, token string) map[string]string {
	out := make(map[string]string, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out["Authorization"] = token
	return out
}

func (a *Authenticator) sink() metrics.Sink {
	if a.Metrics == nil {
		return metrics.Discard
	}
	return a.Metrics
}

func (a *Authenticator) observer() Observer {
	if a.Observer == nil {
		return NopObserver{}
	}
	return a.Observer
}

func (a *Authenticator) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}
