package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Paths served by FakeAPI with their default responses.
const (
	LoginPath             = "/api/v1/auth/sign_in"
	ValidatePath          = "/api/v1/auth/validate"
	ExpedientsByUserPath  = "/api/v1/electronic_expedients/find/user/42/1/10"
	ExpedientsByCourtPath = "/api/v1/electronic_expedients/find_by_court/10"
	PendingSignaturesPath = "/api/v1/signature_documents/get_documents_pending_signature_by_user/10"
	NotificationsPath     = "/api/v1/push_notifications/20"
	MattersPath           = "/api/v1/matters/get_list"
	JudgementTypesPath    = "/api/v1/government_books/catalogs/judgement_types"
	LegalWaysPath         = "/api/v1/government_books/catalogs/legal_ways"
	DependencesPath       = "/api/v1/government_books/catalogs/dependences"
	PartyTypesPath        = "/api/v1/partyType/get_all"
	CrimesPath            = "/api/v1/electronic_expedient/crimes/familiar"
	HeadingsPath          = "/api/v1/catalogs/headings"
	FrontPath             = "/"

	// FakeUserID is the user id returned by the default login route.
	FakeUserID = "42"
)

// Route is a canned response.
type Route struct {
	Status int
	Body   string
	Delay  time.Duration
}

// RecordedRequest is what FakeAPI saw for one call.
type RecordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    string
}

// FakeAPI is an httptest server that mimics the business API. Routes are
// matched on the URL path; unknown paths answer 404.
type FakeAPI struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string]Route
	requests map[string][]RecordedRequest
}

// NewFakeAPI starts a FakeAPI with default routes and closes it when the
// test ends.
func NewFakeAPI(t testing.TB) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		routes:   DefaultRoutes(),
		requests: make(map[string][]RecordedRequest),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// DefaultRoutes returns the healthy responses for every known path.
func DefaultRoutes() map[string]Route {
	ok := func(body string) Route { return Route{Status: http.StatusOK, Body: body} }
	return map[string]Route{
		LoginPath:             ok(`{"data":{"jwt":"T1","user":{"id":"42","email":"a@x.com"}}}`),
		ValidatePath:          ok(`{"status":true}`),
		ExpedientsByUserPath:  ok(`{"data":{"expedients":[{"id":1},{"id":2},{"id":3}]}}`),
		ExpedientsByCourtPath: ok(`{"data":{"expedients":[{"id":9}]}}`),
		PendingSignaturesPath: ok(`{"data":{"signatureDocuments":[{"id":1},{"id":2}]}}`),
		NotificationsPath:     ok(`{"data":{"notifications":[{"id":1}]}}`),
		MattersPath:           ok(`{"status":true,"data":[{"id":1,"name":"familiar"}]}`),
		JudgementTypesPath:    ok(`{"data":{"judgementTypes":[{"id":1}]}}`),
		LegalWaysPath:         ok(`{"data":{"legalWays":[{"id":1}]}}`),
		DependencesPath:       ok(`{"data":{"dependences":[{"id":1}]}}`),
		PartyTypesPath:        ok(`{"data":{"partyTypes":[{"id":1}]}}`),
		CrimesPath:            ok(`{"data":{"crimes":[{"id":1}]}}`),
		HeadingsPath:          ok(`{"data":{"headings":[{"id":1},{"id":2}]}}`),
		FrontPath:             ok(`<!doctype html><html><body><div id="root"></div></body></html>`),
	}
}

// Set replaces the response for path.
func (f *FakeAPI) Set(path string, r Route) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = r
}

// Calls returns how many requests hit path.
func (f *FakeAPI) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests[path])
}

// Requests returns the requests received for path, oldest first.
func (f *FakeAPI) Requests(path string) []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordedRequest, len(f.requests[path]))
	copy(out, f.requests[path])
	return out
}

func (f *FakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests[r.URL.Path] = append(f.requests[r.URL.Path], RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: r.Header.Clone(),
		Body:    string(body),
	})
	route, ok := f.routes[r.URL.Path]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if route.Delay > 0 {
		select {
		case <-time.After(route.Delay):
		case <-r.Context().Done():
			return
		}
	}
	if route.Body != "" && route.Body[0] == '<' {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(route.Status)
	_, _ = io.WriteString(w, route.Body)
}
