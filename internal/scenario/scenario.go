// Package scenario builds the per-application iteration functions run by
// the engine. Each scenario wires the authenticator, the session cache and
// the workflow runner for one kind of virtual user.
package scenario

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal/auth"
	"github.com/nilo-qa/nilo-loadtest/internal/check"
	"github.com/nilo-qa/nilo-loadtest/internal/engine"
	"github.com/nilo-qa/nilo-loadtest/internal/httpclient"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
	"github.com/nilo-qa/nilo-loadtest/internal/workflow"
)

// Scenario names.
const (
	Functionary = "functionary"
	Citizen     = "citizen"
	Catalogs    = "catalogs"
	Front       = "front"
)

// AuthBackoff is the pause after a failed login before the iteration ends.
const AuthBackoff = 5 * time.Second

const frontEndpoint = "front"

// ThinkTime is the pause between two iterations of a functionary VU.
var ThinkTime = workflow.Pacing{Delay: 2 * time.Second, Variance: 0.3}

// FrontPacing is the pause after each front page load.
var FrontPacing = workflow.FixedPacing(time.Second)

var frontChecks = check.Set{
	check.Status{Expect: http.StatusOK},
	check.BodyContains{Text: `<div id="root"`},
}

var frontHeaders = map[string]string{
	"Accept":     "text/html",
	"User-Agent": "Mozilla/5.0",
}

// Users yields the credentials of a VU.
type Users interface {
	ForVU(vuID int) auth.Credentials
}

// Options configures a scenario.
type Options struct {
	BaseURL   string
	FrontURL  string
	LoginPath string
	Headers   map[string]string
	Client    httpclient.Client
	Metrics   metrics.Sink
	Users     Users
	Observer  *LogObserver
	// Catalog names the catalog endpoint of the catalogs scenario; see
	// workflow.Catalog.
	Catalog string
	// StepPacing is the wait before each workflow step.
	StepPacing workflow.Pacing
	// ThinkTime is the wait between iterations.
	ThinkTime workflow.Pacing
	Sleeper   workflow.SleepFunc
}

// Scenario is a ready-to-run iteration function plus the session cache it
// owns, if any.
type Scenario struct {
	Name    string
	Iterate engine.IterationFunc
	Cache   *auth.SessionCache
}

type builder func(o Options) (*Scenario, error)

var builders = map[string]builder{
	Functionary: newFunctionary,
	Citizen:     newCitizen,
	Catalogs:    newCatalogs,
	Front:       newFront,
}

// Names lists the known scenarios.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named scenario.
func New(name string, o Options) (*Scenario, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	if o.Client == nil {
		o.Client = httpclient.New(httpclient.DefaultTimeout)
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Discard
	}
	if o.Observer == nil {
		o.Observer = NewLogObserver(o.Metrics)
	}
	if o.Sleeper == nil {
		o.Sleeper = engine.Sleep
	}
	if name != Front && o.Users == nil {
		return nil, fmt.Errorf("scenario %s needs users", name)
	}
	return build(o)
}

func (o Options) authenticator() *auth.Authenticator {
	return &auth.Authenticator{
		BaseURL:   o.BaseURL,
		LoginPath: o.LoginPath,
		Headers:   o.Headers,
		Client:    o.Client,
		Metrics:   o.Metrics,
		Observer:  o.Observer,
	}
}

func (o Options) runner() *workflow.Runner {
	return &workflow.Runner{
		BaseURL:  o.BaseURL,
		Headers:  o.Headers,
		Client:   o.Client,
		Metrics:  o.Metrics,
		Observer: o.Observer,
		Sleeper:  o.Sleeper,
	}
}

// cachedLogin returns the VU's session, logging in on a miss. After a
// failed login it sleeps AuthBackoff and returns nil.
func (o Options) cachedLogin(ctx context.Context, vu engine.VU, cache *auth.SessionCache, a *auth.Authenticator) *auth.Session {
	s, err := cache.GetOrCreate(vu.ID, o.Users.ForVU(vu.ID), func(c auth.Credentials) (*auth.Session, error) {
		return a.Authenticate(ctx, c)
	})
	if err != nil {
		o.Observer.IterationSkipped(vu, err)
		_ = o.Sleeper(ctx, AuthBackoff)
		return nil
	}
	return s
}

func newFunctionary(o Options) (*Scenario, error) {
	cache := auth.NewSessionCache(o.Observer)
	a := o.authenticator()
	r := o.runner()
	stepPacing := orDefault(o.StepPacing, workflow.DefaultPacing)
	think := orDefault(o.ThinkTime, ThinkTime)

	iterate := func(ctx context.Context, vu engine.VU) {
		s := o.cachedLogin(ctx, vu, cache, a)
		if s == nil {
			return
		}
		r.Run(ctx, s, stepPacing)
		_ = o.Sleeper(ctx, think.Next())
	}
	return &Scenario{Name: Functionary, Iterate: iterate, Cache: cache}, nil
}

// newCitizen logs in on every iteration and keeps no session.
func newCitizen(o Options) (*Scenario, error) {
	a := o.authenticator()
	iterate := func(ctx context.Context, vu engine.VU) {
		s, err := a.Authenticate(ctx, o.Users.ForVU(vu.ID))
		if err != nil {
			o.Observer.IterationSkipped(vu, err)
			return
		}
		s.VirtualUserID = vu.ID
		o.Observer.LoggedIn(s)
		_ = o.Sleeper(ctx, o.ThinkTime.Next())
	}
	return &Scenario{Name: Citizen, Iterate: iterate}, nil
}

func newCatalogs(o Options) (*Scenario, error) {
	name := o.Catalog
	if name == "" {
		name = "matters"
	}
	spec, ok := workflow.Catalog(name)
	if !ok {
		return nil, fmt.Errorf("unknown catalog %q (known: %s)", name, strings.Join(workflow.CatalogNames(), ", "))
	}

	cache := auth.NewSessionCache(o.Observer)
	a := o.authenticator()
	r := o.runner()
	specs := []workflow.StepSpec{spec}

	iterate := func(ctx context.Context, vu engine.VU) {
		s := o.cachedLogin(ctx, vu, cache, a)
		if s == nil {
			return
		}
		r.RunSteps(ctx, s, o.StepPacing, specs)
		_ = o.Sleeper(ctx, o.ThinkTime.Next())
	}
	return &Scenario{Name: Catalogs, Iterate: iterate, Cache: cache}, nil
}

func newFront(o Options) (*Scenario, error) {
	if o.FrontURL == "" {
		return nil, fmt.Errorf("scenario %s needs a front URL", Front)
	}
	pacing := orDefault(o.ThinkTime, FrontPacing)
	iterate := func(ctx context.Context, vu engine.VU) {
		resp := o.Client.Do(ctx, &httpclient.Request{
			Method:  http.MethodGet,
			URL:     o.FrontURL,
			Headers: frontHeaders,
			Name:    frontEndpoint,
		})
		report := frontChecks.Run(resp)
		metrics.RecordHTTP(o.Metrics, frontEndpoint, resp)
		metrics.RecordChecks(o.Metrics, frontEndpoint, report)
		o.Observer.PageLoaded(vu, resp, report)
		_ = o.Sleeper(ctx, pacing.Next())
	}
	return &Scenario{Name: Front, Iterate: iterate}, nil
}

func orDefault(p, def workflow.Pacing) workflow.Pacing {
	if p == (workflow.Pacing{}) {
		return def
	}
	return p
}
