package workflow

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal/check"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
)

// Step names, also used as the endpoint tag of every metric a step records.
const (
	StepExpedientsByUser  = "expedients_by_user"
	StepExpedientsByCourt = "expedients_by_court"
	StepPendingSignatures = "pending_signatures"
)

// SlowResponse is the advisory latency limit every step checks against.
const SlowResponse = 2 * time.Second

// Count records the length of an array in the response body.
type Count struct {
	Path   string
	Metric string
}

// StepSpec declares one API call of a workflow. Path may contain
// {userId}, replaced with the session's user id.
type StepSpec struct {
	Name   string
	Path   string
	Checks check.Set
	// Trend is an extra duration metric recorded for this step.
	Trend  string
	Counts []Count
}

func standardChecks(extra ...check.Check) check.Set {
	set := check.Set{
		check.Status{Expect: http.StatusOK},
		check.HasField{Path: "data"},
	}
	set = append(set, extra...)
	return append(set, check.MaxDuration{Limit: SlowResponse})
}

// WorkflowSteps returns the three business calls a functionary makes after
// logging in, in order.
func WorkflowSteps(page, courtLimit int) []StepSpec {
	if page < 1 {
		page = 1
	}
	if courtLimit < 1 {
		courtLimit = 10
	}
	return []StepSpec{
		{
			Name:   StepExpedientsByUser,
			Path:   fmt.Sprintf("/api/v1/electronic_expedients/find/user/{userId}/1/10?page=%d", page),
			Checks: standardChecks(),
			Trend:  metrics.ExpedientsFetchDuration,
			Counts: []Count{{Path: "data.expedients", Metric: metrics.ExpedientsFetched}},
		},
		{
			Name:   StepExpedientsByCourt,
			Path:   fmt.Sprintf("/api/v1/electronic_expedients/find_by_court/%d?page=%d", courtLimit, page),
			Checks: standardChecks(),
			Trend:  metrics.CourtExpedientsDuration,
		},
		{
			Name:   StepPendingSignatures,
			Path:   "/api/v1/signature_documents/get_documents_pending_signature_by_user/10",
			Checks: standardChecks(check.HasField{Path: "data.signatureDocuments"}),
			Trend:  metrics.SignaturesFetchDuration,
			Counts: []Count{{Path: "data.signatureDocuments", Metric: metrics.SignaturesPendingCount}},
		},
	}
}

// DefaultMatter is the crimes catalog queried when none is given.
const DefaultMatter = "familiar"

var catalog = map[string]StepSpec{
	"matters": {
		Name:   "matters",
		Path:   "/api/v1/matters/get_list",
		Checks: standardChecks(check.FieldEquals{Path: "status", Value: true}),
	},
	"judgement_types": {
		Name:   "judgement_types",
		Path:   "/api/v1/government_books/catalogs/judgement_types",
		Checks: standardChecks(check.HasField{Path: "data.judgementTypes"}),
	},
	"legal_ways": {
		Name:   "legal_ways",
		Path:   "/api/v1/government_books/catalogs/legal_ways",
		Checks: standardChecks(check.HasField{Path: "data.legalWays"}),
	},
	"dependences": {
		Name:   "dependences",
		Path:   "/api/v1/government_books/catalogs/dependences",
		Checks: standardChecks(check.HasField{Path: "data.dependences"}),
	},
	"party_types": {
		Name:   "party_types",
		Path:   "/api/v1/partyType/get_all",
		Checks: standardChecks(check.HasField{Path: "data.partyTypes"}),
	},
	"headings": {
		Name:   "headings",
		Path:   "/api/v1/catalogs/headings",
		Checks: standardChecks(check.MinLen{Path: "data.headings", Min: 2}),
	},
	"push_notifications": {
		Name: "push_notifications",
		Path: "/api/v1/push_notifications/20?page=1",
		Checks: check.Set{
			check.Status{Expect: http.StatusOK},
			check.HasField{Path: "data.notifications"},
			check.MaxDuration{Limit: SlowResponse},
		},
		Trend:  metrics.NotificationsDuration,
		Counts: []Count{{Path: "data.notifications", Metric: metrics.NotificationsFetched}},
	},
}

// Catalog returns the named catalog step. "crimes" and "crimes/<matter>"
// query the crimes of a matter.
func Catalog(name string) (StepSpec, bool) {
	if name == "crimes" {
		return CrimesStep(DefaultMatter), true
	}
	if matter, ok := strings.CutPrefix(name, "crimes/"); ok && matter != "" {
		return CrimesStep(matter), true
	}
	spec, ok := catalog[name]
	return spec, ok
}

// CrimesStep queries the crimes catalog of matter.
func CrimesStep(matter string) StepSpec {
	return StepSpec{
		Name:   "crimes",
		Path:   "/api/v1/electronic_expedient/crimes/" + matter,
		Checks: standardChecks(),
	}
}

// CatalogNames lists the catalog steps, sorted.
func CatalogNames() []string {
	names := make([]string, 0, len(catalog)+1)
	for name := range catalog {
		names = append(names, name)
	}
	names = append(names, "crimes")
	sort.Strings(names)
	return names
}
