package check

import (
	"bytes"
	"fmt"

	"github.com/nilo-qa/nilo-loadtest/internal/httpclient"
)

// Set is an ordered list of checks evaluated together.
type Set []Check

// Result is the outcome of one check.
type Result struct {
	Name     string
	Advisory bool
	Err      error
}

// Report holds the results of running a Set.
type Report struct {
	Results []Result
}

// Run executes every check in the set; it never stops at the first failure.
func (s Set) Run(resp *httpclient.Response) Report {
	r := Report{Results: make([]Result, 0, len(s))}
	for _, c := range s {
		r.Results = append(r.Results, Result{
			Name:     c.Name(),
			Advisory: c.Advisory(),
			Err:      c.Execute(resp),
		})
	}
	return r
}

// Passed is true when every non-advisory check passed.
func (r Report) Passed() bool {
	for _, res := range r.Results {
		if res.Err != nil && !res.Advisory {
			return false
		}
	}
	return true
}

// Failures lists "name: error" for every failed check, advisory included.
func (r Report) Failures() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, fmt.Sprintf("%s: %v", res.Name, res.Err))
		}
	}
	return out
}

// Counts returns the number of passed and failed checks.
func (r Report) Counts() (passed, failed int) {
	for _, res := range r.Results {
		if res.Err != nil {
			failed++
		} else {
			passed++
		}
	}
	return passed, failed
}

func containsBytes(b []byte, s string) bool {
	return bytes.Contains(b, []byte(s))
}
