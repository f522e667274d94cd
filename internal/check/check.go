package check

import (
	"fmt"
	"reflect"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal/httpclient"
)

// Check is a single assertion against a response.
type Check interface {
	Name() string
	// Advisory checks are reported and counted but never fail a step.
	Advisory() bool
	Execute(resp *httpclient.Response) error
}

// Status checks the HTTP status code.
type Status struct {
	Expect int
}

func (c Status) Name() string   { return fmt.Sprintf("status %d", c.Expect) }
func (c Status) Advisory() bool { return false }

func (c Status) Execute(resp *httpclient.Response) error {
	if resp.Status != c.Expect {
		if resp.Failed() {
			return fmt.Errorf("no response: %v", resp.Err)
		}
		return fmt.Errorf("got status %d", resp.Status)
	}
	return nil
}

// HasField checks that the JSON body has a non-null value at Path.
type HasField struct {
	Path string
}

func (c HasField) Name() string   { return "has " + c.Path }
func (c HasField) Advisory() bool { return false }

func (c HasField) Execute(resp *httpclient.Response) error {
	_, err := Validate(resp.Body, c.Path)
	return err
}

// FieldEquals checks that the value at Path equals Value. Numbers compare
// as float64, as decoded from JSON.
type FieldEquals struct {
	Path  string
	Value interface{}
}

func (c FieldEquals) Name() string   { return fmt.Sprintf("%s == %v", c.Path, c.Value) }
func (c FieldEquals) Advisory() bool { return false }

func (c FieldEquals) Execute(resp *httpclient.Response) error {
	s, err := Validate(resp.Body, c.Path)
	if err != nil {
		return err
	}
	got := s.Value(c.Path)
	want := c.Value
	if n, ok := want.(int); ok {
		want = float64(n)
	}
	if !reflect.DeepEqual(got, want) {
		return fmt.Errorf("%s is %v", c.Path, got)
	}
	return nil
}

// MinLen checks that the array at Path has at least Min elements.
type MinLen struct {
	Path string
	Min  int
}

func (c MinLen) Name() string   { return fmt.Sprintf("len(%s) >= %d", c.Path, c.Min) }
func (c MinLen) Advisory() bool { return false }

func (c MinLen) Execute(resp *httpclient.Response) error {
	s, err := Validate(resp.Body, c.Path)
	if err != nil {
		return err
	}
	if n := s.Len(c.Path); n < c.Min {
		return fmt.Errorf("len(%s) is %d", c.Path, n)
	}
	return nil
}

// BodyContains checks for a literal substring, used for HTML pages.
type BodyContains struct {
	Text string
}

func (c BodyContains) Name() string   { return fmt.Sprintf("body contains %q", c.Text) }
func (c BodyContains) Advisory() bool { return false }

func (c BodyContains) Execute(resp *httpclient.Response) error {
	if !containsBytes(resp.Body, c.Text) {
		return fmt.Errorf("text not found")
	}
	return nil
}

// MaxDuration checks the response time. It is advisory.
type MaxDuration struct {
	Limit time.Duration
}

func (c MaxDuration) Name() string   { return fmt.Sprintf("response time < %s", c.Limit) }
func (c MaxDuration) Advisory() bool { return true }

func (c MaxDuration) Execute(resp *httpclient.Response) error {
	if resp.Duration >= c.Limit {
		return fmt.Errorf("took %s", resp.Duration.Round(time.Millisecond))
	}
	return nil
}
