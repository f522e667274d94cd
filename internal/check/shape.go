// Package check validates API responses: status codes, JSON shape and
// latency, each expressed as a named Check inside a Set.
package check

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmespath/go-jmespath"
)

// ShapeError reports a body that is not JSON or lacks required fields.
type ShapeError struct {
	Missing []string
	Err     error
}

func (e *ShapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("shape error: malformed body: %v", e.Err)
	}
	return fmt.Sprintf("shape error: missing %s", strings.Join(e.Missing, ", "))
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}

// Malformed reports whether the body could not be decoded at all.
func (e *ShapeError) Malformed() bool {
	return e.Err != nil
}

// Shape is a decoded JSON document whose required fields are known to be present.
type Shape struct {
	doc interface{}
}

// Validate decodes body and checks that every dotted path in fields resolves
// to a non-null value.
func Validate(body []byte, fields ...string) (*Shape, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ShapeError{Err: err}
	}
	s := &Shape{doc: doc}

	var missing []string
	for _, f := range fields {
		if s.Value(f) == nil {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return s, &ShapeError{Missing: missing}
	}
	return s, nil
}

// Value returns the value at path, or nil when absent or null.
func (s *Shape) Value(path string) interface{} {
	if s == nil {
		return nil
	}
	v, err := jmespath.Search(path, s.doc)
	if err != nil {
		return nil
	}
	return v
}

// String returns the value at path as a string. Numbers are formatted
// without exponent so numeric ids survive ("42", not "4.2e+01").
func (s *Shape) String(path string) string {
	switch v := s.Value(path).(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Len returns the length of the array at path, or 0 when it is not an array.
func (s *Shape) Len(path string) int {
	if arr, ok := s.Value(path).([]interface{}); ok {
		return len(arr)
	}
	return 0
}
