package metrics

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Threshold is a pass/fail criterion such as "p(95)<2000" applied to a
// metric, optionally narrowed by tags: "http_req_duration{endpoint:login}".
type Threshold struct {
	Metric     string            `json:"metric" yaml:"metric"`
	Tags       map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Expr       string            `json:"expr" yaml:"expr"`
	Stat       string            `json:"-" yaml:"-"`
	Percentile float64           `json:"-" yaml:"-"`
	Op         string            `json:"-" yaml:"-"`
	Limit      float64           `json:"-" yaml:"-"`
}

// ThresholdResult is the evaluation of one threshold.
type ThresholdResult struct {
	Threshold `yaml:",inline"`
	Observed  float64 `json:"observed" yaml:"observed"`
	Passed    bool    `json:"passed" yaml:"passed"`
	NoData    bool    `json:"no_data,omitempty" yaml:"no_data,omitempty"`
}

// String renders the threshold the way it is written in config.
func (t Threshold) String() string {
	return t.Key() + " " + t.Expr
}

// Key returns the metric selector, tags included.
func (t Threshold) Key() string {
	if len(t.Tags) == 0 {
		return t.Metric
	}
	keys := make([]string, 0, len(t.Tags))
	for k := range t.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + t.Tags[k]
	}
	return t.Metric + "{" + strings.Join(parts, ",") + "}"
}

var exprPattern = regexp.MustCompile(`^\s*(p\(\s*([0-9.]+)\s*\)|avg|min|max|med|count|rate|value)\s*(<=|>=|==|!=|<|>)\s*(-?[0-9.]+)\s*$`)

// ParseThreshold parses a metric selector and an expression.
func ParseThreshold(selector, expr string) (Threshold, error) {
	t := Threshold{Expr: strings.TrimSpace(expr)}

	name, tags, err := parseSelector(selector)
	if err != nil {
		return t, err
	}
	t.Metric, t.Tags = name, tags

	m := exprPattern.FindStringSubmatch(expr)
	if m == nil {
		return t, fmt.Errorf("invalid threshold expression %q", expr)
	}
	t.Stat = m[1]
	if m[2] != "" {
		t.Stat = "p"
		t.Percentile, err = strconv.ParseFloat(m[2], 64)
		if err != nil || t.Percentile <= 0 || t.Percentile > 100 {
			return t, fmt.Errorf("invalid percentile in %q", expr)
		}
	}
	t.Op = m[3]
	t.Limit, err = strconv.ParseFloat(m[4], 64)
	if err != nil {
		return t, fmt.Errorf("invalid limit in %q: %w", expr, err)
	}
	return t, nil
}

func parseSelector(selector string) (string, map[string]string, error) {
	selector = strings.TrimSpace(selector)
	open := strings.IndexByte(selector, '{')
	if open < 0 {
		if selector == "" {
			return "", nil, fmt.Errorf("empty metric name")
		}
		return selector, nil, nil
	}
	if !strings.HasSuffix(selector, "}") || open == 0 {
		return "", nil, fmt.Errorf("invalid metric selector %q", selector)
	}
	tags := make(map[string]string)
	for _, pair := range strings.Split(selector[open+1:len(selector)-1], ",") {
		k, v, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return "", nil, fmt.Errorf("invalid tag %q in %q", pair, selector)
		}
		tags[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return selector[:open], tags, nil
}

// Evaluate checks every threshold against the registry. A threshold whose
// metric has no samples passes and is flagged NoData.
func Evaluate(r *Registry, thresholds []Threshold) []ThresholdResult {
	results := make([]ThresholdResult, 0, len(thresholds))
	for _, t := range thresholds {
		res := ThresholdResult{Threshold: t}
		agg, ok := r.Aggregate(t.Metric, t.Tags)
		if !ok {
			res.Passed, res.NoData = true, true
			results = append(results, res)
			continue
		}
		res.Observed = observe(agg, t)
		res.Passed = compare(res.Observed, t.Op, t.Limit)
		results = append(results, res)
	}
	return results
}

// Failed returns the rendered thresholds that did not pass.
func Failed(results []ThresholdResult) []string {
	var out []string
	for _, r := range results {
		if !r.Passed {
			out = append(out, r.String())
		}
	}
	return out
}

func observe(agg Aggregate, t Threshold) float64 {
	switch t.Stat {
	case "p":
		return agg.Percentile(t.Percentile)
	case "avg":
		return agg.Avg
	case "min":
		return agg.Min
	case "max":
		return agg.Max
	case "med":
		return agg.Med
	case "count":
		return agg.Count
	case "rate":
		return agg.Rate
	default:
		return agg.Value
	}
}

func compare(v float64, op string, limit float64) bool {
	switch op {
	case "<":
		return v < limit
	case "<=":
		return v <= limit
	case ">":
		return v > limit
	case ">=":
		return v >= limit
	case "==":
		return v == limit
	case "!=":
		return v != limit
	}
	return false
}
