package metrics

import (
	"math"
	"sort"
)

// Aggregate is the merged view of every series of a metric that matches a
// tag filter.
type Aggregate struct {
	Name  string            `json:"name" yaml:"name"`
	Kind  string            `json:"kind" yaml:"kind"`
	Tags  map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Count float64           `json:"count" yaml:"count"`
	Sum   float64           `json:"sum" yaml:"sum"`
	Min   float64           `json:"min" yaml:"min"`
	Max   float64           `json:"max" yaml:"max"`
	Avg   float64           `json:"avg" yaml:"avg"`
	Med   float64           `json:"med,omitempty" yaml:"med,omitempty"`
	P90   float64           `json:"p90,omitempty" yaml:"p90,omitempty"`
	P95   float64           `json:"p95,omitempty" yaml:"p95,omitempty"`
	P99   float64           `json:"p99,omitempty" yaml:"p99,omitempty"`
	Rate  float64           `json:"rate,omitempty" yaml:"rate,omitempty"`
	Value float64           `json:"value,omitempty" yaml:"value,omitempty"`

	samples []float64
}

// Percentile returns the p-th percentile of a trend aggregate.
func (a Aggregate) Percentile(p float64) float64 {
	return Percentile(a.samples, p)
}

// Aggregate merges the series of name whose tags contain every pair in
// filter. It returns false when the metric is unknown or has no samples.
func (r *Registry) Aggregate(name string, filter map[string]string) (Aggregate, bool) {
	r.mu.RLock()
	m, ok := r.metrics[name]
	r.mu.RUnlock()
	if !ok {
		return Aggregate{}, false
	}

	m.mu.Lock()
	agg := Aggregate{Name: name, Kind: m.def.Kind.String(), Tags: filter}
	var nonZero float64
	first := true
	for _, s := range m.series {
		if !matches(s.tags, filter) {
			continue
		}
		if first {
			agg.Min, agg.Max = s.min, s.max
			first = false
		}
		agg.Count += s.count
		agg.Sum += s.sum
		nonZero += s.nonZero
		agg.Min = math.Min(agg.Min, s.min)
		agg.Max = math.Max(agg.Max, s.max)
		agg.Value = s.last
		agg.samples = append(agg.samples, s.samples...)
	}
	m.mu.Unlock()

	if agg.Count == 0 {
		return agg, false
	}
	agg.Avg = agg.Sum / agg.Count
	switch m.def.Kind {
	case Rate:
		agg.Rate = nonZero / agg.Count
	case Trend:
		sort.Float64s(agg.samples)
		agg.Med = Percentile(agg.samples, 50)
		agg.P90 = Percentile(agg.samples, 90)
		agg.P95 = Percentile(agg.samples, 95)
		agg.P99 = Percentile(agg.samples, 99)
	case Counter:
		agg.Value = agg.Sum
	}
	return agg, true
}

// Summary returns one aggregate per metric that received samples, sorted by
// name.
func (r *Registry) Summary() []Aggregate {
	r.mu.RLock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	out := make([]Aggregate, 0, len(names))
	for _, name := range names {
		if agg, ok := r.Aggregate(name, nil); ok {
			out = append(out, agg)
		}
	}
	return out
}

// Percentile uses the nearest-rank method on sorted values: index
// ceil(p/100*n)-1, clamped to the slice.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func matches(tags, filter map[string]string) bool {
	for k, v := range filter {
		if tags[k] != v {
			return false
		}
	}
	return true
}
