// Package metrics records counters, trends, rates and gauges for a run. Every
// sample is kept in memory for the end-of-run summary and threshold checks,
// and mirrored into a private prometheus registry for live scraping.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Kind is the aggregation type of a metric.
type Kind int

const (
	Counter Kind = iota
	Trend
	Rate
	Gauge
)

func (k Kind) String() string {
	switch k {
	case Counter:
		return "counter"
	case Trend:
		return "trend"
	case Rate:
		return "rate"
	case Gauge:
		return "gauge"
	}
	return "unknown"
}

// Tag is a key/value pair attached to a sample.
type Tag struct {
	Key   string
	Value string
}

// T builds a Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// Sink receives samples. Implementations must be safe for concurrent use
// and must not block on I/O.
type Sink interface {
	Add(name string, value float64, tags ...Tag)
}

type discard struct{}

func (discard) Add(string, float64, ...Tag) {}

// Discard is a Sink that drops every sample.
var Discard Sink = discard{}

// Definition declares a metric. Labels are the tag keys exported to
// prometheus; other tags are kept only in memory.
type Definition struct {
	Name   string
	Kind   Kind
	Help   string
	Labels []string
}

// Registry is the run-scoped metrics store. It implements Sink.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]*metric
	prom    *prometheus.Registry
	dropped atomic.Int64
}

type metric struct {
	def    Definition
	mu     sync.Mutex
	series map[string]*series
	// exactly one of these is set, depending on def.Kind
	counter *prometheus.CounterVec
	hist    *prometheus.HistogramVec
	gauge   *prometheus.GaugeVec
}

type series struct {
	tags    map[string]string
	count   float64
	sum     float64
	nonZero float64
	min     float64
	max     float64
	last    float64
	samples []float64
}

// NewRegistry creates a registry with the standard harness metrics defined.
func NewRegistry() *Registry {
	r := &Registry{
		metrics: make(map[string]*metric),
		prom:    prometheus.NewRegistry(),
	}
	for _, def := range Standard {
		if err := r.Define(def); err != nil {
			panic(err)
		}
	}
	return r
}

// Define declares a metric. Redefining a name is an error.
func (r *Registry) Define(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.metrics[def.Name]; ok {
		return fmt.Errorf("metric %q already defined", def.Name)
	}
	m := &metric{def: def, series: make(map[string]*series)}
	promName := "nilo_" + def.Name
	help := def.Help
	if help == "" {
		help = def.Name
	}

	var collector prometheus.Collector
	switch def.Kind {
	case Counter:
		m.counter = prometheus.NewCounterVec(prometheus.CounterOpts{Name: promName + "_total", Help: help}, def.Labels)
		collector = m.counter
	case Rate:
		labels := append(append([]string{}, def.Labels...), "outcome")
		m.counter = prometheus.NewCounterVec(prometheus.CounterOpts{Name: promName + "_total", Help: help}, labels)
		collector = m.counter
	case Trend:
		m.hist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    promName,
			Help:    help,
			Buckets: prometheus.ExponentialBuckets(5, 2, 12),
		}, def.Labels)
		collector = m.hist
	case Gauge:
		m.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: promName, Help: help}, def.Labels)
		collector = m.gauge
	default:
		return fmt.Errorf("metric %q: unknown kind %d", def.Name, def.Kind)
	}
	if err := r.prom.Register(collector); err != nil {
		return fmt.Errorf("metric %q: %w", def.Name, err)
	}
	r.metrics[def.Name] = m
	return nil
}

// Add records a sample. For rates any non-zero value counts as a success.
// Samples for undefined metrics are dropped and counted.
func (r *Registry) Add(name string, value float64, tags ...Tag) {
	r.mu.RLock()
	m, ok := r.metrics[name]
	r.mu.RUnlock()
	if !ok || math.IsNaN(value) {
		r.dropped.Add(1)
		return
	}
	m.add(value, tags)
}

// Dropped returns how many samples were rejected.
func (r *Registry) Dropped() int64 {
	return r.dropped.Load()
}

// Handler serves the prometheus exposition of the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying prometheus registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prom
}

func (m *metric) add(value float64, tags []Tag) {
	key, tagMap := seriesKey(tags)
	labels := m.labelValues(tagMap)

	m.mu.Lock()
	s, ok := m.series[key]
	if !ok {
		s = &series{tags: tagMap, min: value, max: value}
		m.series[key] = s
	}
	s.count++
	s.sum += value
	s.last = value
	if value != 0 {
		s.nonZero++
	}
	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}
	if m.def.Kind == Trend {
		s.samples = append(s.samples, value)
	}
	m.mu.Unlock()

	switch m.def.Kind {
	case Counter:
		m.counter.WithLabelValues(labels...).Add(value)
	case Rate:
		outcome := "false"
		if value != 0 {
			outcome = "true"
		}
		m.counter.WithLabelValues(append(labels, outcome)...).Inc()
	case Trend:
		m.hist.WithLabelValues(labels...).Observe(value)
	case Gauge:
		m.gauge.WithLabelValues(labels...).Set(value)
	}
}

func (m *metric) labelValues(tags map[string]string) []string {
	values := make([]string, len(m.def.Labels))
	for i, l := range m.def.Labels {
		values[i] = tags[l]
	}
	return values
}

func seriesKey(tags []Tag) (string, map[string]string) {
	if len(tags) == 0 {
		return "", map[string]string{}
	}
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Key] = t.Value
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(m[k])
	}
	return b.String(), m
}
