// Package metrics keeps a process-wide Prometheus registry behind a small
// name+labels API. Vectors are created on first use; the label set seen on
// first use fixes the label names for that metric.
package metrics

import (
	"bytes"
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

type registry struct {
	reg       *prometheus.Registry
	counters  map[string]*prometheus.CounterVec
	gauges    map[string]*prometheus.GaugeVec
	summaries map[string]*prometheus.SummaryVec
}

var (
	mu  sync.Mutex
	cur = newRegistry()
)

func newRegistry() *registry {
	return &registry{
		reg:       prometheus.NewRegistry(),
		counters:  map[string]*prometheus.CounterVec{},
		gauges:    map[string]*prometheus.GaugeVec{},
		summaries: map[string]*prometheus.SummaryVec{},
	}
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Inc adds one to a counter.
func Inc(name string, labels map[string]string) { Add(name, labels, 1) }

// Add adds v to a counter. Negative values are ignored.
func Add(name string, labels map[string]string, v float64) {
	if v < 0 {
		return
	}
	mu.Lock()
	c, ok := cur.counters[name]
	if !ok {
		c = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, labelNames(labels))
		cur.reg.MustRegister(c)
		cur.counters[name] = c
	}
	mu.Unlock()
	if m, err := c.GetMetricWith(prometheus.Labels(labels)); err == nil {
		m.Add(v)
	}
}

func gauge(name string, labels map[string]string) prometheus.Gauge {
	mu.Lock()
	g, ok := cur.gauges[name]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, labelNames(labels))
		cur.reg.MustRegister(g)
		cur.gauges[name] = g
	}
	mu.Unlock()
	m, err := g.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return nil
	}
	return m
}

// AddGauge moves a gauge by delta.
func AddGauge(name string, labels map[string]string, delta int64) {
	if g := gauge(name, labels); g != nil {
		g.Add(float64(delta))
	}
}

// SetGauge sets a gauge to v.
func SetGauge(name string, labels map[string]string, v int64) {
	if g := gauge(name, labels); g != nil {
		g.Set(float64(v))
	}
}

// ObserveSummary records v on a summary with p50/p90/p99 objectives.
func ObserveSummary(name string, labels map[string]string, v float64) {
	mu.Lock()
	s, ok := cur.summaries[name]
	if !ok {
		s = prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       name,
			Help:       name,
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, labelNames(labels))
		cur.reg.MustRegister(s)
		cur.summaries[name] = s
	}
	mu.Unlock()
	if m, err := s.GetMetricWith(prometheus.Labels(labels)); err == nil {
		m.Observe(v)
	}
}

// Reset drops every metric. Tests call it before asserting on DumpProm.
func Reset() {
	mu.Lock()
	cur = newRegistry()
	mu.Unlock()
}

// DumpProm renders the registry in the Prometheus text format.
func DumpProm() string {
	mu.Lock()
	reg := cur.reg
	mu.Unlock()
	mfs, err := reg.Gather()
	if err != nil {
		return ""
	}
	var buf bytes.Buffer
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return buf.String()
		}
	}
	return buf.String()
}

// Counter returns the current value of a counter series, or 0 when it
// has not been incremented yet.
func Counter(name string, labels map[string]string) float64 {
	mu.Lock()
	reg := cur.reg
	mu.Unlock()
	mfs, err := reg.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range mfs {
		if mf.GetName() != name || mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range mf.GetMetric() {
			if sameLabels(m.GetLabel(), labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func sameLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, lp := range pairs {
		if v, ok := want[lp.GetName()]; !ok || v != lp.GetValue() {
			return false
		}
	}
	return true
}

// Handler serves the current registry. It follows Reset.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reg := cur.reg
		mu.Unlock()
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
