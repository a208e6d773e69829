package metrics

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures counters, gauges and histograms.
type Collector interface {
	IncCounter(name string, labels map[string]string, delta float64)
	SetGauge(name string, labels map[string]string, value float64)
	ObserveHistogram(name string, labels map[string]string, value float64)
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, map[string]string, float64)       {}
func (Nop) SetGauge(string, map[string]string, float64)         {}
func (Nop) ObserveHistogram(string, map[string]string, float64) {}

// Registry is a Collector backed by a Prometheus registry. A metric is
// registered on first use with the label names of that call; later samples
// with a different label set are dropped and logged.
type Registry struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

func NewRegistry() *Registry {
	return &Registry{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Gatherer exposes the collected series, e.g. to promhttp.HandlerFor.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) IncCounter(name string, labels map[string]string, delta float64) {
	if delta < 0 {
		dropped(name, fmt.Errorf("negative counter delta %g", delta))
		return
	}
	vec, err := lookup(r, r.counters, name, labels, func(names []string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, names)
	})
	if err != nil {
		dropped(name, err)
		return
	}
	c, err := vec.GetMetricWith(labels)
	if err != nil {
		dropped(name, err)
		return
	}
	c.Add(delta)
}

func (r *Registry) SetGauge(name string, labels map[string]string, value float64) {
	vec, err := lookup(r, r.gauges, name, labels, func(names []string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, names)
	})
	if err != nil {
		dropped(name, err)
		return
	}
	g, err := vec.GetMetricWith(labels)
	if err != nil {
		dropped(name, err)
		return
	}
	g.Set(value)
}

func (r *Registry) ObserveHistogram(name string, labels map[string]string, value float64) {
	vec, err := lookup(r, r.histograms, name, labels, func(names []string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    name,
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, names)
	})
	if err != nil {
		dropped(name, err)
		return
	}
	h, err := vec.GetMetricWith(labels)
	if err != nil {
		dropped(name, err)
		return
	}
	h.Observe(value)
}

func lookup[V prometheus.Collector](r *Registry, vecs map[string]V, name string, labels map[string]string, create func(names []string) V) (V, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if vec, ok := vecs[name]; ok {
		return vec, nil
	}
	vec := create(slices.Sorted(maps.Keys(labels)))
	if err := r.reg.Register(vec); err != nil {
		var zero V
		return zero, fmt.Errorf("failed to register metric: %w", err)
	}
	vecs[name] = vec
	return vec, nil
}

func dropped(name string, err error) {
	slog.Warn("Dropped metric sample", "metric", name, "error", err)
}
