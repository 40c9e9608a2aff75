// Package metrics exports serving counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/eligibility"
	"github.com/ignite/adserving/internal/serving"
)

const namespace = "adserving"

// Metrics holds the serving collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Cycles        *prometheus.CounterVec
	Served        *prometheus.CounterVec
	Exclusions    *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	Events        *prometheus.CounterVec
}

// New registers the collectors. withRuntime adds the Go and process collectors.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Serving cycles by outcome",
		}, []string{"outcome"}),
		Served: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "served_total",
			Help:      "Delivered ads by segment tier",
		}, []string{"tier"}),
		Exclusions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exclusions_total",
			Help:      "Creatives excluded by rule",
		}, []string{"reason"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time to run a serving cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_recorded_total",
			Help:      "Ad events recorded through the API",
		}, []string{"type"}),
	}
	reg.MustRegister(m.Cycles, m.Served, m.Exclusions, m.CycleDuration, m.Events)
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	for _, r := range eligibility.Reasons {
		m.Exclusions.WithLabelValues(string(r))
	}
	for _, o := range []serving.Outcome{serving.OutcomeDelivered, serving.OutcomeNotServed, serving.OutcomeFailed} {
		m.Cycles.WithLabelValues(string(o))
	}
	return m
}

// ObserveCycle implements serving.Observer.
func (m *Metrics) ObserveCycle(r serving.Result) {
	m.Cycles.WithLabelValues(string(r.Outcome)).Inc()
	m.CycleDuration.Observe(r.Duration.Seconds())
	if r.Outcome == serving.OutcomeDelivered {
		m.Served.WithLabelValues(r.Tier.String()).Inc()
	}
}

// OnExclude matches eligibility.Options.OnExclude.
func (m *Metrics) OnExclude(_ domain.CreativeAd, reason eligibility.ExclusionReason) {
	m.Exclusions.WithLabelValues(string(reason)).Inc()
}

// EventRecorded counts an event accepted by the API.
func (m *Metrics) EventRecorded(t domain.AdEventType) {
	m.Events.WithLabelValues(string(t)).Inc()
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
