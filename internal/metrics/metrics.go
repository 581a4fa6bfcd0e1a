// Package metrics holds the Prometheus collectors of the activity engine and
// exposes them for scraping. A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "activityline"

// Skip reasons for PatternSkipped.
const (
	SkipDuplicate  = "duplicate"
	SkipUnassigned = "unassigned"
)

type Metrics struct {
	reg *prometheus.Registry

	eventsProcessed   prometheus.Counter
	activitiesCreated *prometheus.CounterVec
	patternSkips      *prometheus.CounterVec
	patternFailures   prometheus.Counter
	processSeconds    prometheus.Histogram
	transitions       *prometheus.CounterVec
	sweeps            *prometheus.CounterVec
}

// NewRegistry returns a registry with the standard Go and process collectors.
func NewRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("registering go collector: %w", err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("registering process collector: %w", err)
	}
	return reg, nil
}

// New registers the engine collectors on reg. A nil reg gets a fresh,
// empty registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		reg: reg,
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_processed_total",
			Help: "Events handed to the activity engine.",
		}),
		activitiesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "activities_created_total",
			Help: "Activities created by the engine from pattern matches.",
		}, []string{"activity_type"}),
		patternSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pattern_skips_total",
			Help: "Matched patterns that produced no activity.",
		}, []string{"reason"}),
		patternFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pattern_failures_total",
			Help: "Matched patterns whose activity could not be created.",
		}),
		processSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "process_event_seconds",
			Help:    "Time spent processing one event.",
			Buckets: prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "activity_events_total",
			Help: "Activity events emitted by the service.",
		}, []string{"type"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweep_actions_total",
			Help: "Escalations and reminders issued by the sweeper.",
		}, []string{"action"}),
	}
	for _, c := range []prometheus.Collector{
		m.eventsProcessed, m.activitiesCreated, m.patternSkips, m.patternFailures,
		m.processSeconds, m.transitions, m.sweeps,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return m, nil
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) EventProcessed(d time.Duration) {
	if m == nil {
		return
	}
	m.eventsProcessed.Inc()
	m.processSeconds.Observe(d.Seconds())
}

func (m *Metrics) ActivityCreated(activityType string) {
	if m == nil {
		return
	}
	m.activitiesCreated.WithLabelValues(activityType).Inc()
}

func (m *Metrics) PatternSkipped(reason string) {
	if m == nil {
		return
	}
	m.patternSkips.WithLabelValues(reason).Inc()
}

func (m *Metrics) PatternFailed() {
	if m == nil {
		return
	}
	m.patternFailures.Inc()
}

func (m *Metrics) ActivityEvent(evtType string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(evtType).Inc()
}

func (m *Metrics) SweepAction(action string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(action).Inc()
}
