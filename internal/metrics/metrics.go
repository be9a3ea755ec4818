// Package metrics holds the prometheus collectors of the ingestion and
// aggregation pipeline. A nil *Collectors is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eventinsight"

// Cycle outcomes used as the "outcome" label.
const (
	OutcomeEmpty   = "empty"
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
	OutcomePartial = "partial"
)

type Collectors struct {
	eventsTracked    *prometheus.CounterVec
	trackRejected    *prometheus.CounterVec
	cycles           *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	eventsAggregated prometheus.Counter
	counterUpserts   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		eventsTracked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_tracked_total",
				Help:      "Total number of raw events accepted by the ingestion path.",
			},
			[]string{"tenant", "event_type"},
		),
		trackRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "track_rejected_total",
				Help:      "Track calls rejected before reaching the raw event store.",
			},
			[]string{"reason"},
		),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregation_cycles_total",
				Help:      "Aggregation cycles by outcome.",
			},
			[]string{"outcome"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "aggregation_cycle_duration_seconds",
				Help:      "Histogram of aggregation cycle durations in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		eventsAggregated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregated_events_total",
				Help:      "Raw events folded into counters and marked processed.",
			},
		),
		counterUpserts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "counter_upserts_total",
				Help:      "Upsert-increment writes issued against the aggregate store.",
			},
			[]string{"metric_kind"},
		),
	}
	reg.MustRegister(c.eventsTracked, c.trackRejected, c.cycles, c.cycleDuration, c.eventsAggregated, c.counterUpserts)
	return c
}

func (c *Collectors) EventTracked(tenant, eventType string) {
	if c == nil {
		return
	}
	c.eventsTracked.WithLabelValues(tenant, eventType).Inc()
}

func (c *Collectors) TrackRejected(reason string) {
	if c == nil {
		return
	}
	c.trackRejected.WithLabelValues(reason).Inc()
}

func (c *Collectors) CounterUpserted(kind string) {
	if c == nil {
		return
	}
	c.counterUpserts.WithLabelValues(kind).Inc()
}

// CycleFinished records one aggregation cycle.
func (c *Collectors) CycleFinished(outcome string, events int64, took time.Duration) {
	if c == nil {
		return
	}
	c.cycles.WithLabelValues(outcome).Inc()
	c.cycleDuration.Observe(took.Seconds())
	if events > 0 {
		c.eventsAggregated.Add(float64(events))
	}
}
