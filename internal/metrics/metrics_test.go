package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorsRecordNothing(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.EventTracked("acme", "signup")
		c.TrackRejected("missing_tenant")
		c.CounterUpserted("TOTAL_COUNT")
		c.CycleFinished(OutcomeOK, 10, time.Second)
	})
}

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.EventTracked("acme", "signup")
	c.EventTracked("acme", "signup")
	c.TrackRejected("missing_event_type")
	c.CycleFinished(OutcomeOK, 5, 20*time.Millisecond)
	c.CycleFinished(OutcomeFailed, 0, time.Millisecond)

	expected := `
# HELP eventinsight_events_tracked_total Total number of raw events accepted by the ingestion path.
# TYPE eventinsight_events_tracked_total counter
eventinsight_events_tracked_total{event_type="signup",tenant="acme"} 2
# HELP eventinsight_aggregation_cycles_total Aggregation cycles by outcome.
# TYPE eventinsight_aggregation_cycles_total counter
eventinsight_aggregation_cycles_total{outcome="failed"} 1
eventinsight_aggregation_cycles_total{outcome="ok"} 1
# HELP eventinsight_aggregated_events_total Raw events folded into counters and marked processed.
# TYPE eventinsight_aggregated_events_total counter
eventinsight_aggregated_events_total 5
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"eventinsight_events_tracked_total",
		"eventinsight_aggregation_cycles_total",
		"eventinsight_aggregated_events_total"))

	n, err := testutil.GatherAndCount(reg, "eventinsight_aggregation_cycle_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
