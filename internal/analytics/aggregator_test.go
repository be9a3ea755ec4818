package analytics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventinsight/internal/db"
	"eventinsight/internal/metrics"
)

func sampleBatch() []db.RawEvent {
	return []db.RawEvent{
		{ID: 1, TenantID: "T", EventTypeID: "E", SessionID: "s1", OccurredAt: at(9, 30, 0)},
		{ID: 2, TenantID: "T", EventTypeID: "E", SessionID: "s1", OccurredAt: at(9, 30, 0)},
		{ID: 3, TenantID: "T", EventTypeID: "E", SessionID: "s2", OccurredAt: at(9, 30, 0)},
		{ID: 4, TenantID: "T", EventTypeID: "F", OccurredAt: at(10, 15, 0)},
	}
}

func key(eventType string, kind db.MetricKind) db.CounterKey {
	return db.CounterKey{TenantID: "T", EventTypeID: eventType, MetricKind: kind}
}

func TestAggregator_RunCycle_Success(t *testing.T) {
	raw := new(MockRawEventStore)
	counters := new(MockCounterStore)
	agg := NewAggregator(raw, counters, zap.NewNop())

	raw.On("FetchUnprocessed", mock.Anything, DefaultBatchSize).Return(sampleBatch(), nil)
	counters.On("UpsertIncrement", mock.Anything, key("E", db.MetricTotalCount), int64(3), at(9, 0, 0), at(10, 0, 0)).Return(nil).Once()
	counters.On("UpsertIncrement", mock.Anything, key("E", db.MetricUniqueSessions), int64(2), at(9, 0, 0), at(10, 0, 0)).Return(nil).Once()
	counters.On("UpsertIncrement", mock.Anything, key("F", db.MetricTotalCount), int64(1), at(10, 0, 0), at(11, 0, 0)).Return(nil).Once()
	counters.On("UpsertIncrement", mock.Anything, key("F", db.MetricUniqueSessions), int64(0), at(10, 0, 0), at(11, 0, 0)).Return(nil).Once()
	raw.On("MarkProcessed", mock.Anything, []uint{1, 2, 3, 4}).Return(int64(4), nil)

	res, err := agg.RunCycle(context.Background())

	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 4, res.Events)
	assert.Equal(t, 2, res.Buckets)
	assert.Equal(t, 4, res.Upserts)
	assert.Equal(t, int64(4), res.Marked)
	raw.AssertExpectations(t)
	counters.AssertExpectations(t)
}

func TestAggregator_RunCycle_EmptyBatchWritesNothing(t *testing.T) {
	raw := new(MockRawEventStore)
	counters := new(MockCounterStore)
	agg := NewAggregator(raw, counters, zap.NewNop(), WithBatchSize(50))

	raw.On("FetchUnprocessed", mock.Anything, 50).Return([]db.RawEvent{}, nil)

	res, err := agg.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Zero(t, res.Events)
	counters.AssertNotCalled(t, "UpsertIncrement")
	raw.AssertNotCalled(t, "MarkProcessed")
}

func TestAggregator_RunCycle_FetchErrorAttemptsNothing(t *testing.T) {
	raw := new(MockRawEventStore)
	counters := new(MockCounterStore)
	agg := NewAggregator(raw, counters, zap.NewNop())

	dbErr := errors.New("connection refused")
	raw.On("FetchUnprocessed", mock.Anything, DefaultBatchSize).Return(nil, dbErr)

	_, err := agg.RunCycle(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, dbErr)
	counters.AssertNotCalled(t, "UpsertIncrement")
	raw.AssertNotCalled(t, "MarkProcessed")
}

func TestAggregator_RunCycle_FirstUpsertFailureIsNotPartial(t *testing.T) {
	raw := new(MockRawEventStore)
	counters := new(MockCounterStore)
	agg := NewAggregator(raw, counters, zap.NewNop())

	raw.On("FetchUnprocessed", mock.Anything, DefaultBatchSize).Return(sampleBatch(), nil)
	counters.On("UpsertIncrement", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("timeout")).Once()

	_, err := agg.RunCycle(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	var partial *PartialFailureError
	assert.False(t, errors.As(err, &partial))
	raw.AssertNotCalled(t, "MarkProcessed")
}

func TestAggregator_RunCycle_MidBatchFailureIsPartial(t *testing.T) {
	raw := new(MockRawEventStore)
	counters := new(MockCounterStore)
	agg := NewAggregator(raw, counters, zap.NewNop())

	raw.On("FetchUnprocessed", mock.Anything, DefaultBatchSize).Return(sampleBatch(), nil)
	counters.On("UpsertIncrement", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil).Times(3)
	counters.On("UpsertIncrement", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("timeout")).Once()

	res, err := agg.RunCycle(context.Background())

	require.Error(t, err)
	var partial *PartialFailureError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, 3, partial.Applied)
	assert.Equal(t, 4, partial.Total)
	assert.Equal(t, res.RunID, partial.RunID)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	raw.AssertNotCalled(t, "MarkProcessed")
}

func TestAggregator_RunCycle_MarkFailureIsPartial(t *testing.T) {
	raw := new(MockRawEventStore)
	counters := new(MockCounterStore)
	agg := NewAggregator(raw, counters, zap.NewNop())

	raw.On("FetchUnprocessed", mock.Anything, DefaultBatchSize).Return(sampleBatch(), nil)
	counters.On("UpsertIncrement", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	raw.On("MarkProcessed", mock.Anything, mock.Anything).Return(int64(0), errors.New("deadlock"))

	_, err := agg.RunCycle(context.Background())

	var partial *PartialFailureError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, 4, partial.Applied)
	assert.Contains(t, err.Error(), "mark events processed")
}

func TestAggregator_RunCycle_SkipsWhenLeaseHeld(t *testing.T) {
	raw := new(MockRawEventStore)
	counters := new(MockCounterStore)
	locker := new(MockLocker)
	agg := NewAggregator(raw, counters, zap.NewNop(), WithLocker(locker, time.Minute), WithJobName("nightly"))

	locker.On("Acquire", mock.Anything, "nightly", time.Minute).Return(false, nil)

	res, err := agg.RunCycle(context.Background())

	require.NoError(t, err)
	assert.True(t, res.Skipped)
	raw.AssertNotCalled(t, "FetchUnprocessed")
	assert.Zero(t, locker.released)
}

func TestAggregator_RunCycle_ReleasesLease(t *testing.T) {
	raw := new(MockRawEventStore)
	counters := new(MockCounterStore)
	locker := new(MockLocker)
	agg := NewAggregator(raw, counters, zap.NewNop(), WithLocker(locker, time.Minute))

	locker.On("Acquire", mock.Anything, DefaultJobName, time.Minute).Return(true, nil)
	raw.On("FetchUnprocessed", mock.Anything, DefaultBatchSize).Return(nil, errors.New("down"))

	_, err := agg.RunCycle(context.Background())

	require.Error(t, err)
	assert.Equal(t, 1, locker.released)
}

func TestAggregator_RunCycle_LeaseErrorIsStoreUnavailable(t *testing.T) {
	raw := new(MockRawEventStore)
	counters := new(MockCounterStore)
	locker := new(MockLocker)
	agg := NewAggregator(raw, counters, zap.NewNop(), WithLocker(locker, time.Minute))

	locker.On("Acquire", mock.Anything, DefaultJobName, time.Minute).Return(false, errors.New("redis down"))

	_, err := agg.RunCycle(context.Background())

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	raw.AssertNotCalled(t, "FetchUnprocessed")
}

func TestAggregator_RunCycle_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	raw := new(MockRawEventStore)
	counters := new(MockCounterStore)
	agg := NewAggregator(raw, counters, zap.NewNop(), WithMetrics(m))

	raw.On("FetchUnprocessed", mock.Anything, DefaultBatchSize).Return(sampleBatch(), nil).Once()
	raw.On("FetchUnprocessed", mock.Anything, DefaultBatchSize).Return([]db.RawEvent{}, nil).Once()
	counters.On("UpsertIncrement", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	raw.On("MarkProcessed", mock.Anything, mock.Anything).Return(int64(4), nil)

	_, err := agg.RunCycle(context.Background())
	require.NoError(t, err)
	_, err = agg.RunCycle(context.Background())
	require.NoError(t, err)

	cycles, err := testutil.GatherAndCount(reg, "eventinsight_aggregation_cycles_total")
	require.NoError(t, err)
	assert.Equal(t, 2, cycles, "one ok and one empty outcome series")
	expected := `
# HELP eventinsight_aggregated_events_total Raw events folded into counters and marked processed.
# TYPE eventinsight_aggregated_events_total counter
eventinsight_aggregated_events_total 4
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "eventinsight_aggregated_events_total"))
}
