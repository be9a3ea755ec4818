package analytics

import (
	"context"
	"time"

	"eventinsight/internal/db"
)

// RawEventStore defines the append-only event storage used by ingestion and aggregation
type RawEventStore interface {
	// Append persists one unprocessed event
	Append(ctx context.Context, ev *db.RawEvent) error

	// AppendBatch persists several unprocessed events
	AppendBatch(ctx context.Context, events []db.RawEvent) error

	// FetchUnprocessed returns up to limit unprocessed events, oldest first
	FetchUnprocessed(ctx context.Context, limit int) ([]db.RawEvent, error)

	// MarkProcessed flags events as folded into counters; already processed ids are skipped
	MarkProcessed(ctx context.Context, ids []uint) (int64, error)
}

// CounterStore defines the aggregate counter storage
type CounterStore interface {
	// UpsertIncrement atomically adds delta to a counter, creating it when absent
	UpsertIncrement(ctx context.Context, key db.CounterKey, delta int64, periodStart, periodEnd time.Time) error

	// Query returns matching counters ordered by period start
	Query(ctx context.Context, tenantID string, f db.CounterFilter, r db.PeriodRange) ([]db.AggregateCounter, error)

	// Summary sums counter values per metric kind
	Summary(ctx context.Context, tenantID string, r db.PeriodRange) (db.Summary, error)
}

// Locker hands out a named lease so that only one aggregation cycle runs
// across replicas at a time. ok is false when someone else holds it.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// Tracker is the ingestion capability other components resolve from the registry.
type Tracker interface {
	Track(ctx context.Context, req TrackRequest) error
}

// CycleRunner is the aggregation capability other components resolve from the registry.
type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleResult, error)
}

// Capability names under which the analytics components are registered.
const (
	CapabilityTracker    = "analytics.tracker"
	CapabilityAggregator = "analytics.aggregator"
)

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}
