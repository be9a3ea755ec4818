package analytics

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"eventinsight/internal/db"
)

// MockRawEventStore is a mock implementation of RawEventStore
type MockRawEventStore struct {
	mock.Mock
}

func (m *MockRawEventStore) Append(ctx context.Context, ev *db.RawEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockRawEventStore) AppendBatch(ctx context.Context, events []db.RawEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockRawEventStore) FetchUnprocessed(ctx context.Context, limit int) ([]db.RawEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]db.RawEvent), args.Error(1)
}

func (m *MockRawEventStore) MarkProcessed(ctx context.Context, ids []uint) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

// MockCounterStore is a mock implementation of CounterStore
type MockCounterStore struct {
	mock.Mock
}

func (m *MockCounterStore) UpsertIncrement(ctx context.Context, key db.CounterKey, delta int64, periodStart, periodEnd time.Time) error {
	args := m.Called(ctx, key, delta, periodStart, periodEnd)
	return args.Error(0)
}

func (m *MockCounterStore) Query(ctx context.Context, tenantID string, f db.CounterFilter, r db.PeriodRange) ([]db.AggregateCounter, error) {
	args := m.Called(ctx, tenantID, f, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]db.AggregateCounter), args.Error(1)
}

func (m *MockCounterStore) Summary(ctx context.Context, tenantID string, r db.PeriodRange) (db.Summary, error) {
	args := m.Called(ctx, tenantID, r)
	return args.Get(0).(db.Summary), args.Error(1)
}

// MockLocker is a mock implementation of Locker
type MockLocker struct {
	mock.Mock
	released int
}

func (m *MockLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	args := m.Called(ctx, name, ttl)
	release := func(context.Context) error {
		m.released++
		return nil
	}
	return release, args.Bool(0), args.Error(1)
}
