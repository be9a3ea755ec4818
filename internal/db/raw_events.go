package db

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// markChunkSize keeps the IN list of a single UPDATE well below the
// bind-parameter limits of both PostgreSQL and SQLite.
const markChunkSize = 1000

// RawEventStore is the append-only, write-optimized store for tracked events.
type RawEventStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRawEventStore returns a RawEventStore backed by db.
func NewRawEventStore(db *gorm.DB) *RawEventStore {
	return &RawEventStore{db: db, now: time.Now}
}

func (s *RawEventStore) prepare(ev *RawEvent) {
	ev.ID = 0
	ev.Processed = false
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	ev.OccurredAt = ev.OccurredAt.UTC()
}

// Append persists a new unprocessed event. OccurredAt defaults to the
// current time. Duplicate occurrences are valid and stored as separate rows.
func (s *RawEventStore) Append(ctx context.Context, ev *RawEvent) error {
	s.prepare(ev)
	return s.db.WithContext(ctx).Create(ev).Error
}

// AppendBatch persists several events in one INSERT.
func (s *RawEventStore) AppendBatch(ctx context.Context, events []RawEvent) error {
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		s.prepare(&events[i])
	}
	return s.db.WithContext(ctx).Create(&events).Error
}

// FetchUnprocessed returns up to limit unprocessed events, oldest first.
// The read is a single statement, so it sees one snapshot of the table.
func (s *RawEventStore) FetchUnprocessed(ctx context.Context, limit int) ([]RawEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	var events []RawEvent
	err := s.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("occurred_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// MarkProcessed flips the processed flag for ids and returns how many rows
// changed. Ids that are already processed (or unknown) are skipped silently.
func (s *RawEventStore) MarkProcessed(ctx context.Context, ids []uint) (int64, error) {
	var marked int64
	for start := 0; start < len(ids); start += markChunkSize {
		end := min(start+markChunkSize, len(ids))
		res := s.db.WithContext(ctx).
			Model(&RawEvent{}).
			Where("id IN ? AND processed = ?", ids[start:end], false).
			Update("processed", true)
		if res.Error != nil {
			return marked, res.Error
		}
		marked += res.RowsAffected
	}
	return marked, nil
}

// CountUnprocessed reports the current backlog of events waiting for aggregation.
func (s *RawEventStore) CountUnprocessed(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&RawEvent{}).Where("processed = ?", false).Count(&n).Error
	return n, err
}
