package analytics

import (
	"sort"
	"time"

	"eventinsight/internal/db"
)

// BucketWidth is the fixed aggregation period.
const BucketWidth = time.Hour

// HourFloor returns the start of the UTC hour containing t.
func HourFloor(t time.Time) time.Time {
	return t.UTC().Truncate(BucketWidth)
}

// Bucket accumulates the events of one (tenant, event type, hour).
type Bucket struct {
	TenantID    string
	EventTypeID string
	PeriodStart time.Time
	PeriodEnd   time.Time

	TotalCount int64
	sessions   map[string]struct{}
}

// UniqueSessions is the number of distinct non-empty session ids seen.
func (b *Bucket) UniqueSessions() int64 {
	return int64(len(b.sessions))
}

func (b *Bucket) add(ev *db.RawEvent) {
	b.TotalCount++
	if ev.SessionID != "" {
		b.sessions[ev.SessionID] = struct{}{}
	}
}

// increments lists the counter writes this bucket contributes. CONVERSIONS
// has no producer at this stage.
func (b *Bucket) increments() []increment {
	return []increment{
		{kind: db.MetricTotalCount, delta: b.TotalCount},
		{kind: db.MetricUniqueSessions, delta: b.UniqueSessions()},
	}
}

type increment struct {
	kind  db.MetricKind
	delta int64
}

type bucketKey struct {
	tenantID    string
	eventTypeID string
	periodStart int64
}

// Bucketize groups events by tenant, event type and hour. The result is
// ordered by period start, then tenant, then event type.
func Bucketize(events []db.RawEvent) []*Bucket {
	index := make(map[bucketKey]*Bucket)
	buckets := make([]*Bucket, 0)
	for i := range events {
		ev := &events[i]
		start := HourFloor(ev.OccurredAt)
		k := bucketKey{tenantID: ev.TenantID, eventTypeID: ev.EventTypeID, periodStart: start.Unix()}
		b, ok := index[k]
		if !ok {
			b = &Bucket{
				TenantID:    ev.TenantID,
				EventTypeID: ev.EventTypeID,
				PeriodStart: start,
				PeriodEnd:   start.Add(BucketWidth),
				sessions:    make(map[string]struct{}),
			}
			index[k] = b
			buckets = append(buckets, b)
		}
		b.add(ev)
	}

	sort.Slice(buckets, func(i, j int) bool {
		a, b := buckets[i], buckets[j]
		if !a.PeriodStart.Equal(b.PeriodStart) {
			return a.PeriodStart.Before(b.PeriodStart)
		}
		if a.TenantID != b.TenantID {
			return a.TenantID < b.TenantID
		}
		return a.EventTypeID < b.EventTypeID
	})
	return buckets
}
