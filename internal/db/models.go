package db

import (
	"time"

	"gorm.io/datatypes"
)

// MetricKind names the counter a row of AggregateCounter holds.
type MetricKind string

const (
	MetricTotalCount     MetricKind = "TOTAL_COUNT"
	MetricUniqueSessions MetricKind = "UNIQUE_SESSIONS"
	// MetricConversions is defined but nothing in the aggregation job
	// produces it yet.
	MetricConversions MetricKind = "CONVERSIONS"
)

// MetricKinds lists every known kind in a stable order.
var MetricKinds = []MetricKind{MetricTotalCount, MetricUniqueSessions, MetricConversions}

// Valid reports whether k is one of the known metric kinds.
func (k MetricKind) Valid() bool {
	switch k {
	case MetricTotalCount, MetricUniqueSessions, MetricConversions:
		return true
	}
	return false
}

// RawEvent is a single tracked occurrence as written by the ingestion path.
// Rows are append-only; the aggregation job flips Processed exactly once and
// nothing in this service deletes them.
type RawEvent struct {
	ID uint `gorm:"primaryKey" json:"id"`

	EventTypeID string `gorm:"index;size:128;not null" json:"eventTypeId"`
	TenantID    string `gorm:"index;size:128;not null" json:"tenantId"`

	// SessionID feeds the unique-session counter. Empty values are not counted.
	SessionID string `gorm:"size:255" json:"sessionId,omitempty"`

	// Payload holds arbitrary key/value pairs attached by the caller.
	Payload datatypes.JSONMap `gorm:"type:json" json:"payload,omitempty"`

	UserAgent     string `json:"userAgent,omitempty"`
	SourceAddress string `gorm:"size:64" json:"sourceAddress,omitempty"`

	OccurredAt time.Time `gorm:"index:idx_raw_events_pending,priority:2;not null" json:"occurredAt"`
	Processed  bool      `gorm:"index:idx_raw_events_pending,priority:1;not null;default:false" json:"processed"`
}

// AggregateCounter stores one hourly counter per
// (tenant, event type, metric kind, period start). Filled by the
// aggregation job with increments only.
type AggregateCounter struct {
	ID uint `gorm:"primaryKey" json:"id"`

	TenantID    string     `gorm:"uniqueIndex:idx_aggregate_counter_key,priority:1;size:128;not null" json:"tenantId"`
	EventTypeID string     `gorm:"uniqueIndex:idx_aggregate_counter_key,priority:2;size:128;not null" json:"eventTypeId"`
	MetricKind  MetricKind `gorm:"uniqueIndex:idx_aggregate_counter_key,priority:3;size:32;not null" json:"metricKind"`
	PeriodStart time.Time  `gorm:"uniqueIndex:idx_aggregate_counter_key,priority:4;not null" json:"periodStart"` // start of the hour (UTC)
	PeriodEnd   time.Time  `gorm:"not null" json:"periodEnd"`

	Value int64 `gorm:"not null" json:"value"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// CounterKey is the natural key of an AggregateCounter minus its period.
type CounterKey struct {
	TenantID    string
	EventTypeID string
	MetricKind  MetricKind
}

// CounterFilter narrows a counter query. Empty fields match everything.
type CounterFilter struct {
	EventTypeID string
	MetricKind  MetricKind
}

// PeriodRange is an inclusive [Start, End] window over counter periods.
type PeriodRange struct {
	Start time.Time
	End   time.Time
}

// Summary holds the per-kind sums of counter values over a range.
type Summary struct {
	TotalEvents    int64 `json:"totalEvents"`
	UniqueSessions int64 `json:"uniqueSessions"`
	Conversions    int64 `json:"conversions"`
}
