package analytics

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"eventinsight/internal/db"
	"eventinsight/internal/metrics"
)

// TrackRequest is one occurrence handed to the ingestion path. TenantID is
// expected to be resolved and validated by the caller.
type TrackRequest struct {
	TenantID      string
	EventTypeID   string
	SessionID     string
	Payload       map[string]any
	UserAgent     string
	SourceAddress string
	// OccurredAt defaults to ingestion time when zero.
	OccurredAt time.Time
}

// MetricsQuery selects counters for a dashboard read.
type MetricsQuery struct {
	EventTypeID string
	MetricKind  db.MetricKind
	StartDate   time.Time
	EndDate     time.Time
}

// Gateway is the boundary other collaborators call into: Track on the
// ingestion side, QueryMetrics and Summary on the serving side. It never
// waits on aggregation.
type Gateway struct {
	raw      RawEventStore
	counters CounterStore
	metrics  *metrics.Collectors
	log      *zap.Logger
}

// NewGateway creates a new gateway
func NewGateway(raw RawEventStore, counters CounterStore, m *metrics.Collectors, log *zap.Logger) *Gateway {
	return &Gateway{raw: raw, counters: counters, metrics: m, log: log}
}

func (g *Gateway) toRawEvent(req TrackRequest) (db.RawEvent, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	eventTypeID := strings.TrimSpace(req.EventTypeID)
	if tenantID == "" {
		g.metrics.TrackRejected("missing_tenant")
		return db.RawEvent{}, invalid("tenantId", "is required")
	}
	if eventTypeID == "" {
		g.metrics.TrackRejected("missing_event_type")
		return db.RawEvent{}, invalid("eventTypeId", "is required")
	}

	var payload datatypes.JSONMap
	if len(req.Payload) > 0 {
		payload = make(datatypes.JSONMap, len(req.Payload))
		for k, v := range req.Payload {
			payload[k] = v
		}
	}

	return db.RawEvent{
		TenantID:      tenantID,
		EventTypeID:   eventTypeID,
		SessionID:     req.SessionID,
		Payload:       payload,
		UserAgent:     req.UserAgent,
		SourceAddress: req.SourceAddress,
		OccurredAt:    req.OccurredAt,
	}, nil
}

// Track appends one raw event.
func (g *Gateway) Track(ctx context.Context, req TrackRequest) error {
	ev, err := g.toRawEvent(req)
	if err != nil {
		return err
	}
	if err := g.raw.Append(ctx, &ev); err != nil {
		return storeErr("append raw event", err)
	}
	g.metrics.EventTracked(ev.TenantID, ev.EventTypeID)
	return nil
}

// TrackBatch appends every valid request of a batch for tenantID in one
// write and returns how many were accepted. Invalid entries are skipped; a
// batch without any valid entry fails validation.
func (g *Gateway) TrackBatch(ctx context.Context, tenantID string, reqs []TrackRequest) (int, error) {
	if len(reqs) == 0 {
		return 0, invalid("events", "no events provided")
	}

	records := make([]db.RawEvent, 0, len(reqs))
	for i, req := range reqs {
		req.TenantID = tenantID
		ev, err := g.toRawEvent(req)
		if err != nil {
			g.log.Debug("Skipping invalid event in batch", zap.Int("index", i), zap.Error(err))
			continue
		}
		records = append(records, ev)
	}
	if len(records) == 0 {
		return 0, invalid("events", "no valid events after validation")
	}

	if err := g.raw.AppendBatch(ctx, records); err != nil {
		return 0, storeErr("append raw events", err)
	}
	for _, ev := range records {
		g.metrics.EventTracked(ev.TenantID, ev.EventTypeID)
	}
	return len(records), nil
}

func validateRange(tenantID string, start, end time.Time) error {
	if strings.TrimSpace(tenantID) == "" {
		return invalid("tenantId", "is required")
	}
	if start.IsZero() {
		return invalid("startDate", "is required")
	}
	if end.IsZero() {
		return invalid("endDate", "is required")
	}
	if start.After(end) {
		return invalid("startDate", "must not be after endDate")
	}
	return nil
}

// QueryMetrics returns the tenant's counters within the requested range.
// The request is validated before any store is touched.
func (g *Gateway) QueryMetrics(ctx context.Context, tenantID string, q MetricsQuery) ([]db.AggregateCounter, error) {
	if err := validateRange(tenantID, q.StartDate, q.EndDate); err != nil {
		return nil, err
	}
	if q.MetricKind != "" && !q.MetricKind.Valid() {
		return nil, invalid("metricKind", "must be one of TOTAL_COUNT, UNIQUE_SESSIONS, CONVERSIONS")
	}

	rows, err := g.counters.Query(ctx, tenantID,
		db.CounterFilter{EventTypeID: q.EventTypeID, MetricKind: q.MetricKind},
		db.PeriodRange{Start: q.StartDate, End: q.EndDate})
	if err != nil {
		return nil, storeErr("query counters", err)
	}
	return rows, nil
}

// Summary returns per-kind totals for the tenant within the range.
func (g *Gateway) Summary(ctx context.Context, tenantID string, start, end time.Time) (db.Summary, error) {
	if err := validateRange(tenantID, start, end); err != nil {
		return db.Summary{}, err
	}
	sum, err := g.counters.Summary(ctx, tenantID, db.PeriodRange{Start: start, End: end})
	if err != nil {
		return db.Summary{}, storeErr("summarize counters", err)
	}
	return sum, nil
}
