package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eventinsight/internal/db"
	"eventinsight/internal/metrics"
)

const (
	DefaultBatchSize = 10000
	DefaultJobName   = "aggregate-events"
	defaultLeaseTTL  = 5 * time.Minute
)

// CycleResult describes one aggregation cycle.
type CycleResult struct {
	RunID   string `json:"runId"`
	Skipped bool   `json:"skipped,omitempty"`
	Events  int    `json:"events"`
	Buckets int    `json:"buckets"`
	Upserts int    `json:"upserts"`
	Marked  int64  `json:"marked"`
}

// Aggregator folds unprocessed raw events into hourly counters.
//
// A cycle fetches a batch, increments counters for every bucket and only
// then marks the batch processed. A failed cycle leaves the whole batch
// unprocessed for the next one.
type Aggregator struct {
	raw      RawEventStore
	counters CounterStore
	locker   Locker
	metrics  *metrics.Collectors
	log      *zap.Logger

	name      string
	batchSize int
	leaseTTL  time.Duration
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithBatchSize bounds the number of events read per cycle.
func WithBatchSize(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithLocker makes every cycle hold the named lease for at most ttl.
func WithLocker(l Locker, ttl time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if l != nil {
			a.locker = l
		}
		if ttl > 0 {
			a.leaseTTL = ttl
		}
	}
}

// WithMetrics records cycle outcomes on c.
func WithMetrics(c *metrics.Collectors) AggregatorOption {
	return func(a *Aggregator) { a.metrics = c }
}

// WithJobName sets the name used for the lease and in logs.
func WithJobName(name string) AggregatorOption {
	return func(a *Aggregator) {
		if name != "" {
			a.name = name
		}
	}
}

// NewAggregator creates a new aggregator
func NewAggregator(raw RawEventStore, counters CounterStore, log *zap.Logger, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		raw:       raw,
		counters:  counters,
		locker:    noopLocker{},
		log:       log,
		name:      DefaultJobName,
		batchSize: DefaultBatchSize,
		leaseTTL:  defaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunCycle runs one aggregation cycle.
func (a *Aggregator) RunCycle(ctx context.Context) (CycleResult, error) {
	res := CycleResult{RunID: uuid.NewString()}
	log := a.log.With(zap.String("job", a.name), zap.String("run_id", res.RunID))
	start := time.Now()

	release, ok, err := a.locker.Acquire(ctx, a.name, a.leaseTTL)
	if err != nil {
		a.metrics.CycleFinished(metrics.OutcomeFailed, 0, time.Since(start))
		return res, storeErr("acquire lease", err)
	}
	if !ok {
		res.Skipped = true
		log.Info("Aggregation lease held by another runner, skipping cycle")
		a.metrics.CycleFinished(metrics.OutcomeSkipped, 0, time.Since(start))
		return res, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to release aggregation lease", zap.Error(err))
		}
	}()

	err = a.aggregate(ctx, &res, log)
	took := time.Since(start)

	var partial *PartialFailureError
	switch {
	case errors.As(err, &partial):
		log.Error("Aggregation cycle failed after partial upserts; batch left unprocessed",
			zap.Int("applied", partial.Applied),
			zap.Int("total", partial.Total),
			zap.Error(err))
		a.metrics.CycleFinished(metrics.OutcomePartial, 0, took)
	case err != nil:
		log.Error("Aggregation cycle failed", zap.Error(err))
		a.metrics.CycleFinished(metrics.OutcomeFailed, 0, took)
	case res.Events == 0:
		a.metrics.CycleFinished(metrics.OutcomeEmpty, 0, took)
	default:
		a.metrics.CycleFinished(metrics.OutcomeOK, res.Marked, took)
	}
	return res, err
}

func (a *Aggregator) aggregate(ctx context.Context, res *CycleResult, log *zap.Logger) error {
	events, err := a.raw.FetchUnprocessed(ctx, a.batchSize)
	if err != nil {
		return storeErr("fetch unprocessed events", err)
	}
	if len(events) == 0 {
		log.Debug("No events to aggregate")
		return nil
	}

	log.Info("Aggregating raw events", zap.Int("events", len(events)))

	buckets := Bucketize(events)
	res.Events = len(events)
	res.Buckets = len(buckets)
	total := 2 * len(buckets)

	for _, b := range buckets {
		for _, inc := range b.increments() {
			key := db.CounterKey{TenantID: b.TenantID, EventTypeID: b.EventTypeID, MetricKind: inc.kind}
			if err := a.counters.UpsertIncrement(ctx, key, inc.delta, b.PeriodStart, b.PeriodEnd); err != nil {
				return a.abort(res, total, storeErr("upsert counter", err))
			}
			res.Upserts++
			a.metrics.CounterUpserted(string(inc.kind))
		}
	}

	ids := make([]uint, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	marked, err := a.raw.MarkProcessed(ctx, ids)
	if err != nil {
		return a.abort(res, total, storeErr("mark events processed", err))
	}
	res.Marked = marked

	log.Info("Aggregation complete",
		zap.Int("events", res.Events),
		zap.Int("buckets", res.Buckets),
		zap.Int64("marked", marked))
	return nil
}

// abort reports a failure that happened before markProcessed. It is only a
// partial failure when some increments already landed.
func (a *Aggregator) abort(res *CycleResult, total int, err error) error {
	if res.Upserts == 0 {
		return err
	}
	return &PartialFailureError{RunID: res.RunID, Applied: res.Upserts, Total: total, Err: err}
}
