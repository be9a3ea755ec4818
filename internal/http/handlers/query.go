package handlers

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"eventinsight/internal/analytics"
	dbpkg "eventinsight/internal/db"
)

// Reader is the serving side of the gateway.
type Reader interface {
	QueryMetrics(ctx context.Context, tenantID string, q analytics.MetricsQuery) ([]dbpkg.AggregateCounter, error)
	Summary(ctx context.Context, tenantID string, start, end time.Time) (dbpkg.Summary, error)
}

// MetricsHandler serves the tenant's hourly counters, optionally filtered
// by eventTypeId and metricKind.
func MetricsHandler(reader Reader, log *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID, ok := MustTenant(ctx)
		if !ok {
			return
		}
		start, ok := parseTimeArg(ctx, "startDate")
		if !ok {
			return
		}
		end, ok := parseTimeArg(ctx, "endDate")
		if !ok {
			return
		}

		q := analytics.MetricsQuery{
			EventTypeID: string(ctx.QueryArgs().Peek("eventTypeId")),
			MetricKind:  dbpkg.MetricKind(ctx.QueryArgs().Peek("metricKind")),
			StartDate:   start,
			EndDate:     end,
		}

		reqCtx, cancel := requestContext()
		defer cancel()

		rows, err := reader.QueryMetrics(reqCtx, tenantID, q)
		if err != nil {
			writeError(ctx, log, err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, rows)
	}
}

// SummaryHandler serves per-kind totals over the requested range.
func SummaryHandler(reader Reader, log *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID, ok := MustTenant(ctx)
		if !ok {
			return
		}
		start, ok := parseTimeArg(ctx, "startDate")
		if !ok {
			return
		}
		end, ok := parseTimeArg(ctx, "endDate")
		if !ok {
			return
		}

		reqCtx, cancel := requestContext()
		defer cancel()

		sum, err := reader.Summary(reqCtx, tenantID, start, end)
		if err != nil {
			writeError(ctx, log, err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, sum)
	}
}
