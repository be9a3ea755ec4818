package handlers

import (
	"errors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"eventinsight/internal/analytics"
	httpctx "eventinsight/internal/http/ctx"
	"eventinsight/internal/registry"
)

type aggregateResponse struct {
	analytics.CycleResult
	Error string `json:"error,omitempty"`
}

// AggregateNow runs one aggregation cycle synchronously using the runner
// published in the registry.
func AggregateNow(reg *registry.Registry, log *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		runner, err := registry.Lookup[analytics.CycleRunner](reg, analytics.CapabilityAggregator)
		if err != nil {
			log.Error("Aggregator not available", zap.Error(err))
			errResponse(ctx, fasthttp.StatusServiceUnavailable, "aggregator not available")
			return
		}

		admin, _ := httpctx.AdminFromCtx(ctx)
		log.Info("Manual aggregation requested", zap.String("admin", admin))

		reqCtx, cancel := requestContext()
		defer cancel()

		res, err := runner.RunCycle(reqCtx)
		if err == nil {
			jsonResponse(ctx, fasthttp.StatusOK, aggregateResponse{CycleResult: res})
			return
		}

		var partial *analytics.PartialFailureError
		if errors.As(err, &partial) || errors.Is(err, analytics.ErrStoreUnavailable) {
			ctx.Response.Header.Set("Retry-After", "5")
			jsonResponse(ctx, fasthttp.StatusServiceUnavailable, aggregateResponse{CycleResult: res, Error: err.Error()})
			return
		}
		writeError(ctx, log, err)
	}
}
