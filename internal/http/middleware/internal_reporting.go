package middleware

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"eventinsight/internal/analytics"
	"eventinsight/internal/registry"
)

// InternalEventType is the event type used for self-tracked requests.
const InternalEventType = "http_request"

const internalTrackTimeout = 2 * time.Second

// InternalReporting tracks the requests served by this instance as events
// of the internal tenant. If tenant is empty or no tracker is registered,
// this middleware does nothing.
func InternalReporting(reg *registry.Registry, tenant string, log *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	passthrough := func(next fasthttp.RequestHandler) fasthttp.RequestHandler { return next }
	if tenant == "" {
		return passthrough
	}
	tracker, err := registry.Lookup[analytics.Tracker](reg, analytics.CapabilityTracker)
	if err != nil {
		log.Warn("Internal reporting disabled", zap.Error(err))
		return passthrough
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(ctx)
			duration := time.Since(start)

			path := string(ctx.Path())
			switch path {
			case "/v1/track", "/metrics", "/v1/prometheus", "/healthz":
				return
			}

			req := analytics.TrackRequest{
				TenantID:    tenant,
				EventTypeID: InternalEventType,
				Payload: map[string]any{
					"path":        path,
					"method":      string(ctx.Method()),
					"status":      ctx.Response.StatusCode(),
					"duration_ms": duration.Milliseconds(),
				},
				UserAgent:     string(ctx.UserAgent()),
				SourceAddress: ctx.RemoteIP().String(),
				OccurredAt:    start,
			}

			go func() {
				trackCtx, cancel := context.WithTimeout(context.Background(), internalTrackTimeout)
				defer cancel()
				if err := tracker.Track(trackCtx, req); err != nil {
					log.Debug("Internal reporting failed", zap.String("path", path), zap.Error(err))
				}
			}()
		}
	}
}
