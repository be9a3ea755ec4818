package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"eventinsight/internal/analytics"
	httpctx "eventinsight/internal/http/ctx"
)

const requestTimeout = 30 * time.Second

// RequestLogger returns fasthttp middleware that logs method, path, status, duration.
func RequestLogger(log *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(ctx)
			log.Info("Request served",
				zap.ByteString("method", ctx.Method()),
				zap.ByteString("path", ctx.Path()),
				zap.Int("status", ctx.Response.StatusCode()),
				zap.Duration("took", time.Since(start)),
				zap.String("ip", ctx.RemoteIP().String()))
		}
	}
}

// MustTenant returns the tenant from context, or sends 400 and returns ("", false).
func MustTenant(ctx *fasthttp.RequestCtx) (string, bool) {
	tenantID, ok := httpctx.TenantFromCtx(ctx)
	if !ok {
		errResponse(ctx, fasthttp.StatusBadRequest, "missing tenant")
		return "", false
	}
	return tenantID, true
}

// requestContext bounds the store calls made on behalf of one request.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func jsonResponse(ctx *fasthttp.RequestCtx, code int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		errResponse(ctx, fasthttp.StatusInternalServerError, "failed to encode response")
		return
	}
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	ctx.SetBodyString(msg)
}

// writeError maps analytics errors to status codes: validation failures are
// the caller's fault, store failures are retryable.
func writeError(ctx *fasthttp.RequestCtx, log *zap.Logger, err error) {
	var verr *analytics.ValidationError
	switch {
	case errors.As(err, &verr):
		errResponse(ctx, fasthttp.StatusBadRequest, verr.Error())
	case errors.Is(err, analytics.ErrStoreUnavailable):
		log.Warn("Store unavailable", zap.ByteString("path", ctx.Path()), zap.Error(err))
		ctx.Response.Header.Set("Retry-After", "5")
		errResponse(ctx, fasthttp.StatusServiceUnavailable, "store unavailable, retry later")
	default:
		log.Error("Request failed", zap.ByteString("path", ctx.Path()), zap.Error(err))
		errResponse(ctx, fasthttp.StatusInternalServerError, "internal error")
	}
}

// parseTimeArg reads an RFC3339 query argument. A missing argument yields
// the zero time and is left to the gateway to reject.
func parseTimeArg(ctx *fasthttp.RequestCtx, name string) (time.Time, bool) {
	v := string(ctx.QueryArgs().Peek(name))
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		errResponse(ctx, fasthttp.StatusBadRequest, "invalid "+name+": expected RFC3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}
