package handlers

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"eventinsight/internal/analytics"
)

// Ingester is the ingestion side of the gateway.
type Ingester interface {
	Track(ctx context.Context, req analytics.TrackRequest) error
	TrackBatch(ctx context.Context, tenantID string, reqs []analytics.TrackRequest) (int, error)
}

type TrackEvent struct {
	EventTypeID   string         `json:"eventTypeId"`
	SessionID     string         `json:"sessionId,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	UserAgent     string         `json:"userAgent,omitempty"`
	SourceAddress string         `json:"sourceAddress,omitempty"`
	OccurredAt    *time.Time     `json:"occurredAt,omitempty"`
}

// trackBody accepts either a single event or {"events": [...]}.
type trackBody struct {
	TrackEvent
	Events []TrackEvent `json:"events"`
}

func TrackHandler(ingester Ingester, log *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID, ok := MustTenant(ctx)
		if !ok {
			return
		}

		var body trackBody
		if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}

		userAgent := string(ctx.UserAgent())
		remoteIP := ctx.RemoteIP().String()
		toRequest := func(ev TrackEvent) analytics.TrackRequest {
			req := analytics.TrackRequest{
				TenantID:      tenantID,
				EventTypeID:   ev.EventTypeID,
				SessionID:     ev.SessionID,
				Payload:       ev.Payload,
				UserAgent:     ev.UserAgent,
				SourceAddress: ev.SourceAddress,
			}
			if req.UserAgent == "" {
				req.UserAgent = userAgent
			}
			if req.SourceAddress == "" {
				req.SourceAddress = remoteIP
			}
			if ev.OccurredAt != nil {
				req.OccurredAt = *ev.OccurredAt
			}
			return req
		}

		reqCtx, cancel := requestContext()
		defer cancel()

		count := 1
		if body.Events != nil {
			reqs := make([]analytics.TrackRequest, len(body.Events))
			for i, ev := range body.Events {
				reqs[i] = toRequest(ev)
			}
			n, err := ingester.TrackBatch(reqCtx, tenantID, reqs)
			if err != nil {
				writeError(ctx, log, err)
				return
			}
			count = n
		} else if err := ingester.Track(reqCtx, toRequest(body.TrackEvent)); err != nil {
			writeError(ctx, log, err)
			return
		}

		ctx.SetStatusCode(fasthttp.StatusAccepted)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"accepted","count":` + strconv.Itoa(count) + `}`)
	}
}
