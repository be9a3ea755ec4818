package middleware

import (
	"strings"

	"github.com/valyala/fasthttp"

	httpctx "eventinsight/internal/http/ctx"
)

// TenantHeader carries the tenant resolved by the upstream organization
// resolver.
const TenantHeader = "X-Org-Id"

// Tenant reads the tenant from the X-Org-Id header, falling back to the
// orgId query parameter, and sets it on the context.
func Tenant(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID := strings.TrimSpace(string(ctx.Request.Header.Peek(TenantHeader)))
		if tenantID == "" {
			tenantID = strings.TrimSpace(string(ctx.QueryArgs().Peek("orgId")))
		}
		if tenantID == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("missing " + TenantHeader + " header or orgId query parameter")
			return
		}

		httpctx.SetTenant(ctx, tenantID)
		next(ctx)
	}
}
