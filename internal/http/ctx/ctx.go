package ctx

import (
	"github.com/valyala/fasthttp"
)

const (
	TenantKey = "tenant"
	AdminKey  = "admin"
)

func SetTenant(ctx *fasthttp.RequestCtx, tenantID string) {
	ctx.SetUserValue(TenantKey, tenantID)
}

func TenantFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(TenantKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func SetAdmin(ctx *fasthttp.RequestCtx, username string) {
	ctx.SetUserValue(AdminKey, username)
}

func AdminFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(AdminKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
