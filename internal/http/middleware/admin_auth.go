package middleware

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"

	"eventinsight/internal/config"
	httpctx "eventinsight/internal/http/ctx"
)

// AdminAuth returns middleware that requires HTTP basic auth with the
// configured admin credentials. The password is kept only as a bcrypt hash.
func AdminAuth(cfg *config.Config) (func(fasthttp.RequestHandler) fasthttp.RequestHandler, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	user := []byte(cfg.AdminUser)

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			username, password, ok := basicAuth(ctx.Request.Header.Peek("Authorization"))
			if !ok ||
				subtle.ConstantTimeCompare(username, user) != 1 ||
				bcrypt.CompareHashAndPassword(hash, password) != nil {
				ctx.Response.Header.Set("WWW-Authenticate", `Basic realm="eventinsight admin"`)
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("unauthorized")
				return
			}

			httpctx.SetAdmin(ctx, string(username))
			next(ctx)
		}
	}, nil
}

func basicAuth(header []byte) (username, password []byte, ok bool) {
	const prefix = "Basic "
	if !bytes.HasPrefix(header, []byte(prefix)) {
		return nil, nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(string(header[len(prefix):]))
	if err != nil {
		return nil, nil, false
	}
	username, password, ok = bytes.Cut(decoded, []byte(":"))
	return username, password, ok
}
