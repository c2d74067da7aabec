package access

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"lendingdesk/internal/apperr"
	"lendingdesk/internal/httpx"
	"lendingdesk/internal/tenant"
)

const deniedMessage = "you need to log in to access this page"

// Gate renders Decide's answer for every request.
type Gate struct {
	Policy            Policy
	TrustProxyHeaders bool
	Caller            func(*http.Request) Caller
	Logger            *zap.Logger
}

// Secure reports whether the client connected over TLS, directly or through a trusted proxy.
func (g *Gate) Secure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return g.TrustProxyHeaders && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := Decide(Request{
			Path:   r.URL.Path,
			Host:   r.Host,
			Secure: g.Secure(r),
			Tenant: tenant.FromContext(r.Context()),
		}, g.Caller(r), g.Policy)

		switch d.Outcome {
		case Allow:
			next.ServeHTTP(w, r)
		case Redirect:
			g.Logger.Debug("access redirect",
				zap.String("path", r.URL.Path),
				zap.String("target", d.URL()),
				zap.String("reason", d.Reason),
			)
			http.Redirect(w, r, d.URL(), http.StatusFound)
		default:
			g.Logger.Debug("access denied", zap.String("path", r.URL.Path), zap.String("reason", d.Reason))
			httpx.WriteError(w, r, g.Logger, apperr.AccessDenied(deniedMessage))
		}
	})
}
