// Package tenant resolves which tenant a request belongs to and carries the answer in the
// request context.
package tenant

import (
	"context"
	"net/http"
	"strings"
)

const (
	// Public is the unassigned schema every request falls back to.
	Public = "public"

	// CookieName is the cookie consulted when the session carries no tenant.
	CookieName = "tenant"
)

type ctxKey struct{}

// WithID returns a copy of ctx carrying the tenant identifier.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the tenant identifier stored by the middleware, or "" when the
// request never went through it.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// SessionSource reads the tenant stored in the caller's session.
type SessionSource interface {
	Tenant(r *http.Request) string
}

// Resolver picks the tenant for a request: session first, then cookie, then Default.
type Resolver struct {
	Sessions SessionSource
	Cookie   string
	Default  string
}

// NewResolver returns a Resolver using the standard cookie name and the public default.
func NewResolver(sessions SessionSource) *Resolver {
	return &Resolver{Sessions: sessions, Cookie: CookieName, Default: Public}
}

// Resolve never fails: a missing or unreadable source falls through to the next one.
func (res *Resolver) Resolve(r *http.Request) string {
	if res.Sessions != nil {
		if id := strings.TrimSpace(res.Sessions.Tenant(r)); id != "" {
			return id
		}
	}
	if c, err := r.Cookie(res.cookieName()); err == nil {
		if id := strings.TrimSpace(c.Value); id != "" {
			return id
		}
	}
	if res.Default != "" {
		return res.Default
	}
	return Public
}

// Middleware stores the resolved tenant in the request context for the rest of the chain.
// Each request gets a fresh context, so nothing carries over between requests.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithID(r.Context(), res.Resolve(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (res *Resolver) cookieName() string {
	if res.Cookie == "" {
		return CookieName
	}
	return res.Cookie
}
