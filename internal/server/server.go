// Package server assembles the services and the HTTP router.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"lendingdesk/internal/access"
	"lendingdesk/internal/activity"
	"lendingdesk/internal/auth"
	"lendingdesk/internal/catalog"
	"lendingdesk/internal/circulation"
	"lendingdesk/internal/dashboard"
	"lendingdesk/internal/httpx"
	"lendingdesk/internal/logging"
	"lendingdesk/internal/membership"
	"lendingdesk/internal/payments"
	"lendingdesk/internal/store"
	"lendingdesk/internal/tenant"
)

const healthzPath = "/healthz"

// Services are the domain services behind the router.
type Services struct {
	Auth        auth.Service
	Catalog     catalog.Service
	Members     membership.Service
	Circulation circulation.Service
	Payments    payments.Service
	Dashboard   dashboard.Service
}

// NewServices builds every service on db. A nil limiter uses the auth default.
func NewServices(db *store.DB, logger *zap.Logger, today store.Clock, limiter *auth.Limiter) Services {
	log := activity.NewLog(db)
	books := catalog.NewService(db, logger.Named("catalog"))

	return Services{
		Auth:        auth.NewService(db, logger.Named("auth"), limiter),
		Catalog:     books,
		Members:     membership.NewService(db, logger.Named("membership"), today),
		Circulation: circulation.NewService(db, log, logger.Named("circulation"), today),
		Payments:    payments.NewService(db, log, logger.Named("payments")),
		Dashboard:   dashboard.NewService(db, books, log, logger.Named("dashboard"), today),
	}
}

// Options configure the request pipeline.
type Options struct {
	Sessions          *auth.Sessions
	Policy            access.Policy
	TrustProxyHeaders bool

	// Health is called by GET /healthz. Nil always reports healthy.
	Health func(context.Context) error
}

// NewRouter wires the middleware chain and mounts every endpoint.
//
// Every request resolves its tenant first. Everything except /healthz then loads the session's
// librarian and passes the access gate before reaching a handler.
func NewRouter(opts Options, svc Services, logger *zap.Logger) http.Handler {
	gate := &access.Gate{
		Policy:            opts.Policy,
		TrustProxyHeaders: opts.TrustProxyHeaders,
		Caller:            auth.Caller,
		Logger:            logger.Named("access"),
	}
	resolver := tenant.NewResolver(opts.Sessions)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(resolver.Middleware)
	r.Use(logging.AccessLog(logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Use(except(healthzPath, auth.Middleware(svc.Auth, opts.Sessions, logger.Named("auth"))))
	r.Use(except(healthzPath, gate.Middleware))

	r.Get(healthzPath, healthz(opts.Health, logger))

	authHandler := auth.NewHandler(svc.Auth, opts.Sessions, logger.Named("auth"), gate.Secure)
	loans := circulation.NewHandler(svc.Circulation, logger.Named("circulation"))

	r.Get("/", dashboard.NewHandler(svc.Dashboard, logger.Named("dashboard")).HandleHome)

	r.Post(access.LoginPath, authHandler.HandleLogin)
	r.Post(access.TenantLoginPath, authHandler.HandleTenantLogin)
	r.Post(access.RegisterPath, authHandler.HandleRegister)
	r.Post("/logout/", authHandler.HandleLogout)

	r.Route("/members", membership.NewHandler(svc.Members, logger.Named("membership")).Routes)
	r.Route("/books", catalog.NewHandler(svc.Catalog, logger.Named("catalog")).Routes)
	r.Route("/lent-books", loans.Routes)
	r.Route("/overdue-books", loans.OverdueRoutes)
	r.Route("/payments", payments.NewHandler(svc.Payments, logger.Named("payments")).Routes)

	return r
}

// except applies mw to every request whose path is not path. Router-level middleware runs
// before route lookup, so unknown paths and wrong methods still pass through mw.
func except(path string, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == path {
				next.ServeHTTP(w, r)
				return
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}

func healthz(check func(context.Context) error, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// NewHTTPServer returns an http.Server with the timeouts used in production.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
