package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lendingdesk/internal/access"
	"lendingdesk/internal/apperr"
)

type ctxKey struct{}

// WithLibrarian returns a copy of ctx carrying lib as the acting librarian.
func WithLibrarian(ctx context.Context, lib *Librarian) context.Context {
	return context.WithValue(ctx, ctxKey{}, lib)
}

// LibrarianFromContext returns the logged-in librarian, or nil for anonymous requests.
func LibrarianFromContext(ctx context.Context) *Librarian {
	lib, _ := ctx.Value(ctxKey{}).(*Librarian)
	return lib
}

// ActingLibrarianID returns the id every query is scoped to.
func ActingLibrarianID(ctx context.Context) (uuid.UUID, error) {
	if lib := LibrarianFromContext(ctx); lib != nil {
		return lib.ID, nil
	}
	return uuid.Nil, apperr.AccessDenied("login required")
}

// Caller describes the request's librarian for the access gate.
func Caller(r *http.Request) access.Caller {
	lib := LibrarianFromContext(r.Context())
	if lib == nil {
		return access.Caller{}
	}
	return access.Caller{Authenticated: true, Schema: lib.SchemaName}
}

// Middleware loads the librarian referenced by the session. A session pointing at a librarian
// that no longer exists is treated as anonymous.
func Middleware(svc Service, sessions *Sessions, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := sessions.LibrarianID(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			lib, err := svc.GetLibrarian(r.Context(), id)
			if err != nil {
				if apperr.KindOf(err) != apperr.KindNotFound {
					logger.Error("load session librarian", zap.String("librarian_id", id.String()), zap.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithLibrarian(r.Context(), lib)))
		})
	}
}
