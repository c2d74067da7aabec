package auth

import (
	"context"

	"github.com/google/uuid"
)

// Service manages librarian accounts.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Librarian, error)
	Authenticate(ctx context.Context, req LoginRequest) (*Librarian, error)
	GetLibrarian(ctx context.Context, id uuid.UUID) (*Librarian, error)
}
