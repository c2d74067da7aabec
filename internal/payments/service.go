package payments

import (
	"context"

	"github.com/google/uuid"
)

// Service lists and removes the payments taken from a librarian's members.
type Service interface {
	List(ctx context.Context, librarianID uuid.UUID, query string) ([]*Payment, error)
	Delete(ctx context.Context, librarianID, id uuid.UUID) error
}
