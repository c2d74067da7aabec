package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog service. Every call is scoped to the acting
// librarian; books owned by someone else are reported as not found.
type Service interface {
	AddBook(ctx context.Context, librarianID uuid.UUID, in BookInput) (*Book, error)
	GetBook(ctx context.Context, librarianID, id uuid.UUID) (*Book, error)
	UpdateBook(ctx context.Context, librarianID, id uuid.UUID, in BookInput) (*Book, error)
	RemoveBook(ctx context.Context, librarianID, id uuid.UUID) error
	Search(ctx context.Context, librarianID uuid.UUID, query string) ([]*Book, error)
	Recent(ctx context.Context, librarianID uuid.UUID, limit uint) ([]*Book, error)
}
