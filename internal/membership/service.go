package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	AddMember(ctx context.Context, librarianID uuid.UUID, in MemberInput) (*Member, error)
	GetMember(ctx context.Context, librarianID, id uuid.UUID) (*Member, error)
	UpdateMember(ctx context.Context, librarianID, id uuid.UUID, in MemberInput) (*Member, error)
	RemoveMember(ctx context.Context, librarianID, id uuid.UUID) error
	Search(ctx context.Context, librarianID uuid.UUID, query string) ([]*Member, error)
}
