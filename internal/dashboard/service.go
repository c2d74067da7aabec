package dashboard

import (
	"context"

	"github.com/google/uuid"
)

type Service interface {
	Summary(ctx context.Context, librarianID uuid.UUID) (*Summary, error)
}
