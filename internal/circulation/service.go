package circulation

import (
	"context"

	"github.com/google/uuid"
)

// Service lends books and takes them back. Each operation runs in one database
// transaction, so book quantities, loans and payments never disagree.
type Service interface {
	Lend(ctx context.Context, librarianID uuid.UUID, req LendRequest) (*LendResult, error)
	Return(ctx context.Context, librarianID, loanID uuid.UUID) (*ReturnOutcome, error)
	PayFine(ctx context.Context, librarianID, loanID uuid.UUID, req PayFineRequest) (*FinePayment, error)
	UpdateLoan(ctx context.Context, librarianID, loanID uuid.UUID, in LoanUpdate) (*Loan, error)
	DeleteLoan(ctx context.Context, librarianID, loanID uuid.UUID) error
	ListLoans(ctx context.Context, librarianID uuid.UUID, query string) ([]*LoanView, error)
	ListOverdue(ctx context.Context, librarianID uuid.UUID, query string) ([]*LoanView, error)
}
