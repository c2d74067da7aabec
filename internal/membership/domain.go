package membership

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lendingdesk/internal/store"
)

// BorrowingLimit is the outstanding overdue fine above which a member may not borrow.
var BorrowingLimit = decimal.NewFromInt(500)

// Member is a library patron registered by a librarian.
type Member struct {
	ID          uuid.UUID `db:"id" json:"id"`
	LibrarianID uuid.UUID `db:"librarian_id" json:"librarian_id"`
	Name        string    `db:"name" json:"name"`
	Email       string    `db:"email" json:"email"`
	// AmountDue is the sum of fines on overdue loans that are still out. It is computed on read.
	AmountDue decimal.Decimal `db:"amount_due" json:"amount_due"`
	store.Audit
}

// MemberInput is the editable part of a member.
type MemberInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=254"`
}
