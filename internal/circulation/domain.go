package circulation

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lendingdesk/internal/payments"
	"lendingdesk/internal/store"
)

// Loan is one copy of a book lent to a member until ReturnDate.
type Loan struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	MemberID   uuid.UUID       `db:"member_id" json:"member_id"`
	BookID     uuid.UUID       `db:"book_id" json:"book_id"`
	ReturnDate store.Date      `db:"return_date" json:"return_date"`
	Returned   bool            `db:"returned" json:"returned"`
	Fine       decimal.Decimal `db:"fine" json:"fine"`
	store.Audit
}

// OverdueOn reports whether the loan is still out after its return date.
func (l *Loan) OverdueOn(today store.Date) bool {
	return !l.Returned && l.ReturnDate.Before(today)
}

// LoanView is a loan listed with its member and book.
type LoanView struct {
	Loan
	MemberName string `db:"member_name" json:"member_name"`
	BookTitle  string `db:"book_title" json:"book_title"`
	BookAuthor string `db:"book_author" json:"book_author"`
	Overdue    bool   `db:"-" json:"overdue"`
}

// LendRequest lends one copy of each book to a member. The borrowing fees are paid up front.
type LendRequest struct {
	MemberID      uuid.UUID       `json:"member_id" validate:"required"`
	BookIDs       []uuid.UUID     `json:"book_ids" validate:"min=1,unique"`
	ReturnDate    store.Date      `json:"return_date"`
	Fine          decimal.Decimal `json:"fine" validate:"gte=0"`
	PaymentMethod payments.Method `json:"payment_method" validate:"required,oneof=cash momo card zalopay"`
}

// LendResult holds the loans created and the transaction for their fees.
type LendResult struct {
	Loans       []*Loan               `json:"loans"`
	Transaction *payments.Transaction `json:"transaction"`
}

// ReturnOutcome says whether a return went through. An overdue loan is left
// untouched and FineDue holds what must be paid first.
type ReturnOutcome struct {
	Loan     *Loan           `json:"loan"`
	Returned bool            `json:"returned"`
	FineDue  decimal.Decimal `json:"fine_due"`
}

// FinePayment is the result of paying an overdue loan's fine.
type FinePayment struct {
	Loan        *Loan                 `json:"loan"`
	Transaction *payments.Transaction `json:"transaction"`
}

// PayFineRequest carries the method used to pay a fine.
type PayFineRequest struct {
	PaymentMethod payments.Method `json:"payment_method" validate:"required,oneof=cash momo card zalopay"`
}

// LoanUpdate is the editable part of a loan.
type LoanUpdate struct {
	ReturnDate store.Date      `json:"return_date"`
	Fine       decimal.Decimal `json:"fine" validate:"gte=0"`
}
