package payments

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lendingdesk/internal/store"
)

// Method is how a member paid.
type Method string

const (
	Cash    Method = "cash"
	Momo    Method = "momo"
	Card    Method = "card"
	ZaloPay Method = "zalopay"
)

// Methods lists the accepted payment methods in display order.
func Methods() []Method {
	return []Method{Cash, Momo, Card, ZaloPay}
}

func (m Method) Valid() bool {
	switch m {
	case Cash, Momo, Card, ZaloPay:
		return true
	}
	return false
}

// Transaction is money received from a member, either borrowing fees or a fine.
type Transaction struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	MemberID      uuid.UUID       `db:"member_id" json:"member_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	PaymentMethod Method          `db:"payment_method" json:"payment_method"`
	store.Audit
}

// Payment is a transaction listed with the name of the member who paid.
type Payment struct {
	Transaction
	MemberName string `db:"member_name" json:"member_name"`
}
