package dashboard

import (
	"github.com/shopspring/decimal"

	"lendingdesk/internal/activity"
	"lendingdesk/internal/catalog"
)

const (
	recentBooks    = 4
	recentActivity = 10
)

// Counts are the per-librarian totals shown on the home page.
type Counts struct {
	Members      int             `db:"members" json:"total_members"`
	Books        int             `db:"books" json:"total_books"`
	ActiveLoans  int             `db:"active_loans" json:"total_borrowed_books"`
	OverdueLoans int             `db:"overdue_loans" json:"total_overdue_books"`
	Collected    decimal.Decimal `db:"collected" json:"total_amount"`
	OverdueFines decimal.Decimal `db:"overdue_fines" json:"overdue_amount"`
}

// Summary is the home page of a librarian.
type Summary struct {
	Counts
	RecentBooks    []*catalog.Book  `json:"recently_added_books"`
	RecentActivity []activity.Event `json:"recent_activity"`
}
