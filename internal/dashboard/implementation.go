package dashboard

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"lendingdesk/internal/activity"
	"lendingdesk/internal/catalog"
	"lendingdesk/internal/store"
)

const countsQuery = `
	SELECT
		(SELECT COUNT(*) FROM members WHERE librarian_id = $1) AS members,
		(SELECT COUNT(*) FROM books WHERE librarian_id = $1) AS books,
		(SELECT COUNT(*)
		   FROM borrowed_books bb JOIN books b ON b.id = bb.book_id
		  WHERE b.librarian_id = $1 AND NOT bb.returned) AS active_loans,
		(SELECT COUNT(*)
		   FROM borrowed_books bb JOIN books b ON b.id = bb.book_id
		  WHERE b.librarian_id = $1 AND NOT bb.returned AND bb.return_date < $2) AS overdue_loans,
		(SELECT COALESCE(SUM(t.amount), 0)
		   FROM transactions t JOIN members m ON m.id = t.member_id
		  WHERE m.librarian_id = $1) AS collected,
		(SELECT COALESCE(SUM(bb.fine), 0)
		   FROM borrowed_books bb JOIN books b ON b.id = bb.book_id
		  WHERE b.librarian_id = $1 AND NOT bb.returned AND bb.return_date < $2) AS overdue_fines
`

// service implements the Service interface.
type service struct {
	db       *store.DB
	catalog  catalog.Service
	activity *activity.Log
	logger   *zap.Logger
	today    store.Clock
}

// NewService creates a new dashboard service instance.
func NewService(db *store.DB, books catalog.Service, log *activity.Log, logger *zap.Logger, today store.Clock) Service {
	return &service{db: db, catalog: books, activity: log, logger: logger, today: today}
}

// Summary gathers the counters, the newest books and the latest activity of a librarian.
func (s *service) Summary(ctx context.Context, librarianID uuid.UUID) (*Summary, error) {
	ctx, span := s.db.Span(ctx, "dashboard.summary", attribute.String("librarian.id", librarianID.String()))
	defer span.End()

	sum := &Summary{}
	if err := s.db.GetContext(ctx, &sum.Counts, countsQuery, librarianID, s.today()); err != nil {
		return nil, store.Failure("dashboard counts", err)
	}

	books, err := s.catalog.Recent(ctx, librarianID, recentBooks)
	if err != nil {
		return nil, err
	}
	sum.RecentBooks = books

	events, err := s.activity.Recent(ctx, librarianID, recentActivity)
	if err != nil {
		return nil, err
	}
	sum.RecentActivity = events

	return sum, nil
}
