package circulation

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"lendingdesk/internal/activity"
	"lendingdesk/internal/apperr"
	"lendingdesk/internal/catalog"
	"lendingdesk/internal/membership"
	"lendingdesk/internal/payments"
	"lendingdesk/internal/store"
	"lendingdesk/internal/validation"
)

const loanColumns = `bb.id, bb.member_id, bb.book_id, bb.return_date, bb.returned, bb.fine, bb.created_at, bb.updated_at`

var (
	errBorrowingLimit  = apperr.Rule("borrowing limit exceeded")
	errForeignMember   = apperr.Rule("the member is not registered with this librarian")
	errAlreadyReturned = apperr.Rule("book already returned")
	errNoFineDue       = apperr.Rule("no fine due")
)

// service implements the Service interface.
type service struct {
	db       *store.DB
	activity *activity.Log
	logger   *zap.Logger
	today    store.Clock
	metrics  *metrics
}

// NewService creates a new circulation service instance.
func NewService(db *store.DB, log *activity.Log, logger *zap.Logger, today store.Clock) Service {
	return &service{
		db:       db,
		activity: log,
		logger:   logger,
		today:    today,
		metrics:  newMetrics(logger),
	}
}

func validateLend(req *LendRequest) error {
	req.PaymentMethod = payments.Method(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))

	errs := validation.Check(req)
	if req.ReturnDate.IsZero() {
		errs = errs.Add("return_date", "this field is required")
	}
	return errs.Err()
}

func validateUpdate(in *LoanUpdate) error {
	errs := validation.Check(in)
	if in.ReturnDate.IsZero() {
		errs = errs.Add("return_date", "this field is required")
	}
	return errs.Err()
}

// lockedBook is the part of a book row Lend needs while holding its lock.
type lockedBook struct {
	ID           uuid.UUID       `db:"id"`
	LibrarianID  uuid.UUID       `db:"librarian_id"`
	Title        string          `db:"title"`
	Quantity     int             `db:"quantity"`
	BorrowingFee decimal.Decimal `db:"borrowing_fee"`
}

// lockMember locks the member row so concurrent lends to one member see the same amount due.
func lockMember(ctx context.Context, tx *sqlx.Tx, librarianID, memberID uuid.UUID) error {
	var owner uuid.UUID
	err := tx.GetContext(ctx, &owner, `SELECT librarian_id FROM members WHERE id = $1 FOR UPDATE`, memberID)
	switch {
	case store.IsNoRows(err):
		return errForeignMember
	case err != nil:
		return store.Failure("lock member", err)
	case owner != librarianID:
		return errForeignMember
	}
	return nil
}

// lockBooks locks every requested book in id order.
func lockBooks(ctx context.Context, tx *sqlx.Tx, librarianID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*lockedBook, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	var rows []*lockedBook
	err := tx.SelectContext(ctx, &rows, `
		SELECT id, librarian_id, title, quantity, borrowing_fee
		FROM books
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE
	`, pq.Array(keys))
	if err != nil {
		return nil, store.Failure("lock books", err)
	}

	books := make(map[uuid.UUID]*lockedBook, len(rows))
	for _, b := range rows {
		books[b.ID] = b
	}
	for _, id := range ids {
		b, ok := books[id]
		if !ok || b.LibrarianID != librarianID {
			return nil, apperr.Rule(fmt.Sprintf("book %s is not in this library", id))
		}
		if b.Quantity <= 0 {
			return nil, apperr.Rule(fmt.Sprintf("%q is not available", b.Title))
		}
	}
	return books, nil
}

// adjustQuantity moves a book's quantity by delta and keeps its status in step.
func adjustQuantity(ctx context.Context, tx *sqlx.Tx, bookID uuid.UUID, delta int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE books
		SET quantity = quantity + $2,
		    status = CASE WHEN quantity + $2 > 0 THEN $3 ELSE $4 END,
		    updated_at = NOW()
		WHERE id = $1
	`, bookID, delta, string(catalog.StatusAvailable), string(catalog.StatusNotAvailable))
	switch {
	case store.IsCheckViolation(err, "books_quantity_check"):
		return apperr.Rule("book is not available")
	case err != nil:
		return store.Failure("adjust book quantity", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("book")
	}
	return nil
}

// lockLoan locks a loan on one of the librarian's books.
func lockLoan(ctx context.Context, tx *sqlx.Tx, librarianID, loanID uuid.UUID) (*Loan, error) {
	loan := &Loan{}
	err := tx.GetContext(ctx, loan, `
		SELECT `+loanColumns+`
		FROM borrowed_books bb
		JOIN books b ON b.id = bb.book_id
		WHERE bb.id = $1 AND b.librarian_id = $2
		FOR UPDATE OF bb
	`, loanID, librarianID)
	if err != nil {
		if store.IsNoRows(err) {
			return nil, apperr.NotFound("loan")
		}
		return nil, store.Failure("lock loan", err)
	}
	return loan, nil
}

func markReturned(ctx context.Context, tx *sqlx.Tx, loan *Loan) error {
	err := tx.GetContext(ctx, loan, `
		UPDATE borrowed_books bb
		SET returned = TRUE, updated_at = NOW()
		WHERE bb.id = $1
		RETURNING `+loanColumns, loan.ID)
	if err != nil {
		return store.Failure("mark loan returned", err)
	}
	return nil
}

// Lend creates one loan per requested book and charges their borrowing fees in a single payment.
func (s *service) Lend(ctx context.Context, librarianID uuid.UUID, req LendRequest) (*LendResult, error) {
	if err := validateLend(&req); err != nil {
		s.metrics.reject(ctx, "lend", err)
		return nil, err
	}

	today := s.today()
	result := &LendResult{Loans: make([]*Loan, 0, len(req.BookIDs))}

	err := s.db.WithTx(ctx, "circulation.lend", func(ctx context.Context, tx *sqlx.Tx) error {
		if err := lockMember(ctx, tx, librarianID, req.MemberID); err != nil {
			return err
		}

		due, err := membership.AmountDue(ctx, tx, req.MemberID, today)
		if err != nil {
			return err
		}
		if due.GreaterThan(membership.BorrowingLimit) {
			return errBorrowingLimit
		}

		books, err := lockBooks(ctx, tx, librarianID, req.BookIDs)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, bookID := range req.BookIDs {
			query, args, err := store.Build(store.Insert("borrowed_books").
				Rows(goqu.Record{
					"id":          uuid.New(),
					"member_id":   req.MemberID,
					"book_id":     bookID,
					"return_date": req.ReturnDate,
					"fine":        req.Fine,
				}).
				Returning("id", "member_id", "book_id", "return_date", "returned", "fine", "created_at", "updated_at"))
			if err != nil {
				return err
			}

			loan := &Loan{}
			if err := tx.GetContext(ctx, loan, query, args...); err != nil {
				return store.Failure("insert loan", err)
			}
			if err := adjustQuantity(ctx, tx, bookID, -1); err != nil {
				return err
			}

			total = total.Add(books[bookID].BorrowingFee)
			result.Loans = append(result.Loans, loan)
		}

		result.Transaction, err = payments.Record(ctx, tx, librarianID, req.MemberID, total, req.PaymentMethod)
		if err != nil {
			return err
		}

		for _, loan := range result.Loans {
			err := s.activity.Append(ctx, tx, librarianID, activity.BookLent, loan.ID, map[string]interface{}{
				"member_id":      loan.MemberID,
				"book_id":        loan.BookID,
				"book_title":     books[loan.BookID].Title,
				"return_date":    loan.ReturnDate,
				"transaction_id": result.Transaction.ID,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.reject(ctx, "lend", err)
		s.logger.Info("lend refused",
			zap.String("member_id", req.MemberID.String()),
			zap.String("librarian_id", librarianID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.booksLent.Add(ctx, int64(len(result.Loans)))
	s.logger.Info("books lent",
		zap.String("member_id", req.MemberID.String()),
		zap.Int("books", len(result.Loans)),
		zap.String("fees", result.Transaction.Amount.StringFixed(2)),
	)
	return result, nil
}

// Return takes a book back. An overdue loan is left as it is and the outcome reports the fine due.
func (s *service) Return(ctx context.Context, librarianID, loanID uuid.UUID) (*ReturnOutcome, error) {
	today := s.today()
	out := &ReturnOutcome{FineDue: decimal.Zero}

	err := s.db.WithTx(ctx, "circulation.return", func(ctx context.Context, tx *sqlx.Tx) error {
		loan, err := lockLoan(ctx, tx, librarianID, loanID)
		if err != nil {
			return err
		}
		out.Loan = loan

		if loan.Returned {
			return errAlreadyReturned
		}
		if loan.OverdueOn(today) {
			out.FineDue = loan.Fine
			return nil
		}

		if err := markReturned(ctx, tx, loan); err != nil {
			return err
		}
		if err := adjustQuantity(ctx, tx, loan.BookID, 1); err != nil {
			return err
		}
		out.Returned = true

		return s.activity.Append(ctx, tx, librarianID, activity.BookReturned, loan.ID, map[string]interface{}{
			"member_id": loan.MemberID,
			"book_id":   loan.BookID,
		})
	})
	if err != nil {
		s.metrics.reject(ctx, "return", err)
		return nil, err
	}

	if out.Returned {
		s.metrics.booksReturned.Add(ctx, 1)
		s.logger.Info("book returned", zap.String("loan_id", loanID.String()))
	}
	return out, nil
}

// PayFine settles an overdue loan: it is marked returned and its fine recorded as a payment.
func (s *service) PayFine(ctx context.Context, librarianID, loanID uuid.UUID, req PayFineRequest) (*FinePayment, error) {
	req.PaymentMethod = payments.Method(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))
	if err := validation.Check(&req).Err(); err != nil {
		return nil, err
	}

	today := s.today()
	out := &FinePayment{}

	err := s.db.WithTx(ctx, "circulation.pay_fine", func(ctx context.Context, tx *sqlx.Tx) error {
		loan, err := lockLoan(ctx, tx, librarianID, loanID)
		if err != nil {
			return err
		}
		if !loan.OverdueOn(today) {
			return errNoFineDue
		}

		if err := markReturned(ctx, tx, loan); err != nil {
			return err
		}
		if err := adjustQuantity(ctx, tx, loan.BookID, 1); err != nil {
			return err
		}

		out.Loan = loan
		out.Transaction, err = payments.Record(ctx, tx, librarianID, loan.MemberID, loan.Fine, req.PaymentMethod)
		if err != nil {
			return err
		}

		return s.activity.Append(ctx, tx, librarianID, activity.FinePaid, loan.ID, map[string]interface{}{
			"member_id":      loan.MemberID,
			"book_id":        loan.BookID,
			"fine":           loan.Fine,
			"transaction_id": out.Transaction.ID,
		})
	})
	if err != nil {
		s.metrics.reject(ctx, "pay_fine", err)
		return nil, err
	}

	fine, _ := out.Loan.Fine.Float64()
	s.metrics.booksReturned.Add(ctx, 1)
	s.metrics.finesPaid.Add(ctx, fine)
	s.logger.Info("fine paid",
		zap.String("loan_id", loanID.String()),
		zap.String("fine", out.Loan.Fine.StringFixed(2)),
		zap.String("payment_method", string(req.PaymentMethod)),
	)
	return out, nil
}

// UpdateLoan corrects a loan's due date and fine.
func (s *service) UpdateLoan(ctx context.Context, librarianID, loanID uuid.UUID, in LoanUpdate) (*Loan, error) {
	if err := validateUpdate(&in); err != nil {
		return nil, err
	}

	var loan *Loan
	err := s.db.WithTx(ctx, "circulation.update_loan", func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		if loan, err = lockLoan(ctx, tx, librarianID, loanID); err != nil {
			return err
		}

		err = tx.GetContext(ctx, loan, `
			UPDATE borrowed_books bb
			SET return_date = $2, fine = $3, updated_at = NOW()
			WHERE bb.id = $1
			RETURNING `+loanColumns, loanID, in.ReturnDate, in.Fine)
		if err != nil {
			return store.Failure("update loan", err)
		}

		return s.activity.Append(ctx, tx, librarianID, activity.LoanUpdated, loanID, map[string]interface{}{
			"return_date": in.ReturnDate,
			"fine":        in.Fine,
		})
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// DeleteLoan removes a loan and puts its copy back on the shelf.
func (s *service) DeleteLoan(ctx context.Context, librarianID, loanID uuid.UUID) error {
	return s.db.WithTx(ctx, "circulation.delete_loan", func(ctx context.Context, tx *sqlx.Tx) error {
		loan, err := lockLoan(ctx, tx, librarianID, loanID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM borrowed_books WHERE id = $1`, loanID); err != nil {
			return store.Failure("delete loan", err)
		}
		if err := adjustQuantity(ctx, tx, loan.BookID, 1); err != nil {
			return err
		}

		s.logger.Info("loan deleted", zap.String("loan_id", loanID.String()), zap.Bool("returned", loan.Returned))
		return s.activity.Append(ctx, tx, librarianID, activity.LoanDeleted, loanID, map[string]interface{}{
			"member_id": loan.MemberID,
			"book_id":   loan.BookID,
			"returned":  loan.Returned,
		})
	})
}

// selectLoans lists the librarian's loans with their member and book.
func selectLoans(librarianID uuid.UUID, query string) *goqu.SelectDataset {
	ds := store.From(goqu.T("borrowed_books").As("bb")).
		Join(goqu.T("members").As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("bb.member_id")))).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("bb.book_id")))).
		Select(
			"bb.id", "bb.member_id", "bb.book_id", "bb.return_date", "bb.returned", "bb.fine",
			"bb.created_at", "bb.updated_at",
			goqu.I("m.name").As("member_name"),
			goqu.I("b.title").As("book_title"),
			goqu.I("b.author").As("book_author"),
		).
		Where(goqu.Ex{"b.librarian_id": librarianID})

	if query = strings.TrimSpace(query); query != "" {
		pattern := store.Contains(query)
		ds = ds.Where(goqu.Or(
			goqu.I("b.title").ILike(pattern),
			goqu.I("b.author").ILike(pattern),
		))
	}
	return ds
}

func (s *service) listLoans(ctx context.Context, name string, ds *goqu.SelectDataset, today store.Date) ([]*LoanView, error) {
	query, args, err := store.Build(ds)
	if err != nil {
		return nil, err
	}

	loans := []*LoanView{}
	if err := s.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, store.Failure(name, err)
	}
	for _, l := range loans {
		l.Overdue = l.OverdueOn(today)
	}
	return loans, nil
}

// ListLoans returns every loan on the librarian's books, newest first.
func (s *service) ListLoans(ctx context.Context, librarianID uuid.UUID, query string) ([]*LoanView, error) {
	ctx, span := s.db.Span(ctx, "circulation.list_loans", attribute.String("librarian.id", librarianID.String()))
	defer span.End()

	ds := selectLoans(librarianID, query).Order(goqu.I("bb.created_at").Desc(), goqu.I("bb.id").Asc())
	return s.listLoans(ctx, "list loans", ds, s.today())
}

// ListOverdue returns the librarian's loans still out after their return date, oldest due first.
func (s *service) ListOverdue(ctx context.Context, librarianID uuid.UUID, query string) ([]*LoanView, error) {
	ctx, span := s.db.Span(ctx, "circulation.list_overdue", attribute.String("librarian.id", librarianID.String()))
	defer span.End()

	today := s.today()
	ds := selectLoans(librarianID, query).
		Where(goqu.I("bb.returned").IsFalse(), goqu.I("bb.return_date").Lt(today)).
		Order(goqu.I("bb.return_date").Asc(), goqu.I("bb.id").Asc())
	return s.listLoans(ctx, "list overdue loans", ds, today)
}
