package catalog

import (
	"context"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"lendingdesk/internal/apperr"
	"lendingdesk/internal/store"
	"lendingdesk/internal/validation"
)

const table = "books"

var columns = []interface{}{
	"id", "librarian_id", "title", "author", "category", "quantity", "borrowing_fee", "status", "created_at", "updated_at",
}

// service implements the Service interface.
type service struct {
	db     *store.DB
	logger *zap.Logger
}

// NewService creates a new catalog service instance.
func NewService(db *store.DB, logger *zap.Logger) Service {
	return &service{db: db, logger: logger}
}

func validate(in *BookInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Category = strings.TrimSpace(in.Category)

	errs := validation.Check(in)
	if in.Category != "" && !IsCategory(in.Category) {
		errs = errs.Add("category", "is not a known category")
	}
	return errs.Err()
}

func record(in BookInput) goqu.Record {
	return goqu.Record{
		"title":         in.Title,
		"author":        in.Author,
		"category":      in.Category,
		"quantity":      in.Quantity,
		"borrowing_fee": in.BorrowingFee,
		"status":        string(StatusFor(in.Quantity)),
	}
}

// AddBook creates a new book owned by librarianID.
func (s *service) AddBook(ctx context.Context, librarianID uuid.UUID, in BookInput) (*Book, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}

	ctx, span := s.db.Span(ctx, "catalog.add", attribute.String("librarian.id", librarianID.String()))
	defer span.End()

	rec := record(in)
	rec["id"] = uuid.New()
	rec["librarian_id"] = librarianID

	query, args, err := store.Build(store.Insert(table).Rows(rec).Returning(columns...))
	if err != nil {
		return nil, err
	}

	book := &Book{}
	if err := s.db.GetContext(ctx, book, query, args...); err != nil {
		return nil, store.Failure("add book", err)
	}

	s.logger.Info("book added", zap.String("book_id", book.ID.String()), zap.String("librarian_id", librarianID.String()))
	return book, nil
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, librarianID, id uuid.UUID) (*Book, error) {
	query, args, err := store.Build(store.From(table).Select(columns...).
		Where(goqu.Ex{"id": id, "librarian_id": librarianID}))
	if err != nil {
		return nil, err
	}

	book := &Book{}
	if err := s.db.GetContext(ctx, book, query, args...); err != nil {
		if store.IsNoRows(err) {
			return nil, apperr.NotFound("book")
		}
		return nil, store.Failure("get book", err)
	}
	return book, nil
}

// UpdateBook replaces the editable fields and recomputes the status from the new quantity.
func (s *service) UpdateBook(ctx context.Context, librarianID, id uuid.UUID, in BookInput) (*Book, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}

	rec := record(in)
	rec["updated_at"] = goqu.L("NOW()")

	query, args, err := store.Build(store.Update(table).Set(rec).
		Where(goqu.Ex{"id": id, "librarian_id": librarianID}).
		Returning(columns...))
	if err != nil {
		return nil, err
	}

	book := &Book{}
	if err := s.db.GetContext(ctx, book, query, args...); err != nil {
		if store.IsNoRows(err) {
			return nil, apperr.NotFound("book")
		}
		return nil, store.Failure("update book", err)
	}
	return book, nil
}

// RemoveBook deletes a book together with its loans.
func (s *service) RemoveBook(ctx context.Context, librarianID, id uuid.UUID) error {
	query, args, err := store.Build(store.Delete(table).Where(goqu.Ex{"id": id, "librarian_id": librarianID}))
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return store.Failure("remove book", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("book")
	}
	return nil
}

// Search finds books whose title or author contains query. An empty query lists every book.
func (s *service) Search(ctx context.Context, librarianID uuid.UUID, query string) ([]*Book, error) {
	ds := store.From(table).Select(columns...).
		Where(goqu.Ex{"librarian_id": librarianID}).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Asc())

	if query = strings.TrimSpace(query); query != "" {
		pattern := store.Contains(query)
		ds = ds.Where(goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.C("author").ILike(pattern),
		))
	}
	return s.list(ctx, ds, "search books")
}

// Recent returns the most recently added books.
func (s *service) Recent(ctx context.Context, librarianID uuid.UUID, limit uint) ([]*Book, error) {
	ds := store.From(table).Select(columns...).
		Where(goqu.Ex{"librarian_id": librarianID}).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Asc()).
		Limit(limit)
	return s.list(ctx, ds, "recent books")
}

func (s *service) list(ctx context.Context, ds *goqu.SelectDataset, op string) ([]*Book, error) {
	query, args, err := store.Build(ds)
	if err != nil {
		return nil, err
	}

	books := []*Book{}
	if err := s.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, store.Failure(op, err)
	}
	return books, nil
}
