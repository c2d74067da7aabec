package membership

import (
	"context"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"lendingdesk/internal/apperr"
	"lendingdesk/internal/store"
	"lendingdesk/internal/validation"
)

const (
	table          = "members"
	emailKey       = "members_email_key"
	emailTakenText = "a member with this email already exists"
)

// service implements the Service interface.
type service struct {
	db     *store.DB
	logger *zap.Logger
	today  store.Clock
}

// NewService creates a new membership service instance.
func NewService(db *store.DB, logger *zap.Logger, today store.Clock) Service {
	return &service{db: db, logger: logger, today: today}
}

// AmountDue sums the fines of q's member loans that are still out and were due before today.
func AmountDue(ctx context.Context, q sqlx.QueryerContext, memberID uuid.UUID, today store.Date) (decimal.Decimal, error) {
	var due decimal.Decimal
	err := sqlx.GetContext(ctx, q, &due, `
		SELECT COALESCE(SUM(fine), 0)
		FROM borrowed_books
		WHERE member_id = $1 AND NOT returned AND return_date < $2
	`, memberID, today)
	if err != nil {
		return decimal.Zero, store.Failure("compute amount due", err)
	}
	return due, nil
}

// selectMembers joins each member with their overdue loans to compute amount_due.
func (s *service) selectMembers(today store.Date) *goqu.SelectDataset {
	return store.From(goqu.T(table).As("m")).
		LeftJoin(goqu.T("borrowed_books").As("bb"), goqu.On(
			goqu.I("bb.member_id").Eq(goqu.I("m.id")),
			goqu.I("bb.returned").IsFalse(),
			goqu.I("bb.return_date").Lt(today),
		)).
		Select(
			"m.id", "m.librarian_id", "m.name", "m.email", "m.created_at", "m.updated_at",
			goqu.COALESCE(goqu.SUM(goqu.I("bb.fine")), 0).As("amount_due"),
		).
		GroupBy(goqu.I("m.id"))
}

func validate(in *MemberInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	return validation.Check(in).Err()
}

func (s *service) emailTaken(ctx context.Context, email string, except uuid.UUID) (bool, error) {
	var taken bool
	err := s.db.GetContext(ctx, &taken, `SELECT EXISTS (SELECT 1 FROM members WHERE email = $1 AND id <> $2)`, email, except)
	if err != nil {
		return false, store.Failure("check member email", err)
	}
	return taken, nil
}

// AddMember registers a new member for librarianID.
func (s *service) AddMember(ctx context.Context, librarianID uuid.UUID, in MemberInput) (*Member, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}

	ctx, span := s.db.Span(ctx, "membership.add", attribute.String("librarian.id", librarianID.String()))
	defer span.End()

	taken, err := s.emailTaken(ctx, in.Email, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Field("email", emailTakenText)
	}

	m := &Member{ID: uuid.New(), LibrarianID: librarianID, Name: in.Name, Email: in.Email, AmountDue: decimal.Zero}
	query, args, err := store.Build(store.Insert(table).
		Rows(goqu.Record{"id": m.ID, "librarian_id": m.LibrarianID, "name": m.Name, "email": m.Email}).
		Returning("created_at", "updated_at"))
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowxContext(ctx, query, args...).Scan(&m.CreatedAt, &m.UpdatedAt)
	switch {
	case store.IsUniqueViolation(err, emailKey):
		return nil, apperr.Field("email", emailTakenText)
	case store.IsForeignKeyViolation(err, ""):
		return nil, apperr.Rule("each member must be associated with a librarian")
	case err != nil:
		return nil, store.Failure("add member", err)
	}

	s.logger.Info("member added", zap.String("member_id", m.ID.String()), zap.String("librarian_id", librarianID.String()))
	return m, nil
}

// GetMember retrieves a member by their ID.
func (s *service) GetMember(ctx context.Context, librarianID, id uuid.UUID) (*Member, error) {
	query, args, err := store.Build(s.selectMembers(s.today()).
		Where(goqu.Ex{"m.id": id, "m.librarian_id": librarianID}))
	if err != nil {
		return nil, err
	}

	m := &Member{}
	if err := s.db.GetContext(ctx, m, query, args...); err != nil {
		if store.IsNoRows(err) {
			return nil, apperr.NotFound("member")
		}
		return nil, store.Failure("get member", err)
	}
	return m, nil
}

// UpdateMember changes a member's name and email.
func (s *service) UpdateMember(ctx context.Context, librarianID, id uuid.UUID, in MemberInput) (*Member, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}

	taken, err := s.emailTaken(ctx, in.Email, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Field("email", emailTakenText)
	}

	query, args, err := store.Build(store.Update(table).
		Set(goqu.Record{"name": in.Name, "email": in.Email, "updated_at": goqu.L("NOW()")}).
		Where(goqu.Ex{"id": id, "librarian_id": librarianID}))
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	switch {
	case store.IsUniqueViolation(err, emailKey):
		return nil, apperr.Field("email", emailTakenText)
	case err != nil:
		return nil, store.Failure("update member", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFound("member")
	}
	return s.GetMember(ctx, librarianID, id)
}

// RemoveMember deletes a member together with their loans and payments.
func (s *service) RemoveMember(ctx context.Context, librarianID, id uuid.UUID) error {
	query, args, err := store.Build(store.Delete(table).Where(goqu.Ex{"id": id, "librarian_id": librarianID}))
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return store.Failure("remove member", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("member")
	}
	return nil
}

// Search finds members whose name contains query. An empty query lists every member.
func (s *service) Search(ctx context.Context, librarianID uuid.UUID, query string) ([]*Member, error) {
	ds := s.selectMembers(s.today()).
		Where(goqu.Ex{"m.librarian_id": librarianID}).
		Order(goqu.I("m.name").Asc(), goqu.I("m.id").Asc())

	if query = strings.TrimSpace(query); query != "" {
		ds = ds.Where(goqu.I("m.name").ILike(store.Contains(query)))
	}

	sql, args, err := store.Build(ds)
	if err != nil {
		return nil, err
	}

	members := []*Member{}
	if err := s.db.SelectContext(ctx, &members, sql, args...); err != nil {
		return nil, store.Failure("search members", err)
	}
	return members, nil
}
