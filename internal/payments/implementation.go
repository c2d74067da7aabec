package payments

import (
	"context"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"lendingdesk/internal/activity"
	"lendingdesk/internal/apperr"
	"lendingdesk/internal/store"
)

const table = "transactions"

// service implements the Service interface.
type service struct {
	db       *store.DB
	activity *activity.Log
	logger   *zap.Logger
}

// NewService creates a new payments service instance.
func NewService(db *store.DB, log *activity.Log, logger *zap.Logger) Service {
	return &service{db: db, activity: log, logger: logger}
}

var errForeignMember = apperr.Rule("the member is not registered with this librarian")

// Record inserts a transaction with tx so it commits together with the loan change that caused it.
// The row is only written when memberID belongs to librarianID.
func Record(ctx context.Context, tx sqlx.QueryerContext, librarianID, memberID uuid.UUID, amount decimal.Decimal, method Method) (*Transaction, error) {
	if !method.Valid() {
		return nil, apperr.Field("payment_method", "must be one of: cash, momo, card, zalopay")
	}
	if amount.IsNegative() {
		return nil, apperr.Rule("a payment amount cannot be negative")
	}

	t := &Transaction{}
	err := sqlx.GetContext(ctx, tx, t, `
		INSERT INTO transactions (id, member_id, amount, payment_method)
		SELECT $1::uuid, m.id, $2::numeric, $3::varchar
		FROM members m
		WHERE m.id = $4 AND m.librarian_id = $5
		RETURNING id, member_id, amount, payment_method, created_at, updated_at`,
		uuid.New(), amount, string(method), memberID, librarianID)
	if err != nil {
		if store.IsNoRows(err) {
			return nil, errForeignMember
		}
		return nil, store.Failure("record payment", err)
	}
	return t, nil
}

// List returns the librarian's payments, newest first. A non-empty query filters by member name.
func (s *service) List(ctx context.Context, librarianID uuid.UUID, query string) ([]*Payment, error) {
	ctx, span := s.db.Span(ctx, "payments.list", attribute.String("librarian.id", librarianID.String()))
	defer span.End()

	ds := store.From(goqu.T(table).As("t")).
		Join(goqu.T("members").As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("t.member_id")))).
		Select(
			"t.id", "t.member_id", "t.amount", "t.payment_method", "t.created_at", "t.updated_at",
			goqu.I("m.name").As("member_name"),
		).
		Where(goqu.Ex{"m.librarian_id": librarianID}).
		Order(goqu.I("t.created_at").Desc(), goqu.I("t.id").Asc())

	if query = strings.TrimSpace(query); query != "" {
		ds = ds.Where(goqu.I("m.name").ILike(store.Contains(query)))
	}

	sql, args, err := store.Build(ds)
	if err != nil {
		return nil, err
	}

	list := []*Payment{}
	if err := s.db.SelectContext(ctx, &list, sql, args...); err != nil {
		return nil, store.Failure("list payments", err)
	}
	return list, nil
}

// Delete removes a payment taken from one of the librarian's members.
func (s *service) Delete(ctx context.Context, librarianID, id uuid.UUID) error {
	return s.db.WithTx(ctx, "payments.delete", func(ctx context.Context, tx *sqlx.Tx) error {
		var removed Transaction
		err := tx.GetContext(ctx, &removed, `
			DELETE FROM transactions t
			USING members m
			WHERE t.id = $1 AND m.id = t.member_id AND m.librarian_id = $2
			RETURNING t.id, t.member_id, t.amount, t.payment_method, t.created_at, t.updated_at
		`, id, librarianID)
		if err != nil {
			if store.IsNoRows(err) {
				return apperr.NotFound("payment")
			}
			return store.Failure("delete payment", err)
		}

		err = s.activity.Append(ctx, tx, librarianID, activity.PaymentDeleted, id, map[string]interface{}{
			"member_id":      removed.MemberID,
			"amount":         removed.Amount,
			"payment_method": removed.PaymentMethod,
		})
		if err != nil {
			return err
		}

		s.logger.Info("payment deleted",
			zap.String("payment_id", id.String()),
			zap.String("librarian_id", librarianID.String()),
		)
		return nil
	})
}
