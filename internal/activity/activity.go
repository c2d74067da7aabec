// Package activity keeps an append-only record of lending operations per librarian.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lendingdesk/internal/store"
)

type Type string

const (
	BookLent       Type = "BookLent"
	BookReturned   Type = "BookReturned"
	FinePaid       Type = "FinePaid"
	LoanUpdated    Type = "LoanUpdated"
	LoanDeleted    Type = "LoanDeleted"
	PaymentDeleted Type = "PaymentDeleted"
)

// Event is one recorded operation. SubjectID is the loan or payment it concerns.
type Event struct {
	ID          int64          `db:"id" json:"id"`
	LibrarianID uuid.UUID      `db:"librarian_id" json:"librarian_id"`
	Type        Type           `db:"event_type" json:"type"`
	SubjectID   uuid.UUID      `db:"subject_id" json:"subject_id"`
	Payload     types.JSONText `db:"payload" json:"payload"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// Log appends and reads activity events.
type Log struct {
	db *store.DB
}

func NewLog(db *store.DB) *Log {
	return &Log{db: db}
}

// Append records an event using tx, so it commits or rolls back with the change it describes.
func (l *Log) Append(ctx context.Context, tx sqlx.ExtContext, librarianID uuid.UUID, typ Type, subjectID uuid.UUID, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typ, err)
	}

	var id int64
	err = sqlx.GetContext(ctx, tx, &id, `
		INSERT INTO activity_events (librarian_id, event_type, subject_id, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, librarianID, typ, subjectID, data)
	if err != nil {
		return store.Failure("append activity", err)
	}

	trace.SpanFromContext(ctx).AddEvent("activity.appended", trace.WithAttributes(
		attribute.Int64("event.id", id),
		attribute.String("event.type", string(typ)),
		attribute.String("subject.id", subjectID.String()),
	))
	return nil
}

// Recent returns the newest events for a librarian, newest first.
func (l *Log) Recent(ctx context.Context, librarianID uuid.UUID, limit uint) ([]Event, error) {
	ctx, span := l.db.Span(ctx, "activity.recent",
		attribute.String("librarian.id", librarianID.String()),
		attribute.Int("limit", int(limit)),
	)
	defer span.End()

	query, args, err := store.Build(store.From("activity_events").
		Select("id", "librarian_id", "event_type", "subject_id", "payload", "created_at").
		Where(goqu.Ex{"librarian_id": librarianID}).
		Order(goqu.I("id").Desc()).
		Limit(limit))
	if err != nil {
		return nil, err
	}

	events := []Event{}
	if err := l.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, store.Failure("list activity", err)
	}
	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}
