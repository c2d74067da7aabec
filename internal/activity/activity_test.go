package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingdesk/internal/store/storetest"
)

func TestAppend_VisibleAfterCommit(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()
	libID := storetest.Librarian(t, db, "alpha")
	log := NewLog(db)

	loanID := uuid.New()
	err := db.WithTx(ctx, "test", func(ctx context.Context, tx *sqlx.Tx) error {
		return log.Append(ctx, tx, libID, BookLent, loanID, map[string]string{"title": "Dune"})
	})
	require.NoError(t, err)

	events, err := log.Recent(ctx, libID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, BookLent, events[0].Type)
	assert.Equal(t, loanID, events[0].SubjectID)
	assert.JSONEq(t, `{"title":"Dune"}`, string(events[0].Payload))
}

func TestAppend_DiscardedOnRollback(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()
	libID := storetest.Librarian(t, db, "alpha")
	log := NewLog(db)

	_ = db.WithTx(ctx, "test", func(ctx context.Context, tx *sqlx.Tx) error {
		require.NoError(t, log.Append(ctx, tx, libID, FinePaid, uuid.New(), nil))
		return errors.New("abort")
	})

	events, err := log.Recent(ctx, libID, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRecent_ScopedToLibrarianNewestFirst(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()
	alpha := storetest.Librarian(t, db, "alpha")
	beta := storetest.Librarian(t, db, "beta")
	log := NewLog(db)

	first, second := uuid.New(), uuid.New()
	require.NoError(t, db.WithTx(ctx, "test", func(ctx context.Context, tx *sqlx.Tx) error {
		if err := log.Append(ctx, tx, alpha, BookLent, first, nil); err != nil {
			return err
		}
		if err := log.Append(ctx, tx, beta, BookLent, uuid.New(), nil); err != nil {
			return err
		}
		return log.Append(ctx, tx, alpha, BookReturned, second, nil)
	}))

	events, err := log.Recent(ctx, alpha, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, second, events[0].SubjectID)
	assert.Equal(t, first, events[1].SubjectID)
}
