// Package storetest connects tests to a real PostgreSQL database.
package storetest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lendingdesk/internal/store"
)

const lockKey = 7_150_001

func dsn() string {
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		env("PGHOST", "localhost"),
		env("PGPORT", "5432"),
		env("PGUSER", "user"),
		env("PGPASSWORD", "password"),
		env("PGDATABASE", "testdb"),
	)
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Open connects to the test database, migrates it and empties every table.
// The test is skipped when no database is reachable.
func Open(t testing.TB) *store.DB {
	t.Helper()

	ctx := context.Background()
	db, err := store.Open(ctx, dsn(), store.Options{MaxOpenConns: 10})
	if err != nil {
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Packages run in parallel against the same database; hold a session lock until the test ends.
	conn, err := db.Connx(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockKey)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockKey)
		conn.Close()
	})

	require.NoError(t, db.Migrate(ctx, zap.NewNop(), store.MigrateUp))

	_, err = db.ExecContext(ctx, `TRUNCATE TABLE activity_events, transactions, borrowed_books, books, members, librarians CASCADE`)
	require.NoError(t, err)

	return db
}

// Librarian inserts a bare librarian row and returns its id.
func Librarian(t testing.TB, db *store.DB, schema string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO librarians (id, username, email, password_hash, password_salt, schema_name)
		 VALUES ($1, $2, $3, 'x', 'x', $4)`,
		id, "lib-"+id.String()[:8], id.String()[:8]+"@example.com", schema)
	require.NoError(t, err)
	return id
}

// Member inserts a member of librarianID and returns its id.
func Member(t testing.TB, db *store.DB, librarianID uuid.UUID, name string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO members (id, librarian_id, name, email) VALUES ($1, $2, $3, $4)`,
		id, librarianID, name, id.String()[:8]+"@members.test")
	require.NoError(t, err)
	return id
}

// Book inserts a book of librarianID with quantity copies and the given fee.
func Book(t testing.TB, db *store.DB, librarianID uuid.UUID, title string, quantity int, fee string) uuid.UUID {
	t.Helper()

	status := "available"
	if quantity == 0 {
		status = "not-available"
	}
	id := uuid.New()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO books (id, librarian_id, title, author, category, quantity, borrowing_fee, status)
		 VALUES ($1, $2, $3, 'Anonymous', 'other', $4, $5, $6)`,
		id, librarianID, title, quantity, fee, status)
	require.NoError(t, err)
	return id
}

// Loan inserts a loan row without touching the book's quantity.
func Loan(t testing.TB, db *store.DB, memberID, bookID uuid.UUID, due store.Date, fine string, returned bool) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO borrowed_books (id, member_id, book_id, return_date, returned, fine) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, memberID, bookID, due, returned, fine)
	require.NoError(t, err)
	return id
}
