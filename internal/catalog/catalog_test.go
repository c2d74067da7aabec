package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"lendingdesk/internal/apperr"
	"lendingdesk/internal/auth"
	"lendingdesk/internal/store/storetest"
)

func validInput() BookInput {
	return BookInput{
		Title:        "Dune",
		Author:       "Frank Herbert",
		Category:     "sci-fi",
		Quantity:     3,
		BorrowingFee: decimal.RequireFromString("2.50"),
	}
}

func TestStatusFor_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := rapid.IntRange(0, 1000).Draw(t, "quantity")
		assert.Equal(t, q == 0, StatusFor(q) == StatusNotAvailable)
	})
}

func TestCategories(t *testing.T) {
	cats := Categories()
	assert.Len(t, cats, 40)
	assert.True(t, IsCategory("graphic-novels"))
	assert.False(t, IsCategory("cookbooks"))

	cats[0].Value = "changed"
	assert.Equal(t, "adventure", Categories()[0].Value)
}

func TestValidate(t *testing.T) {
	in := validInput()
	require.NoError(t, validate(&in))

	bad := BookInput{Title: "  ", Category: "cookbooks", Quantity: -1, BorrowingFee: decimal.Zero}
	fields := apperr.FieldsOf(validate(&bad))
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "author")
	assert.Contains(t, fields, "quantity")
	assert.Contains(t, fields, "borrowing_fee")
	assert.Equal(t, "is not a known category", fields["category"])
}

type fakeService struct {
	Service
	books map[uuid.UUID]*Book
}

func (f *fakeService) GetBook(_ context.Context, librarianID, id uuid.UUID) (*Book, error) {
	b, ok := f.books[id]
	if !ok || b.LibrarianID != librarianID {
		return nil, apperr.NotFound("book")
	}
	return b, nil
}

func (f *fakeService) AddBook(_ context.Context, librarianID uuid.UUID, in BookInput) (*Book, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}
	b := &Book{ID: uuid.New(), LibrarianID: librarianID, Title: in.Title, Quantity: in.Quantity, Status: StatusFor(in.Quantity)}
	f.books[b.ID] = b
	return b, nil
}

func newRouter(svc Service, lib *auth.Librarian) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if lib != nil {
				req = req.WithContext(auth.WithLibrarian(req.Context(), lib))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/books", NewHandler(svc, zap.NewNop()).Routes)
	return r
}

func TestHandler_AddAndGet(t *testing.T) {
	svc := &fakeService{books: map[uuid.UUID]*Book{}}
	lib := &auth.Librarian{ID: uuid.New()}
	router := newRouter(svc, lib)

	body, _ := json.Marshal(validInput())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/books/", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Book
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, StatusAvailable, created.Status)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books/"+created.ID.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_Errors(t *testing.T) {
	svc := &fakeService{books: map[uuid.UUID]*Book{}}

	t.Run("other librarian's book is not found", func(t *testing.T) {
		b := &Book{ID: uuid.New(), LibrarianID: uuid.New()}
		svc.books[b.ID] = b
		rec := httptest.NewRecorder()
		newRouter(svc, &auth.Librarian{ID: uuid.New()}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books/"+b.ID.String(), nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newRouter(svc, &auth.Librarian{ID: uuid.New()}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books/not-a-uuid", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newRouter(svc, &auth.Librarian{ID: uuid.New()}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/books/", bytes.NewReader([]byte(`{"title":""}`))))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), `"title"`)
	})

	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newRouter(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books/", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("categories", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newRouter(svc, &auth.Librarian{ID: uuid.New()}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books/categories", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"sci-fi"`)
	})
}

func TestService_CRUD(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()
	lib := storetest.Librarian(t, db, "alpha")
	other := storetest.Librarian(t, db, "beta")
	svc := NewService(db, zap.NewNop())

	book, err := svc.AddBook(ctx, lib, validInput())
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, book.Status)
	assert.True(t, book.BorrowingFee.Equal(decimal.RequireFromString("2.5")))

	_, err = svc.GetBook(ctx, other, book.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	in := validInput()
	in.Quantity = 0
	updated, err := svc.UpdateBook(ctx, lib, book.ID, in)
	require.NoError(t, err)
	assert.Equal(t, StatusNotAvailable, updated.Status)

	_, err = svc.UpdateBook(ctx, other, book.ID, in)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.RemoveBook(ctx, other, book.ID)))
	require.NoError(t, svc.RemoveBook(ctx, lib, book.ID))
	_, err = svc.GetBook(ctx, lib, book.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestService_Search(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()
	lib := storetest.Librarian(t, db, "alpha")
	other := storetest.Librarian(t, db, "beta")
	svc := NewService(db, zap.NewNop())

	for _, b := range []struct{ title, author string }{
		{"Dune", "Frank Herbert"},
		{"Emma", "Jane Austen"},
		{"100% Pure", "Someone"},
	} {
		in := validInput()
		in.Title, in.Author = b.title, b.author
		_, err := svc.AddBook(ctx, lib, in)
		require.NoError(t, err)
	}
	_, err := svc.AddBook(ctx, other, validInput())
	require.NoError(t, err)

	all, err := svc.Search(ctx, lib, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byAuthor, err := svc.Search(ctx, lib, "austen")
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	assert.Equal(t, "Emma", byAuthor[0].Title)

	literal, err := svc.Search(ctx, lib, "%")
	require.NoError(t, err)
	require.Len(t, literal, 1)
	assert.Equal(t, "100% Pure", literal[0].Title)

	recent, err := svc.Recent(ctx, lib, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
