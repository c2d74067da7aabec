package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lendingdesk/internal/apperr"
	"lendingdesk/internal/store/storetest"
	"lendingdesk/internal/tenant"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestPassword_HashAndVerify(t *testing.T) {
	hash, salt, err := hashPassword("correct horse")
	require.NoError(t, err)

	ok, err := verifyPassword("correct horse", salt, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifyPassword("wrong horse", salt, hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPassword_SaltDiffers(t *testing.T) {
	h1, s1, err := hashPassword("same")
	require.NoError(t, err)
	h2, s2, err := hashPassword("same")
	require.NoError(t, err)

	assert.NotEqual(t, s1, s2)
	assert.NotEqual(t, h1, h2)
}

func TestPassword_CorruptSalt(t *testing.T) {
	_, err := verifyPassword("x", "%%%", "AAAA")
	assert.Error(t, err)
}

func TestLibrarian_Tenant(t *testing.T) {
	assert.Equal(t, tenant.Public, (&Librarian{}).Tenant())
	assert.Equal(t, "alpha", (&Librarian{SchemaName: "alpha"}).Tenant())
}

// withCookies copies Set-Cookie headers from one response onto the next request.
func withCookies(r *http.Request, rec *httptest.ResponseRecorder) *http.Request {
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestSessions_LoginLogout(t *testing.T) {
	s := NewSessions([]byte(testSecret), "test", false)
	lib := &Librarian{ID: uuid.New(), SchemaName: "alpha"}

	rec := httptest.NewRecorder()
	require.NoError(t, s.Login(rec, httptest.NewRequest(http.MethodPost, "/login/", nil), lib))

	r := withCookies(httptest.NewRequest(http.MethodGet, "/books/", nil), rec)
	id, ok := s.LibrarianID(r)
	require.True(t, ok)
	assert.Equal(t, lib.ID, id)
	assert.Equal(t, "alpha", s.Tenant(r))

	out := httptest.NewRecorder()
	require.NoError(t, s.Logout(out, r))

	r = withCookies(httptest.NewRequest(http.MethodGet, "/books/", nil), out)
	_, ok = s.LibrarianID(r)
	assert.False(t, ok)
	assert.Equal(t, "", s.Tenant(r))
}

func TestSessions_TamperedCookieIsAnonymous(t *testing.T) {
	s := NewSessions([]byte(testSecret), "test", false)
	r := httptest.NewRequest(http.MethodGet, "/books/", nil)
	r.AddCookie(&http.Cookie{Name: "test", Value: "garbage"})

	_, ok := s.LibrarianID(r)
	assert.False(t, ok)
	assert.Equal(t, "", s.Tenant(r))
}

func TestSessions_FeedTenantResolver(t *testing.T) {
	s := NewSessions([]byte(testSecret), "test", false)
	rec := httptest.NewRecorder()
	require.NoError(t, s.Login(rec, httptest.NewRequest(http.MethodPost, "/login/", nil), &Librarian{ID: uuid.New(), SchemaName: "alpha"}))

	r := withCookies(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	r.AddCookie(&http.Cookie{Name: tenant.CookieName, Value: "beta"})

	assert.Equal(t, "alpha", tenant.NewResolver(s).Resolve(r))
}

type fakeService struct {
	librarians map[uuid.UUID]*Librarian
	byName     map[string]*Librarian
	password   string
}

func newFakeService() *fakeService {
	return &fakeService{librarians: map[uuid.UUID]*Librarian{}, byName: map[string]*Librarian{}, password: "secret-pass"}
}

func (f *fakeService) add(lib *Librarian) *Librarian {
	f.librarians[lib.ID] = lib
	f.byName[lib.Username] = lib
	return lib
}

func (f *fakeService) Register(_ context.Context, req RegisterRequest) (*Librarian, error) {
	return f.add(&Librarian{ID: uuid.New(), Username: req.Username, Email: req.Email, SchemaName: req.SchemaName}), nil
}

func (f *fakeService) Authenticate(_ context.Context, req LoginRequest) (*Librarian, error) {
	lib, ok := f.byName[req.Username]
	if !ok || req.Password != f.password {
		return nil, apperr.AccessDenied(errInvalidCredentials)
	}
	return lib, nil
}

func (f *fakeService) GetLibrarian(_ context.Context, id uuid.UUID) (*Librarian, error) {
	lib, ok := f.librarians[id]
	if !ok {
		return nil, apperr.NotFound("librarian")
	}
	return lib, nil
}

func TestMiddleware_LoadsLibrarian(t *testing.T) {
	svc := newFakeService()
	lib := svc.add(&Librarian{ID: uuid.New(), Username: "ann", SchemaName: "alpha"})
	s := NewSessions([]byte(testSecret), "test", false)

	rec := httptest.NewRecorder()
	require.NoError(t, s.Login(rec, httptest.NewRequest(http.MethodPost, "/login/", nil), lib))

	var seen *Librarian
	h := Middleware(svc, s, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = LibrarianFromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), withCookies(httptest.NewRequest(http.MethodGet, "/books/", nil), rec))
	require.NotNil(t, seen)
	assert.Equal(t, lib.ID, seen.ID)

	delete(svc.librarians, lib.ID)
	h.ServeHTTP(httptest.NewRecorder(), withCookies(httptest.NewRequest(http.MethodGet, "/books/", nil), rec))
	assert.Nil(t, seen)
}

func TestActingLibrarianID(t *testing.T) {
	_, err := ActingLibrarianID(context.Background())
	assert.Equal(t, apperr.KindAccessDenied, apperr.KindOf(err))

	id := uuid.New()
	got, err := ActingLibrarianID(WithLibrarian(context.Background(), &Librarian{ID: id}))
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func postJSON(t *testing.T, h http.HandlerFunc, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, url, bytes.NewReader(b)))
	return rec
}

func TestHandleLogin_PointsToTenantHost(t *testing.T) {
	svc := newFakeService()
	svc.add(&Librarian{ID: uuid.New(), Username: "ann", SchemaName: "alpha"})
	h := NewHandler(svc, NewSessions([]byte(testSecret), "test", false), zap.NewNop(), func(*http.Request) bool { return false })

	rec := postJSON(t, h.HandleLogin, "http://www.example.com:8000/login/", LoginRequest{Username: "ann", Password: "secret-pass"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Redirect string `json:"redirect"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "http://alpha.example.com:8000/login1/", resp.Redirect)
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestHandleLogin_Rejected(t *testing.T) {
	svc := newFakeService()
	svc.add(&Librarian{ID: uuid.New(), Username: "ann"})
	h := NewHandler(svc, NewSessions([]byte(testSecret), "test", false), zap.NewNop(), func(*http.Request) bool { return false })

	rec := postJSON(t, h.HandleTenantLogin, "/login1/", LoginRequest{Username: "ann", Password: "nope"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestService_RegisterAndAuthenticate(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()
	svc := NewService(db, zap.NewNop(), NewLimiter(rate.Inf, 0))

	lib, err := svc.Register(ctx, RegisterRequest{Username: "ann", Email: "Ann@Example.com", Password: "long enough", SchemaName: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", lib.Email)

	got, err := svc.Authenticate(ctx, LoginRequest{Username: "ann", Password: "long enough"})
	require.NoError(t, err)
	assert.Equal(t, lib.ID, got.ID)

	_, err = svc.Authenticate(ctx, LoginRequest{Username: "ann", Password: "wrong"})
	assert.Equal(t, apperr.KindAccessDenied, apperr.KindOf(err))

	_, err = svc.Authenticate(ctx, LoginRequest{Username: "nobody", Password: "wrong"})
	assert.Equal(t, apperr.KindAccessDenied, apperr.KindOf(err))
}

func TestService_RegisterDuplicates(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()
	svc := NewService(db, zap.NewNop(), NewLimiter(rate.Inf, 0))

	_, err := svc.Register(ctx, RegisterRequest{Username: "ann", Email: "ann@example.com", Password: "long enough", SchemaName: "alpha"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterRequest{Username: "ann", Email: "other@example.com", Password: "long enough"})
	assert.Contains(t, apperr.FieldsOf(err), "username")

	_, err = svc.Register(ctx, RegisterRequest{Username: "bob", Email: "ann@example.com", Password: "long enough"})
	assert.Contains(t, apperr.FieldsOf(err), "email")

	_, err = svc.Register(ctx, RegisterRequest{Username: "cat", Email: "cat@example.com", Password: "long enough", SchemaName: "alpha"})
	assert.Contains(t, apperr.FieldsOf(err), "schema_name")

	// Several librarians may wait for a schema at the same time.
	_, err = svc.Register(ctx, RegisterRequest{Username: "dan", Email: "dan@example.com", Password: "long enough"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterRequest{Username: "eve", Email: "eve@example.com", Password: "long enough"})
	require.NoError(t, err)
}

func TestService_RegisterValidation(t *testing.T) {
	svc := NewService(nil, zap.NewNop(), NewLimiter(rate.Inf, 0))

	_, err := svc.Register(context.Background(), RegisterRequest{Username: "a", Email: "nope", Password: "short", SchemaName: "Bad_Name"})
	fields := apperr.FieldsOf(err)
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")

	_, err = svc.Register(context.Background(), RegisterRequest{Username: "ann", Email: "a@b.co", Password: "long enough", SchemaName: "public"})
	assert.Equal(t, "is reserved", apperr.FieldsOf(err)["schema_name"])
}

func TestService_RateLimited(t *testing.T) {
	svc := NewService(nil, zap.NewNop(), NewLimiter(0, 0))
	_, err := svc.Authenticate(context.Background(), LoginRequest{Username: "a", Password: "b"})
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))
}

func TestService_RateLimitedPerUsername(t *testing.T) {
	svc := NewService(nil, zap.NewNop(), NewLimiter(rate.Every(time.Hour), 1))
	ctx := context.Background()

	// A missing password fails validation after the limiter has taken its token.
	_, err := svc.Authenticate(ctx, LoginRequest{Username: "ann"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Authenticate(ctx, LoginRequest{Username: "ann"})
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))
	_, err = svc.Authenticate(ctx, LoginRequest{Username: " ANN "})
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))

	_, err = svc.Authenticate(ctx, LoginRequest{Username: "bob"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Registering draws from its own bucket.
	_, err = svc.Register(ctx, RegisterRequest{Username: "ann"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestLimiter_SweepKeepsSpentBuckets(t *testing.T) {
	l := NewLimiter(rate.Every(time.Hour), 1)
	assert.True(t, l.Allow("ann"))
	for i := 0; i < 3; i++ {
		l.buckets[fmt.Sprintf("idle-%d", i)] = rate.NewLimiter(l.limit, l.burst)
	}

	l.sweep()
	assert.Len(t, l.buckets, 1)
	assert.False(t, l.Allow("ann"), "sweeping must not refill a spent bucket")
}
