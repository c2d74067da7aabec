package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lendingdesk/internal/access"
	"lendingdesk/internal/auth"
	"lendingdesk/internal/store"
	"lendingdesk/internal/store/storetest"
)

const tenantHost = "alpha.lendingdesk.test"

var today = store.NewDate(2024, time.June, 15)

type client struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func (c *client) do(method, host, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Host = host
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	if set := rec.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func newRouter(svc Services, health func(context.Context) error) http.Handler {
	return NewRouter(Options{
		Sessions: auth.NewSessions([]byte("0123456789abcdef0123456789abcdef"), "lendingdesk", false),
		Policy:   access.DefaultPolicy(),
		Health:   health,
	}, svc, zap.NewNop())
}

func TestRouter_Anonymous(t *testing.T) {
	c := &client{t: t, handler: newRouter(Services{}, nil)}

	rec := c.do(http.MethodGet, "example.com", "/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, access.LoginPath, rec.Header().Get("Location"))

	rec = c.do(http.MethodGet, "example.com", "/books/", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "you need to log in")

	rec = c.do(http.MethodGet, "example.com", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AnonymousUnroutedPaths(t *testing.T) {
	c := &client{t: t, handler: newRouter(Services{}, nil)}

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/members/"},
		{http.MethodGet, "/reports/"},
		{http.MethodGet, "/logout/"},
		{http.MethodDelete, "/books/"},
	} {
		rec := c.do(tc.method, tenantHost, tc.path, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", tc.method, tc.path)
		assert.Contains(t, rec.Body.String(), "you need to log in", "%s %s", tc.method, tc.path)
	}

	// Public paths still reach the router and get its method check.
	rec := c.do(http.MethodGet, tenantHost, access.RegisterPath, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_HealthzReportsDatabase(t *testing.T) {
	c := &client{t: t, handler: newRouter(Services{}, func(context.Context) error { return errors.New("down") })}
	rec := c.do(http.MethodGet, "example.com", "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_LendingFlow(t *testing.T) {
	db := storetest.Open(t)
	svc := NewServices(db, zap.NewNop(), store.FixedClock(today), nil)
	c := &client{t: t, handler: newRouter(svc, db.PingContext)}

	rec := c.do(http.MethodPost, "lendingdesk.test", access.RegisterPath, map[string]string{
		"username":    "alice",
		"email":       "alice@example.com",
		"password":    "correct horse",
		"schema_name": "alpha",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Logging in on the bare host points at the tenant's own host.
	rec = c.do(http.MethodPost, "www.lendingdesk.test", access.LoginPath, map[string]string{
		"username": "alice",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		Redirect string `json:"redirect"`
	}
	decode(t, rec, &login)
	assert.Equal(t, "http://"+tenantHost+access.TenantLoginPath, login.Redirect)

	// The session now follows the librarian to the wrong host and gets bounced.
	rec = c.do(http.MethodGet, "beta.lendingdesk.test", "/books/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://"+tenantHost+access.TenantLoginPath, rec.Header().Get("Location"))
	rec = c.do(http.MethodGet, "beta.lendingdesk.test", "/reports/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://"+tenantHost+access.TenantLoginPath, rec.Header().Get("Location"))

	rec = c.do(http.MethodPost, tenantHost, "/members/", map[string]string{"name": "Ann", "email": "ann@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var member struct {
		ID string `json:"id"`
	}
	decode(t, rec, &member)

	rec = c.do(http.MethodPost, tenantHost, "/books/", map[string]interface{}{
		"title": "Dune", "author": "Frank Herbert", "category": "sci-fi", "quantity": 1, "borrowing_fee": "2.50",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var book struct {
		ID string `json:"id"`
	}
	decode(t, rec, &book)

	rec = c.do(http.MethodPost, tenantHost, "/lent-books/", map[string]interface{}{
		"member_id":      member.ID,
		"book_ids":       []string{book.ID},
		"return_date":    today.AddDays(7).String(),
		"fine":           "3.00",
		"payment_method": "momo",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var lent struct {
		Loans []struct {
			ID string `json:"id"`
		} `json:"loans"`
	}
	decode(t, rec, &lent)
	require.Len(t, lent.Loans, 1)

	// The only copy is out.
	rec = c.do(http.MethodPost, tenantHost, "/lent-books/", map[string]interface{}{
		"member_id":      member.ID,
		"book_ids":       []string{book.ID},
		"return_date":    today.AddDays(7).String(),
		"fine":           "3.00",
		"payment_method": "cash",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = c.do(http.MethodGet, tenantHost, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var home struct {
		Members     int    `json:"total_members"`
		ActiveLoans int    `json:"total_borrowed_books"`
		Collected   string `json:"total_amount"`
	}
	decode(t, rec, &home)
	assert.Equal(t, 1, home.Members)
	assert.Equal(t, 1, home.ActiveLoans)
	assert.Equal(t, "2.5", home.Collected)

	rec = c.do(http.MethodPost, tenantHost, "/lent-books/"+lent.Loans[0].ID+"/return", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodGet, tenantHost, "/payments/?query=ann", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var paid []map[string]interface{}
	decode(t, rec, &paid)
	assert.Len(t, paid, 1)

	rec = c.do(http.MethodGet, tenantHost, "/overdue-books/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = c.do(http.MethodPost, tenantHost, "/logout/", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = c.do(http.MethodGet, tenantHost, "/books/", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
