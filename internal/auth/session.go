package auth

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const (
	keyLibrarianID = "librarian_id"
	keyTenant      = "tenant"

	sessionMaxAge = 14 * 24 * 60 * 60
)

// Sessions stores the logged-in librarian and tenant in a signed cookie.
type Sessions struct {
	store sessions.Store
	name  string
}

// NewSessions returns a cookie-backed session store keyed by secret.
func NewSessions(secret []byte, name string, secure bool) *Sessions {
	cs := sessions.NewCookieStore(secret)
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Sessions{store: cs, name: name}
}

// session never returns nil; a cookie that fails to decode yields a fresh session.
func (s *Sessions) session(r *http.Request) *sessions.Session {
	sess, err := s.store.Get(r, s.name)
	if sess == nil || err != nil {
		sess = sessions.NewSession(s.store, s.name)
		sess.Options = &sessions.Options{Path: "/", MaxAge: sessionMaxAge, HttpOnly: true}
	}
	return sess
}

// Tenant returns the tenant recorded at login, or "" when there is none.
func (s *Sessions) Tenant(r *http.Request) string {
	v, _ := s.session(r).Values[keyTenant].(string)
	return v
}

// LibrarianID returns the id of the logged-in librarian.
func (s *Sessions) LibrarianID(r *http.Request) (uuid.UUID, bool) {
	v, _ := s.session(r).Values[keyLibrarianID].(string)
	if v == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Login records lib in the session.
func (s *Sessions) Login(w http.ResponseWriter, r *http.Request, lib *Librarian) error {
	sess := s.session(r)
	sess.Values[keyLibrarianID] = lib.ID.String()
	sess.Values[keyTenant] = lib.Tenant()
	return sess.Save(r, w)
}

// Logout expires the session cookie.
func (s *Sessions) Logout(w http.ResponseWriter, r *http.Request) error {
	sess := s.session(r)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}
