package auth

import (
	"net"
	"net/http"

	"go.uber.org/zap"

	"lendingdesk/internal/access"
	"lendingdesk/internal/httpx"
)

type Handler struct {
	service  Service
	sessions *Sessions
	logger   *zap.Logger
	secure   func(*http.Request) bool
}

// NewHandler builds the login handlers. secure reports whether a request arrived over TLS.
func NewHandler(service Service, sessions *Sessions, logger *zap.Logger, secure func(*http.Request) bool) *Handler {
	return &Handler{service: service, sessions: sessions, logger: logger, secure: secure}
}

type loginResponse struct {
	Librarian *Librarian `json:"librarian"`
	Redirect  string     `json:"redirect,omitempty"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	lib, err := h.service.Register(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, lib)
}

// HandleLogin logs in on any host. When the librarian owns a schema and the request came in on
// another host, the response names the tenant login URL to continue on.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	lib, ok := h.login(w, r)
	if !ok {
		return
	}

	resp := loginResponse{Librarian: lib}
	d := access.Decide(
		access.Request{Path: "/", Host: r.Host, Secure: h.secure(r), Tenant: lib.Tenant()},
		access.Caller{Authenticated: true, Schema: lib.SchemaName},
		access.DefaultPolicy(),
	)
	if d.Outcome == access.Redirect && d.Host != "" {
		resp.Redirect = d.URL()
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleTenantLogin logs in on the librarian's own host.
func (h *Handler) HandleTenantLogin(w http.ResponseWriter, r *http.Request) {
	lib, ok := h.login(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse{Librarian: lib})
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(w, r); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) (*Librarian, bool) {
	var req LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return nil, false
	}

	lib, err := h.service.Authenticate(r.Context(), req)
	if err != nil {
		h.logger.Info("login rejected",
			zap.String("username", req.Username),
			zap.String("remote", remoteHost(r)),
			zap.Error(err),
		)
		httpx.WriteError(w, r, h.logger, err)
		return nil, false
	}

	if err := h.sessions.Login(w, r, lib); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return nil, false
	}
	return lib, true
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
