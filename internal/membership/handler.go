package membership

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"lendingdesk/internal/auth"
	"lendingdesk/internal/httpx"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the member endpoints under /members/.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleSearch)
	r.Post("/", h.handleAddMember)
	r.Get("/{id}", h.handleGetMember)
	r.Put("/{id}", h.handleUpdateMember)
	r.Delete("/{id}", h.handleRemoveMember)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	librarianID, err := auth.ActingLibrarianID(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	members, err := h.service.Search(r.Context(), librarianID, httpx.SearchQuery(r))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, members)
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	librarianID, err := auth.ActingLibrarianID(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var in MemberInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	member, err := h.service.AddMember(r.Context(), librarianID, in)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, member)
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	librarianID, err := auth.ActingLibrarianID(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	member, err := h.service.GetMember(r.Context(), librarianID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	librarianID, err := auth.ActingLibrarianID(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var in MemberInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	member, err := h.service.UpdateMember(r.Context(), librarianID, id, in)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	librarianID, err := auth.ActingLibrarianID(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.service.RemoveMember(r.Context(), librarianID, id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
