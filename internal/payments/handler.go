package payments

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

// Routes mounts the payment endpoints under /payments/.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/methods", h.handleMethods)
	r.Delete("/{id}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	librarianID, err := auth.ActingLibrarianID(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	list, err := h.service.List(r.Context(), librarianID, httpx.SearchQuery(r))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) handleMethods(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, Methods())
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.Delete(r.Context(), librarianID, id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
