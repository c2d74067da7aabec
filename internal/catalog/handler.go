package catalog

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

// Routes mounts the book endpoints under /books/.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleSearch)
	r.Post("/", h.handleAddBook)
	r.Get("/categories", h.handleCategories)
	r.Get("/{id}", h.handleGetBook)
	r.Put("/{id}", h.handleUpdateBook)
	r.Delete("/{id}", h.handleRemoveBook)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	librarianID, err := auth.ActingLibrarianID(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	books, err := h.service.Search(r.Context(), librarianID, httpx.SearchQuery(r))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, Categories())
}

func (h *Handler) handleAddBook(w http.ResponseWriter, r *http.Request) {
	librarianID, err := auth.ActingLibrarianID(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var in BookInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	book, err := h.service.AddBook(r.Context(), librarianID, in)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, book)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
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

	book, err := h.service.GetBook(r.Context(), librarianID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
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

	var in BookInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	book, err := h.service.UpdateBook(r.Context(), librarianID, id, in)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleRemoveBook(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.RemoveBook(r.Context(), librarianID, id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
