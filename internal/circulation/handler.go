package circulation

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

// Routes mounts the loan endpoints under /lent-books/.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleListLoans)
	r.Post("/", h.handleLend)
	r.Put("/{id}", h.handleUpdateLoan)
	r.Delete("/{id}", h.handleDeleteLoan)
	r.Post("/{id}/return", h.handleReturn)
	r.Post("/{id}/pay-fine", h.handlePayFine)
}

// OverdueRoutes mounts the overdue listing under /overdue-books/.
func (h *Handler) OverdueRoutes(r chi.Router) {
	r.Get("/", h.handleListOverdue)
}

func (h *Handler) handleListLoans(w http.ResponseWriter, r *http.Request) {
	librarianID, err := auth.ActingLibrarianID(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	loans, err := h.service.ListLoans(r.Context(), librarianID, httpx.SearchQuery(r))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) handleListOverdue(w http.ResponseWriter, r *http.Request) {
	librarianID, err := auth.ActingLibrarianID(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	loans, err := h.service.ListOverdue(r.Context(), librarianID, httpx.SearchQuery(r))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) handleLend(w http.ResponseWriter, r *http.Request) {
	librarianID, err := auth.ActingLibrarianID(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var req LendRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	result, err := h.service.Lend(r.Context(), librarianID, req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleUpdateLoan(w http.ResponseWriter, r *http.Request) {
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

	var in LoanUpdate
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	loan, err := h.service.UpdateLoan(r.Context(), librarianID, id, in)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleDeleteLoan(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.DeleteLoan(r.Context(), librarianID, id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReturn answers 200 when the book went back and 402 when a fine must be paid first.
func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
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

	out, err := h.service.Return(r.Context(), librarianID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if !out.Returned {
		status = http.StatusPaymentRequired
	}
	httpx.WriteJSON(w, status, out)
}

func (h *Handler) handlePayFine(w http.ResponseWriter, r *http.Request) {
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

	var req PayFineRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	paid, err := h.service.PayFine(r.Context(), librarianID, id, req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paid)
}
