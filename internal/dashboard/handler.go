package dashboard

import (
	"net/http"

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

// HandleHome serves GET /.
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	librarianID, err := auth.ActingLibrarianID(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	summary, err := h.service.Summary(r.Context(), librarianID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}
