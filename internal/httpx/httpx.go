// Package httpx holds the JSON request and response helpers shared by every handler.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lendingdesk/internal/apperr"
)

const maxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err using its apperr kind. Storage and unknown failures are logged and
// reported with a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	WriteJSON(w, status, ErrorBody{Error: apperr.PublicMessage(err), Fields: apperr.FieldsOf(err)})
}

// DecodeJSON reads a JSON request body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Field("body", "must not be empty")
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperr.Field(typeErr.Field, "has the wrong type")
		}
		return apperr.Field("body", "must be valid JSON")
	}
	return nil
}

// PathUUID parses the named chi URL parameter. A malformed id cannot name a record.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.NotFound("record")
	}
	return id, nil
}

// SearchQuery returns the trimmed ?query= parameter.
func SearchQuery(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("query"))
}
