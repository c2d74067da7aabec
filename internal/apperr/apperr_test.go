package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Field("email", "already taken"), http.StatusUnprocessableEntity},
		{"rule", Rule("member has exceeded the borrowing limit"), http.StatusConflict},
		{"not found", NotFound("book"), http.StatusNotFound},
		{"access denied", AccessDenied("login required"), http.StatusForbidden},
		{"rate limited", RateLimited("slow down"), http.StatusTooManyRequests},
		{"storage", Storage("insert book", sql.ErrConnDone), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Status(tc.err))
		})
	}
}

func TestKindOf_SurvivesWrapping(t *testing.T) {
	base := Rule("book is not available")
	wrapped := fmt.Errorf("lend: %w", base)

	assert.Equal(t, KindRule, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, base))
}

func TestPublicMessage_HidesStorageCause(t *testing.T) {
	err := Storage("update book quantity", errors.New("pq: connection reset"))

	assert.Equal(t, "operation failed", PublicMessage(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestError_FieldsAreListedInOrder(t *testing.T) {
	err := Validation(map[string]string{"name": "required", "email": "invalid"})

	assert.Equal(t, "validation failed (email: invalid; name: required)", err.Error())
	assert.Equal(t, map[string]string{"name": "required", "email": "invalid"}, FieldsOf(err))
}
