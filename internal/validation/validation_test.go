package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"lendingdesk/internal/apperr"
)

type sample struct {
	Name   string          `json:"name" validate:"required,max=10"`
	Email  string          `json:"email" validate:"required,email"`
	Fee    decimal.Decimal `json:"fee" validate:"gt=0"`
	Method string          `json:"payment_method" validate:"oneof=cash card"`
	Tags   []string        `json:"tags" validate:"min=1,unique"`
}

func TestCheck_Valid(t *testing.T) {
	s := sample{
		Name:   "Ada",
		Email:  "ada@example.com",
		Fee:    decimal.RequireFromString("2.50"),
		Method: "cash",
		Tags:   []string{"a", "b"},
	}

	assert.Nil(t, Check(s))
	assert.NoError(t, Check(s).Err())
}

func TestCheck_ReportsJSONFieldNames(t *testing.T) {
	s := sample{
		Name:   "",
		Email:  "not-an-email",
		Fee:    decimal.Zero,
		Method: "bitcoin",
		Tags:   []string{"x", "x"},
	}

	errs := Check(s)

	assert.Equal(t, "this field is required", errs["name"])
	assert.Equal(t, "must be a valid email address", errs["email"])
	assert.Equal(t, "must be greater than 0", errs["fee"])
	assert.Equal(t, "must be one of: cash, card", errs["payment_method"])
	assert.Equal(t, "must not contain duplicates", errs["tags"])
}

func TestErrors_AddKeepsFirstMessage(t *testing.T) {
	var errs Errors
	errs = errs.Add("email", "first")
	errs = errs.Add("email", "second")

	assert.Equal(t, "first", errs["email"])

	err := errs.Err()
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
