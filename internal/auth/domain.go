package auth

import (
	"github.com/google/uuid"

	"lendingdesk/internal/store"
	"lendingdesk/internal/tenant"
)

// Librarian is an account that owns members, books and loans.
type Librarian struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	SchemaName   string    `db:"schema_name" json:"schema_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	PasswordSalt string    `db:"password_salt" json:"-"`
	store.Audit
}

// Tenant is the tenant identifier stored in the session after login.
func (l *Librarian) Tenant() string {
	if l.SchemaName == "" {
		return tenant.Public
	}
	return l.SchemaName
}

// RegisterRequest creates a librarian account. SchemaName may be left empty for accounts that
// have not been given their own host yet.
type RegisterRequest struct {
	Username   string `json:"username" validate:"required,min=3,max=150"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	SchemaName string `json:"schema_name" validate:"omitempty,max=63"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}
