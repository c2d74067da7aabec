package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lendingdesk/internal/apperr"
	"lendingdesk/internal/store"
	"lendingdesk/internal/tenant"
	"lendingdesk/internal/validation"
)

var schemaPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{1,62}$`)

const errInvalidCredentials = "invalid username or password"

// service implements the Service interface.
type service struct {
	db          *store.DB
	logger      *zap.Logger
	rateLimiter *Limiter
}

// NewService creates a new auth service. A nil limiter allows 5 attempts per minute for each username.
func NewService(db *store.DB, logger *zap.Logger, limiter *Limiter) Service {
	if limiter == nil {
		limiter = NewLimiter(rate.Every(12*time.Second), 5)
	}
	return &service{
		db:          db,
		logger:      logger,
		rateLimiter: limiter,
	}
}

// Register creates a new librarian.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*Librarian, error) {
	if !s.rateLimiter.Allow("register:" + strings.TrimSpace(req.Username)) {
		return nil, apperr.RateLimited("too many attempts, try again later")
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.SchemaName = strings.ToLower(strings.TrimSpace(req.SchemaName))

	errs := validation.Check(req)
	if req.SchemaName != "" && !schemaPattern.MatchString(req.SchemaName) {
		errs = errs.Add("schema_name", "must start with a letter and contain only lowercase letters, digits and hyphens")
	}
	if req.SchemaName == tenant.Public {
		errs = errs.Add("schema_name", "is reserved")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	ctx, span := s.db.Span(ctx, "auth.register", attribute.String("username", req.Username))
	defer span.End()

	hash, salt, err := hashPassword(req.Password)
	if err != nil {
		return nil, store.Failure("hash password", err)
	}

	lib := &Librarian{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		SchemaName:   req.SchemaName,
		PasswordHash: hash,
		PasswordSalt: salt,
	}

	err = s.db.QueryRowxContext(ctx, `
		INSERT INTO librarians (id, username, email, password_hash, password_salt, schema_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, lib.ID, lib.Username, lib.Email, lib.PasswordHash, lib.PasswordSalt, lib.SchemaName).
		Scan(&lib.CreatedAt, &lib.UpdatedAt)
	switch {
	case store.IsUniqueViolation(err, "librarians_username_key"):
		return nil, apperr.Field("username", "is already taken")
	case store.IsUniqueViolation(err, "librarians_email_key"):
		return nil, apperr.Field("email", "is already registered")
	case store.IsUniqueViolation(err, "librarians_schema_name_key"):
		return nil, apperr.Field("schema_name", "is already taken")
	case err != nil:
		return nil, store.Failure("register librarian", err)
	}

	s.logger.Info("librarian registered",
		zap.String("librarian_id", lib.ID.String()),
		zap.String("schema", lib.SchemaName),
	)
	return lib, nil
}

// Authenticate verifies credentials and returns the librarian if they match.
func (s *service) Authenticate(ctx context.Context, req LoginRequest) (*Librarian, error) {
	if !s.rateLimiter.Allow("login:" + strings.TrimSpace(req.Username)) {
		return nil, apperr.RateLimited("too many attempts, try again later")
	}
	if err := validation.Check(req).Err(); err != nil {
		return nil, err
	}

	lib, err := s.getBy(ctx, "username", strings.TrimSpace(req.Username))
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, apperr.AccessDenied(errInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}

	ok, err := verifyPassword(req.Password, lib.PasswordSalt, lib.PasswordHash)
	if err != nil {
		return nil, store.Failure("verify password", err)
	}
	if !ok {
		return nil, apperr.AccessDenied(errInvalidCredentials)
	}
	return lib, nil
}

// GetLibrarian retrieves a librarian by id.
func (s *service) GetLibrarian(ctx context.Context, id uuid.UUID) (*Librarian, error) {
	return s.getBy(ctx, "id", id)
}

func (s *service) getBy(ctx context.Context, column string, value interface{}) (*Librarian, error) {
	query, args, err := store.Build(store.From("librarians").
		Select("id", "username", "email", "schema_name", "password_hash", "password_salt", "created_at", "updated_at").
		Where(goqu.Ex{column: value}))
	if err != nil {
		return nil, err
	}

	lib := &Librarian{}
	if err := s.db.GetContext(ctx, lib, query, args...); err != nil {
		if store.IsNoRows(err) {
			return nil, apperr.NotFound("librarian")
		}
		return nil, store.Failure("get librarian", err)
	}
	return lib, nil
}
