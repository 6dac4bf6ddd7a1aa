package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
)

// Role is the caller's coarse role as issued by the identity provider.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleStaff   Role = "STAFF"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole normalizes the role names used by the identity provider.
// Psychologists and counselors are both staff.
func ParseRole(s string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STUDENT", "ESTUDIANTE":
		return RoleStudent, true
	case "STAFF", "PSICOLOGO", "ORIENTADOR", "CONSEJERO":
		return RoleStaff, true
	case "ADMIN", "ADMINISTRADOR":
		return RoleAdmin, true
	}
	return "", false
}

// Session is the authenticated caller. It is placed in the request context by
// the auth middleware and read by handlers; services receive plain ids.
type Session struct {
	UserID        uuid.UUID
	Role          Role
	InstitutionID uuid.UUID
}

func (s Session) IsStaff() bool { return s.Role == RoleStaff || s.Role == RoleAdmin }

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// SessionFrom returns the session of the current request or an Unauthorized error.
func SessionFrom(c echo.Context) (Session, error) {
	s, ok := SessionFromContext(c.Request().Context())
	if !ok || s.UserID == uuid.Nil {
		return Session{}, apperr.Unauthorized("authentication required")
	}
	return s, nil
}

func setSession(c echo.Context, s Session) {
	c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), s)))
}
