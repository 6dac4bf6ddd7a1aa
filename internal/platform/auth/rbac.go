package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
)

// RequireRole allows the request when the caller has one of roles. Admins
// always pass.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, err := SessionFrom(c)
			if err != nil {
				return err
			}
			if s.Role == RoleAdmin {
				return next(c)
			}
			for _, r := range roles {
				if s.Role == r {
					return next(c)
				}
			}
			return apperr.Forbidden("role %s may not perform this operation", s.Role)
		}
	}
}
