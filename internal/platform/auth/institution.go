package auth

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
)

// InstitutionScope resolves the tenant boundary of the request. The
// X-Institution-ID header wins when the token carries no institution; a
// header that contradicts the token is rejected unless the caller is an admin.
func InstitutionScope() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, err := SessionFrom(c)
			if err != nil {
				return err
			}
			iid, err := resolveInstitution(c, s)
			if err != nil {
				return err
			}
			s.InstitutionID = iid
			setSession(c, s)
			return next(c)
		}
	}
}

func resolveInstitution(c echo.Context, s Session) (uuid.UUID, error) {
	raw := c.Request().Header.Get(HeaderInstitutionID)
	if raw == "" {
		if s.InstitutionID == uuid.Nil {
			return uuid.Nil, apperr.Validation("%s header is required", HeaderInstitutionID)
		}
		return s.InstitutionID, nil
	}

	iid, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s header", HeaderInstitutionID)
	}
	if s.InstitutionID != uuid.Nil && s.InstitutionID != iid && s.Role != RoleAdmin {
		return uuid.Nil, apperr.Forbidden("caller does not belong to institution %s", iid)
	}
	return iid, nil
}
