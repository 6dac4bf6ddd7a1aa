package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
)

// Dev-mode identity headers.
const (
	HeaderUserID        = "X-User-ID"
	HeaderUserRole      = "X-User-Role"
	HeaderInstitutionID = "X-Institution-ID"
)

// Claims is the token payload issued by the session provider.
type Claims struct {
	jwt.RegisteredClaims
	Role          string `json:"role"`
	InstitutionID string `json:"institution_id,omitempty"`
}

type JWTConfig struct {
	SigningKey []byte
	Issuer     string
	Audience   string
}

// JWTMiddleware verifies HS256 bearer tokens and stores the Session.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	keyFunc := func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return apperr.Unauthorized("invalid token")
			}

			s, err := sessionFromClaims(claims)
			if err != nil {
				return err
			}
			setSession(c, s)
			return next(c)
		}
	}
}

// TokenQueryParam carries the token for clients that cannot set headers,
// such as browsers opening a WebSocket. The header wins when both are present.
const TokenQueryParam = "access_token"

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		if q := c.QueryParam(TokenQueryParam); q != "" {
			return q, nil
		}
		return "", apperr.Unauthorized("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", apperr.Unauthorized("invalid authorization format")
	}
	return parts[1], nil
}

func sessionFromClaims(claims *Claims) (Session, error) {
	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Session{}, apperr.Unauthorized("token subject is not a valid user id")
	}
	role, ok := ParseRole(claims.Role)
	if !ok {
		return Session{}, apperr.Unauthorized("token carries an unknown role")
	}
	s := Session{UserID: uid, Role: role}
	if claims.InstitutionID != "" {
		iid, err := uuid.Parse(claims.InstitutionID)
		if err != nil {
			return Session{}, apperr.Unauthorized("token institution is not a valid id")
		}
		s.InstitutionID = iid
	}
	return s, nil
}

// DevAuthMiddleware trusts identity headers. Development only.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			uid, err := uuid.Parse(h.Get(HeaderUserID))
			if err != nil {
				return apperr.Unauthorized("missing or invalid %s header", HeaderUserID)
			}
			role := RoleStudent
			if raw := h.Get(HeaderUserRole); raw != "" {
				r, ok := ParseRole(raw)
				if !ok {
					return apperr.Unauthorized("unknown role %q", raw)
				}
				role = r
			}
			setSession(c, Session{UserID: uid, Role: role})
			return next(c)
		}
	}
}
