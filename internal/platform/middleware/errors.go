package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
	"github.com/psicoapp/psicoapp/internal/platform/validate"
	"github.com/psicoapp/psicoapp/pkg/envelope"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation, apperr.KindInvalidState, apperr.KindUnavailable:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return apperr.KindValidation.String()
	case http.StatusUnauthorized:
		return apperr.KindUnauthorized.String()
	case http.StatusForbidden:
		return apperr.KindForbidden.String()
	case http.StatusNotFound:
		return apperr.KindNotFound.String()
	case http.StatusConflict:
		return apperr.KindConflict.String()
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusGatewayTimeout:
		return "TIMEOUT"
	}
	if status >= 500 {
		return apperr.KindInternal.String()
	}
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

// NewHTTPErrorHandler renders every error as the failure envelope. Unclassified
// errors become a generic 500 and are logged with the request id.
func NewHTTPErrorHandler(logger zerolog.Logger, v *validate.Validator) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			status  int
			code    string
			message string
			fields  map[string]string
		)

		var (
			appErr  *apperr.Error
			httpErr *echo.HTTPError
			vErrs   validator.ValidationErrors
		)
		switch {
		case errors.As(err, &vErrs):
			status = http.StatusBadRequest
			code = apperr.KindValidation.String()
			message = "validation failed"
			if v != nil {
				fields = v.Fields(vErrs)
			}
		case errors.As(err, &appErr):
			status = StatusFor(appErr.Kind)
			code = appErr.Kind.String()
			message = appErr.Message
			if appErr.Kind == apperr.KindInternal {
				message = http.StatusText(http.StatusInternalServerError)
			}
		case errors.As(err, &httpErr):
			status = httpErr.Code
			code = codeForStatus(status)
			message = fmt.Sprint(httpErr.Message)
		default:
			status = http.StatusInternalServerError
			code = apperr.KindInternal.String()
			message = http.StatusText(http.StatusInternalServerError)
		}

		rid := requestID(c)
		switch {
		case status >= 500:
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Path()).Msg("request failed")
		case status == http.StatusConflict:
			logger.Info().Str("request_id", rid).Str("reason", message).Msg("concurrency conflict")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else if fields != nil {
			werr = envelope.FailFields(c, status, code, message, fields)
		} else {
			werr = envelope.Fail(c, status, code, message)
		}
		if werr != nil {
			logger.Error().Err(werr).Str("request_id", rid).Msg("writing error response")
		}
	}
}
