package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
	"github.com/psicoapp/psicoapp/internal/platform/validate"
	"github.com/psicoapp/psicoapp/pkg/envelope"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if rid := c.Get("request_id").(string); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}

	_ = RequestID()(handler)(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_HandlesError(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	e.HTTPErrorHandler = NewHTTPErrorHandler(logger, nil)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return apperr.NotFound("request not found")
	}

	if err := Logger(logger)(handler)(c); err != nil {
		t.Fatalf("expected logger to consume the error, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 written, got %d", rec.Code)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		panic("test panic")
	}

	err := Recovery(logger)(handler)(c)
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	if err := Recovery(logger)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2}, zerolog.Nop())
	h := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	var last error
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		c := e.NewContext(req, httptest.NewRecorder())
		last = h(c)
		if i < 2 && last != nil {
			t.Fatalf("request %d should pass, got %v", i, last)
		}
	}
	var he *echo.HTTPError
	if !errors.As(last, &he) || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third request, got %v", last)
	}

	// a different client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	if err := h(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Errorf("other client should pass, got %v", err)
	}
}

func TestRateLimiterStore_EvictsIdle(t *testing.T) {
	s := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	now := time.Now()
	s.get("a", now)
	s.get("b", now.Add(2*time.Minute))

	if _, ok := s.limiters["a"]; ok {
		t.Error("expected idle limiter to be evicted")
	}
	if _, ok := s.limiters["b"]; !ok {
		t.Error("expected active limiter to remain")
	}
}

func TestRequestTimeout_MapsDeadline(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	h := RequestTimeout(10 * time.Millisecond)(func(c echo.Context) error {
		<-c.Request().Context().Done()
		return fmt.Errorf("query: %w", c.Request().Context().Err())
	})

	var he *echo.HTTPError
	if err := h(c); !errors.As(err, &he) || he.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %v", err)
	}
}

func TestRequestTimeout_PassesOtherErrors(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	h := RequestTimeout(time.Second)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected a deadline on the request context")
		}
		return context.Canceled
	})
	if err := h(c); !errors.Is(err, context.Canceled) {
		t.Errorf("expected passthrough, got %v", err)
	}
}

func TestRequestTimeout_SkipsUpgrade(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/ws", nil)
	req.Header.Set("Upgrade", "websocket")
	c := e.NewContext(req, httptest.NewRecorder())

	h := RequestTimeout(time.Millisecond)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("upgrade requests must not get a deadline")
		}
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) envelope.Failure {
	t.Helper()
	var f envelope.Failure
	if err := json.Unmarshal(rec.Body.Bytes(), &f); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return f
}

func TestHTTPErrorHandler_Kinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"validation", apperr.Validation("reason too short"), 400, "VALIDATION_ERROR", "reason too short"},
		{"invalid state", apperr.InvalidState("not claimed"), 400, "INVALID_STATE", "not claimed"},
		{"unavailable", apperr.Unavailable("outside hours"), 400, "UNAVAILABLE", "outside hours"},
		{"unauthorized", apperr.Unauthorized("no token"), 401, "UNAUTHORIZED", "no token"},
		{"forbidden", apperr.Forbidden("not yours"), 403, "FORBIDDEN", "not yours"},
		{"not found", apperr.NotFound("nope"), 404, "NOT_FOUND", "nope"},
		{"conflict", fmt.Errorf("claim: %w", apperr.Conflict("already claimed")), 409, "CONFLICT", "already claimed"},
		{"echo 404", echo.ErrNotFound, 404, "NOT_FOUND", "Not Found"},
		{"rate limited", echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded"), 429, "RATE_LIMITED", "rate limit exceeded"},
		{"plain error", errors.New("connection reset"), 500, "INTERNAL_ERROR", "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

			NewHTTPErrorHandler(zerolog.Nop(), nil)(tt.err, c)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			f := decodeFailure(t, rec)
			if f.Success {
				t.Error("expected success=false")
			}
			if f.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", f.Code, tt.wantCode)
			}
			if f.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", f.Message, tt.wantMsg)
			}
		})
	}
}

func TestHTTPErrorHandler_ValidationFields(t *testing.T) {
	type body struct {
		Reason string `json:"reason" validate:"required"`
	}
	v := validate.New()
	verr := v.Validate(body{})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	NewHTTPErrorHandler(zerolog.Nop(), v)(verr, c)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	f := decodeFailure(t, rec)
	if _, ok := f.Fields["reason"]; !ok {
		t.Errorf("expected reason field error, got %v", f.Fields)
	}
}
