package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runSecurityHeaders(t *testing.T, req *http.Request) http.Header {
	t.Helper()
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if err := SecurityHeaders()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec.Header()
}

func TestSecurityHeaders(t *testing.T) {
	h := runSecurityHeaders(t, httptest.NewRequest(http.MethodGet, "/api/v1/appointments/mine", nil))

	for _, kv := range apiHeaders {
		if got := h.Get(kv[0]); got != kv[1] {
			t.Errorf("%s = %q, want %q", kv[0], got, kv[1])
		}
	}
	if h.Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain http")
	}
}

func TestSecurityHeaders_HSTSBehindProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderXForwardedProto, "https")

	if h := runSecurityHeaders(t, req); h.Get("Strict-Transport-Security") == "" {
		t.Error("expected HSTS for forwarded https")
	}
}
