package requests

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
	"github.com/psicoapp/psicoapp/internal/platform/auth"
	"github.com/psicoapp/psicoapp/internal/platform/middleware"
	"github.com/psicoapp/psicoapp/internal/platform/validate"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _, _ := newTestService()
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(svc), e
}

func newContext(e *echo.Echo, method, body string, s auth.Session) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, "/", nil)
	}
	s.InstitutionID = testInstitution
	req = req.WithContext(auth.WithSession(req.Context(), s))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", rec.Body.String())
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestHandler_Submit(t *testing.T) {
	h, e := newTestHandler()
	student := auth.Session{UserID: uuid.New(), Role: auth.RoleStudent}
	c, rec := newContext(e, http.MethodPost, `{"reason":"Necesito ayuda con ansiedad","severity":"ALTA","modality":"VIRTUAL"}`, student)

	if err := h.Submit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var q Request
	decodeData(t, rec, &q)
	if q.Status != StatusRequested || q.Severity != SeverityHigh || q.StudentID != student.UserID {
		t.Errorf("unexpected request %+v", q)
	}
}

func TestHandler_Submit_BadEnum(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newContext(e, http.MethodPost, `{"reason":"Necesito ayuda con ansiedad","severity":"URGENTE"}`, auth.Session{UserID: uuid.New(), Role: auth.RoleStudent})

	if err := h.Submit(c); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestHandler_Submit_ShortReason(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newContext(e, http.MethodPost, `{"reason":"hola"}`, auth.Session{UserID: uuid.New(), Role: auth.RoleStudent})

	if err := h.Submit(c); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandler_ClaimAndRelease(t *testing.T) {
	h, e := newTestHandler()
	q := submit(t, h.svc, uuid.New())
	staff := auth.Session{UserID: uuid.New(), Role: auth.RoleStaff}

	c, rec := newContext(e, http.MethodPost, "", staff)
	c.SetParamNames("id")
	c.SetParamValues(q.ID.String())
	if err := h.Claim(c); err != nil {
		t.Fatalf("claim: %v", err)
	}
	var got Request
	decodeData(t, rec, &got)
	if got.Status != StatusAssigned {
		t.Errorf("expected ASIGNADA, got %s", got.Status)
	}

	other := auth.Session{UserID: uuid.New(), Role: auth.RoleStaff}
	c, _ = newContext(e, http.MethodPost, "", other)
	c.SetParamNames("id")
	c.SetParamValues(q.ID.String())
	if err := h.Claim(c); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	c, _ = newContext(e, http.MethodPost, "", other)
	c.SetParamNames("id")
	c.SetParamValues(q.ID.String())
	if err := h.Release(c); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}

	c, rec = newContext(e, http.MethodPost, "", staff)
	c.SetParamNames("id")
	c.SetParamValues(q.ID.String())
	if err := h.Release(c); err != nil {
		t.Fatalf("release: %v", err)
	}
	decodeData(t, rec, &got)
	if got.Status != StatusRequested {
		t.Errorf("expected SOLICITADA, got %s", got.Status)
	}
}

func TestHandler_Claim_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newContext(e, http.MethodPost, "", auth.Session{UserID: uuid.New(), Role: auth.RoleStaff})
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if err := h.Claim(c); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHandler_ListOpen(t *testing.T) {
	h, e := newTestHandler()
	submit(t, h.svc, uuid.New())
	submit(t, h.svc, uuid.New())

	c, rec := newContext(e, http.MethodGet, "", auth.Session{UserID: uuid.New(), Role: auth.RoleStaff})
	if err := h.ListOpen(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []Request
	decodeData(t, rec, &items)
	if len(items) != 2 {
		t.Errorf("expected 2 open requests, got %d", len(items))
	}
}

func TestHandler_ListOpen_Empty(t *testing.T) {
	h, e := newTestHandler()
	c, rec := newContext(e, http.MethodGet, "", auth.Session{UserID: uuid.New(), Role: auth.RoleStaff})
	if err := h.ListOpen(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_ListMine(t *testing.T) {
	h, e := newTestHandler()
	student := auth.Session{UserID: uuid.New(), Role: auth.RoleStudent}
	submit(t, h.svc, student.UserID)

	c, rec := newContext(e, http.MethodGet, "", student)
	if err := h.ListMine(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Items []Request `json:"items"`
		Total int       `json:"total"`
	}
	decodeData(t, rec, &page)
	if page.Total != 1 || len(page.Items) != 1 {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestHandler_Withdraw(t *testing.T) {
	h, e := newTestHandler()
	student := auth.Session{UserID: uuid.New(), Role: auth.RoleStudent}
	q := submit(t, h.svc, student.UserID)

	c, rec := newContext(e, http.MethodPost, "", student)
	c.SetParamNames("id")
	c.SetParamValues(q.ID.String())
	if err := h.Withdraw(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Request
	decodeData(t, rec, &got)
	if got.Status != StatusCancelled {
		t.Errorf("expected CANCELADA, got %s", got.Status)
	}
}

func TestHandler_RoutesRequireRole(t *testing.T) {
	h, e := newTestHandler()
	e.HTTPErrorHandler = middleware.NewHTTPErrorHandler(zerolog.Nop(), validate.New())
	e.Use(auth.DevAuthMiddleware(), auth.InstitutionScope())
	h.RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/open", nil)
	req.Header.Set(auth.HeaderUserID, uuid.NewString())
	req.Header.Set(auth.HeaderUserRole, "STUDENT")
	req.Header.Set(auth.HeaderInstitutionID, testInstitution.String())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a student listing the open queue, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"FORBIDDEN"`) {
		t.Errorf("expected FORBIDDEN envelope, got %s", rec.Body.String())
	}
}
