package appointments

import (
	"bufio"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
	"github.com/psicoapp/psicoapp/internal/platform/auth"
	"github.com/psicoapp/psicoapp/pkg/envelope"
	"github.com/psicoapp/psicoapp/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the scheduler entry points next to the resources
// they consume, and the lifecycle under /appointments.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	student := auth.RequireRole(auth.RoleStudent)
	staff := auth.RequireRole(auth.RoleStaff)

	api.POST("/requests/:id/schedule", h.Schedule, staff)
	api.POST("/slots/:id/book", h.BookSlot, student)

	g := api.Group("/appointments")
	g.GET("/mine", h.ListMine)
	g.GET("/:id", h.Get)
	g.POST("/:id/status", h.UpdateStatus, staff)
	g.POST("/:id/cancel", h.Cancel)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id %q", c.Param("id"))
	}
	return id, nil
}

// bindOptional binds a body that callers may omit entirely. Chunked
// requests report an unknown length, so their body is peeked instead.
func bindOptional(c echo.Context, v interface{}) error {
	req := c.Request()
	if req.ContentLength == 0 || req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.ContentLength < 0 {
		br := bufio.NewReader(req.Body)
		if _, err := br.Peek(1); err == io.EOF {
			return nil
		}
		req.Body = struct {
			io.Reader
			io.Closer
		}{br, req.Body}
	}
	if err := c.Bind(v); err != nil {
		return apperr.Validation("malformed request body")
	}
	return c.Validate(v)
}

func (h *Handler) Schedule(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in ScheduleInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("malformed request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	a, err := h.svc.Schedule(c.Request().Context(), s.InstitutionID, id, s.UserID, in)
	if err != nil {
		return err
	}
	return envelope.OK(c, http.StatusCreated, a)
}

func (h *Handler) BookSlot(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in BookInput
	if err := bindOptional(c, &in); err != nil {
		return err
	}
	a, err := h.svc.BookSlot(c.Request().Context(), s.InstitutionID, id, s.UserID, in)
	if err != nil {
		return err
	}
	return envelope.OK(c, http.StatusCreated, a)
}

func (h *Handler) ListMine(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	role := Role(strings.ToUpper(c.QueryParam("role")))
	if role == "" {
		role = RoleStudent
		if s.IsStaff() {
			role = RoleStaff
		}
	}
	f := ListFilter{InstitutionID: s.InstitutionID, UserID: s.UserID, Role: role}
	if raw := c.QueryParam("status"); raw != "" {
		st := Status(strings.ToUpper(raw))
		f.Status = &st
	}

	p := pagination.FromContext(c)
	items, total, err := h.svc.ListMine(c.Request().Context(), f, p)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return envelope.OK(c, http.StatusOK, pagination.NewPage(items, total, p))
}

func (h *Handler) Get(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), s.InstitutionID, id, Viewer{UserID: s.UserID, Admin: s.Role == auth.RoleAdmin})
	if err != nil {
		return err
	}
	return envelope.OK(c, http.StatusOK, a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in StatusInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("malformed request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	in.Status = Status(strings.ToUpper(string(in.Status)))
	a, err := h.svc.UpdateStatus(c.Request().Context(), s.InstitutionID, id, s.UserID, in)
	if err != nil {
		return err
	}
	return envelope.OK(c, http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in CancelInput
	if err := bindOptional(c, &in); err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), s.InstitutionID, id, s.UserID, in)
	if err != nil {
		return err
	}
	return envelope.OK(c, http.StatusOK, a)
}
