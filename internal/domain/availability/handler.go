package availability

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
	"github.com/psicoapp/psicoapp/internal/platform/auth"
	"github.com/psicoapp/psicoapp/pkg/envelope"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts slots, breaks and working hours. Booking a slot is
// owned by the appointments handler.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.RequireRole(auth.RoleStaff)

	api.GET("/slots", h.ListSlots)
	api.POST("/slots", h.Publish, staff)

	api.GET("/breaks", h.ListBreaks)
	api.POST("/breaks", h.CreateBreak, staff)
	api.DELETE("/breaks/:id", h.DeleteBreak, staff)

	api.GET("/working-hours", h.GetWorkingHours)
	api.PUT("/working-hours", h.ReplaceWorkingHours, staff)
}

func parseTimeParam(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.Validation("%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}

func parseStaffParam(c echo.Context) (*uuid.UUID, error) {
	raw := c.QueryParam("staffId")
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation("invalid staffId %q", raw)
	}
	return &id, nil
}

// staffTarget is the staffId query parameter, or the caller when they are staff.
func staffTarget(c echo.Context, s auth.Session) (uuid.UUID, error) {
	id, err := parseStaffParam(c)
	if err != nil {
		return uuid.Nil, err
	}
	if id != nil {
		return *id, nil
	}
	if s.IsStaff() {
		return s.UserID, nil
	}
	return uuid.Nil, apperr.Validation("staffId is required")
}

func (h *Handler) ListSlots(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	from, err := parseTimeParam(c, "from")
	if err != nil {
		return err
	}
	to, err := parseTimeParam(c, "to")
	if err != nil {
		return err
	}
	staffID, err := parseStaffParam(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListOpenSlots(c.Request().Context(), s.InstitutionID, staffID, from, to)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Slot{}
	}
	return envelope.OK(c, http.StatusOK, items)
}

func (h *Handler) Publish(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	var in PublishInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("malformed request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	slots, err := h.svc.Publish(c.Request().Context(), s.UserID, s.InstitutionID, in.Blocks)
	if err != nil {
		return err
	}
	return envelope.OK(c, http.StatusCreated, slots)
}

func (h *Handler) ListBreaks(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	staffID, err := staffTarget(c, s)
	if err != nil {
		return err
	}
	items, err := h.svc.ListBreaks(c.Request().Context(), staffID)
	if err != nil {
		return err
	}
	if items == nil {
		items = []Break{}
	}
	return envelope.OK(c, http.StatusOK, items)
}

func (h *Handler) CreateBreak(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	var in BreakInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("malformed request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	b, err := h.svc.CreateBreak(c.Request().Context(), s.UserID, in)
	if err != nil {
		return err
	}
	return envelope.OK(c, http.StatusCreated, b)
}

func (h *Handler) DeleteBreak(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id %q", c.Param("id"))
	}
	if err := h.svc.DeleteBreak(c.Request().Context(), s.UserID, id); err != nil {
		return err
	}
	return envelope.OK(c, http.StatusOK, map[string]string{"id": id.String()})
}

func (h *Handler) GetWorkingHours(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	staffID, err := staffTarget(c, s)
	if err != nil {
		return err
	}
	items, err := h.svc.GetWorkingHours(c.Request().Context(), staffID)
	if err != nil {
		return err
	}
	if items == nil {
		items = []WorkingHours{}
	}
	return envelope.OK(c, http.StatusOK, items)
}

func (h *Handler) ReplaceWorkingHours(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	var in ReplaceHoursInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("malformed request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	hours, err := h.svc.ReplaceWorkingHours(c.Request().Context(), s.UserID, s.InstitutionID, in.Hours)
	if err != nil {
		return err
	}
	return envelope.OK(c, http.StatusOK, hours)
}
