package requests

import (
	"context"
	"net/http"

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

// RegisterRoutes mounts the queue under /requests. Scheduling a request is
// owned by the appointments handler.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/requests")

	student := auth.RequireRole(auth.RoleStudent)
	staff := auth.RequireRole(auth.RoleStaff)

	g.POST("", h.Submit, student)
	g.GET("/mine", h.ListMine, student)
	g.POST("/:id/cancel", h.Withdraw, student)

	g.GET("/open", h.ListOpen, staff)
	g.POST("/:id/claim", h.Claim, staff)
	g.POST("/:id/release", h.Release, staff)

	g.GET("/:id", h.Get)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id %q", c.Param("id"))
	}
	return id, nil
}

func (h *Handler) Submit(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	var in SubmitInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("malformed request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	q, err := h.svc.Submit(c.Request().Context(), s.UserID, s.InstitutionID, in)
	if err != nil {
		return err
	}
	return envelope.OK(c, http.StatusCreated, q)
}

func (h *Handler) ListOpen(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListOpen(c.Request().Context(), s.InstitutionID)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Request{}
	}
	return envelope.OK(c, http.StatusOK, items)
}

func (h *Handler) ListMine(c echo.Context) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListMine(c.Request().Context(), s.UserID, s.InstitutionID, p)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Request{}
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
	q, err := h.svc.Get(c.Request().Context(), s.InstitutionID, id, Viewer{UserID: s.UserID, Staff: s.IsStaff()})
	if err != nil {
		return err
	}
	return envelope.OK(c, http.StatusOK, q)
}

func (h *Handler) Claim(c echo.Context) error {
	return h.transition(c, h.svc.Claim)
}

func (h *Handler) Release(c echo.Context) error {
	return h.transition(c, h.svc.Release)
}

func (h *Handler) Withdraw(c echo.Context) error {
	return h.transition(c, h.svc.Withdraw)
}

type transitionFunc func(ctx context.Context, institutionID, id, actorID uuid.UUID) (*Request, error)

func (h *Handler) transition(c echo.Context, fn transitionFunc) error {
	s, err := auth.SessionFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	q, err := fn(c.Request().Context(), s.InstitutionID, id, s.UserID)
	if err != nil {
		return err
	}
	return envelope.OK(c, http.StatusOK, q)
}
