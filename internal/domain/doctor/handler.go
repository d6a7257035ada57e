package doctor

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apierr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/doctors")
	g.GET("", h.List)
	g.POST("/my-profile", h.CreateMyProfile)
	g.GET("/my-profile", h.MyProfile)
	g.GET("/specialization", h.BySpecialization)
	g.GET("/availability", h.ByAvailability)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.PATCH("/:id/availability", h.SetAvailability)
	g.DELETE("/:id", h.Delete)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateMyProfile(c echo.Context) error {
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateMyProfile(c.Request().Context(), auth.IdentityFrom(c), &d); err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) MyProfile(c echo.Context) error {
	d, err := h.svc.MyProfile(c.Request().Context(), auth.IdentityFrom(c))
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	view, err := h.svc.Get(c.Request().Context(), auth.IdentityFrom(c), id)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), auth.IdentityFrom(c), pg.Limit, pg.Offset)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// BySpecialization lists doctors whose specialization contains the
// specialization query parameter.
func (h *Handler) BySpecialization(c echo.Context) error {
	spec := c.QueryParam("specialization")
	if spec == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "specialization is required")
	}
	return h.search(c, Filter{Specialization: spec})
}

// ByAvailability lists doctors by the status query parameter, defaulting
// to available ones.
func (h *Handler) ByAvailability(c echo.Context) error {
	available, err := parseStatus(c.QueryParam("status"), true)
	if err != nil {
		return err
	}
	return h.search(c, Filter{Available: &available})
}

func parseStatus(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "status must be true or false")
	}
	return b, nil
}

func (h *Handler) search(c echo.Context, f Filter) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Search(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = id
	if err := h.svc.Update(c.Request().Context(), auth.IdentityFrom(c), &d); err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

type availabilityRequest struct {
	IsAvailable *bool `json:"is_available"`
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	// The new state comes from ?status= or, failing that, the JSON body.
	var req availabilityRequest
	if v := c.QueryParam("status"); v != "" {
		b, err := parseStatus(v, false)
		if err != nil {
			return err
		}
		req.IsAvailable = &b
	} else if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.IsAvailable == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}
	d, err := h.svc.SetAvailability(c.Request().Context(), auth.IdentityFrom(c), id, *req.IsAvailable)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), auth.IdentityFrom(c), id); err != nil {
		return apierr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
