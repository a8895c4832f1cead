package examination

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/phc/phc/internal/domain/program"
	"github.com/phc/phc/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/examinations/ht", h.CreateHT)
	api.GET("/examinations/ht", h.ListHT)
	api.GET("/examinations/ht/:id", h.GetHT)
	api.DELETE("/examinations/ht/:id", h.DeleteHT)

	api.POST("/examinations/dm", h.CreateDM)
	api.GET("/examinations/dm", h.ListDM)
	api.GET("/examinations/dm/:id", h.GetDM)
	api.DELETE("/examinations/dm/:id", h.DeleteDM)
}

func (h *Handler) CreateHT(c echo.Context) error {
	var e HTExamination
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateHT(c.Request().Context(), &e); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) CreateDM(c echo.Context) error {
	var e DMExamination
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateDM(c.Request().Context(), &e); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetHT(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid examination id")
	}
	e, err := h.svc.GetHT(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) GetDM(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid examination id")
	}
	e, err := h.svc.GetDM(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DeleteHT(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid examination id")
	}
	if err := h.svc.DeleteHT(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteDM(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid examination id")
	}
	if err := h.svc.DeleteDM(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListHT(c echo.Context) error {
	return h.list(c, program.DiseaseHT)
}

func (h *Handler) ListDM(c echo.Context) error {
	return h.list(c, program.DiseaseDM)
}

func (h *Handler) list(c echo.Context, disease program.DiseaseType) error {
	clinicID, err := uuid.Parse(c.QueryParam("clinic_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "clinic_id is required")
	}

	params := pagination.FromContext(c)
	visits, total, err := h.svc.ListByClinic(c.Request().Context(), disease, clinicID, params.Limit, params.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(visits, total, params.Limit, params.Offset))
}

func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, program.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "examination not found")
	case errors.Is(err, program.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
