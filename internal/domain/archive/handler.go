package archive

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/archive/run", h.Run)
	api.POST("/archive/undo", h.Undo)
}

// Run archives the prior year, or a specific closed year when the year
// parameter is given.
func (h *Handler) Run(c echo.Context) error {
	ctx := c.Request().Context()

	if yp := c.QueryParam("year"); yp != "" {
		year, err := strconv.Atoi(yp)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
		res, err := h.svc.ArchiveYear(ctx, year)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, res)
	}

	res := h.svc.ArchivePriorYear(ctx)
	if res.Err() != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, res.Error)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Undo(c echo.Context) error {
	year, err := strconv.Atoi(c.QueryParam("year"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "year is required")
	}

	res, err := h.svc.UnarchiveYear(c.Request().Context(), year)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
