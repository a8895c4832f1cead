package statistics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/phc/phc/internal/domain/program"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/statistics/monthly", h.Monthly)
	api.GET("/statistics/yearly", h.Yearly)
	api.GET("/statistics/controlled", h.Controlled)
	api.POST("/statistics/rebuild", h.Rebuild)
}

func (h *Handler) Monthly(c echo.Context) error {
	b, err := bucketFromQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	entry, err := h.svc.MonthlyStats(c.Request().Context(), b)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) Yearly(c echo.Context) error {
	clinicID, disease, year, err := scopeFromQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	report, err := h.svc.YearlyReport(c.Request().Context(), clinicID, disease, year)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Controlled(c echo.Context) error {
	clinicID, disease, year, err := scopeFromQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	report, err := h.svc.ControlledReport(c.Request().Context(), clinicID, disease, year)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

// Rebuild triggers a cache rebuild. Without a disease parameter the whole
// cache is recomputed; a year parameter narrows the scope.
func (h *Handler) Rebuild(c echo.Context) error {
	ctx := c.Request().Context()
	start := time.Now()

	diseaseParam := c.QueryParam("disease")
	if diseaseParam == "" {
		if err := h.svc.RebuildAll(ctx); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "rebuilt",
			"scope":   "all",
			"elapsed": time.Since(start).String(),
		})
	}

	disease, err := program.ParseDisease(diseaseParam)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var year *int
	if yp := c.QueryParam("year"); yp != "" {
		y, err := strconv.Atoi(yp)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
		year = &y
	}

	if err := h.svc.RebuildForDisease(ctx, disease, year); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "rebuilt",
		"scope":   string(disease),
		"elapsed": time.Since(start).String(),
	})
}

func bucketFromQuery(c echo.Context) (Bucket, error) {
	clinicID, disease, year, err := scopeFromQuery(c)
	if err != nil {
		return Bucket{}, err
	}

	month, err := strconv.Atoi(c.QueryParam("month"))
	if err != nil {
		return Bucket{}, echo.NewHTTPError(http.StatusBadRequest, "month is required")
	}

	b := Bucket{ClinicID: clinicID, Disease: disease, Year: year, Month: month}
	return b, b.Validate()
}

func scopeFromQuery(c echo.Context) (uuid.UUID, program.DiseaseType, int, error) {
	clinicID, err := uuid.Parse(c.QueryParam("clinic_id"))
	if err != nil {
		return uuid.Nil, "", 0, echo.NewHTTPError(http.StatusBadRequest, "clinic_id is required")
	}

	disease, err := program.ParseDisease(c.QueryParam("disease"))
	if err != nil {
		return uuid.Nil, "", 0, err
	}

	year, err := strconv.Atoi(c.QueryParam("year"))
	if err != nil {
		return uuid.Nil, "", 0, echo.NewHTTPError(http.StatusBadRequest, "year is required")
	}

	return clinicID, disease, year, nil
}
