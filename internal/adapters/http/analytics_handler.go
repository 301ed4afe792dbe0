package http

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/pulse/internal/domain/analytics"
	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/infrastructure/logger"
	"github.com/taskmaster/pulse/internal/ports"
)

// AnalyticsHandler serves the per-user reports
type AnalyticsHandler struct {
	analyticsService ports.AnalyticsService
	logger           *logger.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analyticsService ports.AnalyticsService, logger *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		logger:           logger.WithComponent("analytics_handler"),
	}
}

// respond renders a report or hands its error to the error handler.
func respond(c echo.Context) func(interface{}, error) error {
	return func(result interface{}, err error) error {
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, result)
	}
}

func (h *AnalyticsHandler) Dashboard(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	return respond(c)(h.analyticsService.Dashboard(c.Request().Context(), userID))
}

// CompletionRate accepts period=week|month|year, default week
func (h *AnalyticsHandler) CompletionRate(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	return respond(c)(h.analyticsService.CompletionRate(c.Request().Context(), userID, c.QueryParam("period")))
}

func (h *AnalyticsHandler) Categories(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	return respond(c)(h.analyticsService.CategoryBreakdown(c.Request().Context(), userID))
}

func (h *AnalyticsHandler) Impact(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	return respond(c)(h.analyticsService.ImpactAnalysis(c.Request().Context(), userID))
}

func (h *AnalyticsHandler) Priorities(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	return respond(c)(h.analyticsService.PriorityDistribution(c.Request().Context(), userID))
}

func (h *AnalyticsHandler) Timeline(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	return respond(c)(h.analyticsService.Timeline(c.Request().Context(), userID))
}

func (h *AnalyticsHandler) Performance(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	return respond(c)(h.analyticsService.Performance(c.Request().Context(), userID))
}

func (h *AnalyticsHandler) Productivity(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	return respond(c)(h.analyticsService.Productivity(c.Request().Context(), userID))
}

func (h *AnalyticsHandler) Risks(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	return respond(c)(h.analyticsService.Risks(c.Request().Context(), userID))
}

func (h *AnalyticsHandler) OptimizationTips(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	return respond(c)(h.analyticsService.OptimizationTips(c.Request().Context(), userID))
}

func (h *AnalyticsHandler) Recommendations(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}
	return respond(c)(h.analyticsService.Recommendations(c.Request().Context(), userID))
}

// Export streams every task of the caller as json (default) or csv
func (h *AnalyticsHandler) Export(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return err
	}

	format := c.QueryParam("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		return entities.NewValidationError(entities.FieldError{
			Field: "format", Rule: "oneof", Message: "format must be one of: json csv",
		})
	}

	export, err := h.analyticsService.Export(c.Request().Context(), userID)
	if err != nil {
		return err
	}

	h.logger.Debugw("Rendering export", "user_id", userID, "format", format, "tasks", len(export.Tasks))
	if format == "json" {
		return c.JSON(http.StatusOK, export)
	}
	return writeCSV(c, export)
}

func writeCSV(c echo.Context, export *analytics.Export) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", export.Filename("csv")))
	res.WriteHeader(http.StatusOK)

	w := csv.NewWriter(res)
	if err := w.Write(analytics.ExportHeader); err != nil {
		return err
	}
	if err := w.WriteAll(export.Rows()); err != nil {
		return err
	}
	return w.Error()
}
