// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/plc-visualizer/logparse/internal/parser"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	dialects DialectLister
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, dialects DialectLister) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		dialects: dialects,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	})
}

// HandleDialects lists the dialect names accepted by POST /api/parse
func (h *HealthHandlerImpl) HandleDialects(c echo.Context) error {
	names := []string{}
	if h.dialects != nil {
		names = append(names, h.dialects.Dialects()...)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"dialects": names,
		"default":  parser.DefaultDialect,
		"auto":     parser.AutoDialect,
	})
}
