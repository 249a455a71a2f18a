package router // package router defines how HTTP routes are registered

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/apartment-board/internal/handler"
	"github.com/iliyamo/apartment-board/internal/metrics"
)

// RegisterRoutes registers the operational endpoints: the health check and
// the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, rec *metrics.Recorder) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(rec.Handler()))
}
