package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/apartment-board/internal/handler"
)

// RegisterAPI registers the REST API. readMW wraps the GET routes (the
// response cache); writeMW wraps POST, PUT and DELETE (rate limit and cache
// purge).
func RegisterAPI(e *echo.Echo, a *handler.APIHandler, readMW, writeMW []echo.MiddlewareFunc) {
	g := e.Group("/api/apartment")
	g.GET("", a.List, readMW...)
	g.GET("/:id", a.Get, readMW...)
	g.POST("", a.Create, writeMW...)
	g.PUT("/:id", a.Update, writeMW...)
	g.DELETE("/:id", a.Delete, writeMW...)
}
