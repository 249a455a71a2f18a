package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/apartment-board/internal/handler"
)

// RegisterWeb registers the HTML front-end. Edit and delete pages are
// reached through the links sent by email, so they carry ?secret=.
func RegisterWeb(e *echo.Echo, w *handler.WebHandler, writeMW ...echo.MiddlewareFunc) {
	e.GET("/", w.Home)
	e.GET("/apartment", w.Index)

	g := e.Group("/apartment")
	g.GET("/", w.Index)
	g.GET("/view/:id", w.View)
	g.GET("/create", w.NewForm)
	g.POST("/create", w.Create, writeMW...)
	g.GET("/edit/:id", w.EditForm)
	g.POST("/edit/:id", w.Edit, writeMW...)
	// Deletion happens on GET because the emailed link is the only entry point.
	g.GET("/delete/:id", w.Delete, writeMW...)
}
