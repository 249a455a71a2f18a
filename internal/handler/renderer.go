package handler

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/apartment-board/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{"list.html", "view.html", "form.html", "error.html"}

// Renderer renders the HTML pages. Each page is parsed together with the
// shared layout and executed through it.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses the embedded page templates.
func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"date":     func(t time.Time) string { return t.Format(model.DateLayout) },
		"datetime": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
		"add":      func(a, b int) int { return a + b },
		"sub":      func(a, b int) int { return a - b },
	}
	r := &Renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, p := range pages {
		t, err := template.New(p).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+p)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		r.pages[p] = t
	}
	return r, nil
}

// Render implements echo.Renderer.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}
