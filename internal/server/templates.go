package server

import (
	"embed"
	"fmt"
	"html/template"

	"github.com/Sternrassler/catalog-client/pkg/debounce"
)

//go:embed templates/*.html
var templateFS embed.FS

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"debounceMillis": func() int64 { return debounce.DefaultDelay.Milliseconds() },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}
