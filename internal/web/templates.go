package web

import (
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates
var templateFiles embed.FS

// pageTemplates lists the page templates; each is parsed into its own set
// together with the layout.
var pageTemplates = []string{"index.html", "page.html", "login.html"}

// ParseTemplates builds one isolated template set per page, executed
// through "layout.html".
func ParseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template, len(pageTemplates))
	for _, name := range pageTemplates {
		t, err := template.ParseFS(templateFiles, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		templates[name] = t
	}
	return templates, nil
}
