package controller

import (
	"bytes"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"folio/internal/auth"
)

// EmptyPageMarkdown is shown for pages that do not exist yet.
const EmptyPageMarkdown = "# A new page\n\nFeel-free to write in Markdown!\n"

func renderTemplate(w http.ResponseWriter, templates map[string]*template.Template, name string, status int, data any) {
	tmpl, ok := templates[name]
	if !ok {
		slog.Error("missing template", "name", name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		slog.Error("render template", "name", name, "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}

func pagePath(name string) string {
	return "/wiki/" + url.PathEscape(name)
}

func principal(r *http.Request) *auth.Principal {
	return auth.PrincipalFrom(r.Context())
}

// forbidden rejects an HTML request whose principal lacks capability.
func forbidden(w http.ResponseWriter, r *http.Request, capability string) bool {
	if principal(r).Can(capability) {
		return false
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
	return true
}

func apiResponse(w http.ResponseWriter, status int, field string, data any) {
	body := map[string]any{"success": true}
	if field != "" && data != nil {
		body[field] = data
	}
	writeJSON(w, status, body)
}

func apiFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("write json response", "err", err)
	}
}
