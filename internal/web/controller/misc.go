package controller

import (
	"io"
	"log/slog"
	"net/http"

	"folio/internal/render"
)

const maxPreviewBody = 1 << 20

// Misc provides miscellaneous handlers
type Misc struct {
	Renderer render.Renderer
	Style    string
}

// Register registers the misc routes
func (m *Misc) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /app/markdown", m.preview)
	mux.HandleFunc("GET /static/chroma.css", m.highlightCSS)
}

func (m *Misc) preview(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPreviewBody))
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	html, err := m.Renderer.Render(string(body))
	if err != nil {
		slog.Error("render preview", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(html))
}

func (m *Misc) highlightCSS(w http.ResponseWriter, r *http.Request) {
	css, err := render.StyleCSS(m.Style)
	if err != nil {
		slog.Error("highlight stylesheet", "style", m.Style, "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/css")
	_, _ = w.Write([]byte(css))
}
