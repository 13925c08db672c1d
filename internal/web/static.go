package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFiles embed.FS

// StaticFileServer serves the shared stylesheets under /static/.
func StaticFileServer() http.Handler {
	fsys, _ := fs.Sub(staticFiles, "static")
	return http.FileServer(http.FS(fsys))
}

// AppFileServer serves the single-page editor under /app/.
func AppFileServer() http.Handler {
	fsys, _ := fs.Sub(staticFiles, "static/app")
	return http.FileServer(http.FS(fsys))
}
