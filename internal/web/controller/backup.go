package controller

import (
	"errors"
	"html/template"
	"net/http"

	"folio/internal/backup"
	"folio/internal/web/viewmodels"
	"folio/internal/wikidb"
)

// Backup provides the on-demand backup handler.
type Backup struct {
	Service     *backup.Service
	Pages       wikidb.Service
	Templates   map[string]*template.Template
	AuthEnabled bool
}

// Register registers the backup routes
func (b *Backup) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /action/backup", b.backup)
}

func (b *Backup) backup(w http.ResponseWriter, r *http.Request) {
	url, err := b.Service.Run(r.Context())
	if err != nil {
		if errors.Is(err, backup.ErrUpstream) {
			http.Error(w, "Backup failed: "+err.Error(), http.StatusBadGateway)
			return
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	names, err := b.Pages.FetchAllPages(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data := viewmodels.New("Wiki home", principal(r), b.AuthEnabled)
	data.Pages = names
	data.BackupEnabled = true
	data.BackupURL = url
	renderTemplate(w, b.Templates, "index.html", http.StatusOK, data)
}
