package controller

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"folio/internal/auth"
	"folio/internal/bridge"
	"folio/internal/models"
	"folio/internal/relay"
	"folio/internal/render"
	"folio/internal/web/viewmodels"
	"folio/internal/wikidb"
)

// Wiki provides the server-rendered page handlers.
type Wiki struct {
	Pages         wikidb.Service
	Renderer      render.Renderer
	Relay         relay.Relay
	Templates     map[string]*template.Template
	AuthEnabled   bool
	BackupEnabled bool
}

// Register registers the wiki routes
func (c *Wiki) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /wiki/{page}", c.view)
	mux.HandleFunc("POST /action/save", c.save)
	mux.HandleFunc("POST /action/create", c.create)
	mux.HandleFunc("POST /action/delete", c.delete)
	mux.HandleFunc("POST /action/diff", c.diff)
}

// Index renders the list of pages. It is registered outside the login
// guard so the home page stays reachable.
func (c *Wiki) Index(w http.ResponseWriter, r *http.Request) {
	names, err := c.Pages.FetchAllPages(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data := viewmodels.New("Wiki home", principal(r), c.AuthEnabled)
	data.Pages = names
	data.BackupEnabled = c.BackupEnabled
	renderTemplate(w, c.Templates, "index.html", http.StatusOK, data)
}

func (c *Wiki) view(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("page")
	page, found, err := c.Pages.FetchPage(r.Context(), name)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if !found {
		page = models.Page{ID: -1, Name: name, Content: EmptyPageMarkdown}
	}
	page.Name = name

	html, err := c.Renderer.Render(page.Content)
	if err != nil {
		slog.Error("render page", "page", name, "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data := viewmodels.New(name, principal(r), c.AuthEnabled)
	data.Page = page
	data.Content = template.HTML(html)
	data.NewPage = !found
	data.Timestamp = time.Now().Format(time.RFC1123)
	renderTemplate(w, c.Templates, "page.html", http.StatusOK, data)
}

func (c *Wiki) save(w http.ResponseWriter, r *http.Request) {
	if forbidden(w, r, auth.CapUpdate) {
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	markdown := r.FormValue("markdown")
	if title == "" {
		http.Error(w, "Missing page title", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if r.FormValue("newPage") == "yes" {
		if _, err := c.Pages.CreatePage(ctx, title, markdown); err != nil {
			if errors.Is(err, wikidb.ErrPageExists) {
				http.Error(w, "A page with this name already exists", http.StatusConflict)
				return
			}
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	} else {
		id, ok := parseID(r.FormValue("id"))
		if !ok {
			http.Error(w, "Invalid page id", http.StatusBadRequest)
			return
		}
		if err := c.Pages.SavePage(ctx, id, markdown); err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if err := bridge.PublishPageSaved(ctx, c.Relay, id, r.FormValue("client")); err != nil {
			slog.Warn("publish page saved", "id", id, "err", err)
		}
	}

	http.Redirect(w, r, pagePath(title), http.StatusSeeOther)
}

func (c *Wiki) create(w http.ResponseWriter, r *http.Request) {
	if forbidden(w, r, auth.CapCreate) {
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	location := "/"
	if name != "" {
		location = pagePath(name)
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (c *Wiki) delete(w http.ResponseWriter, r *http.Request) {
	if forbidden(w, r, auth.CapDelete) {
		return
	}

	id, ok := parseID(r.FormValue("id"))
	if !ok {
		http.Error(w, "Invalid page id", http.StatusBadRequest)
		return
	}
	if err := c.Pages.DeletePage(r.Context(), id); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// diff shows the changes of a draft against the stored page.
func (c *Wiki) diff(w http.ResponseWriter, r *http.Request) {
	var stored string
	if id, ok := parseID(r.FormValue("id")); ok && id >= 0 {
		page, found, err := c.Pages.FetchPageByID(r.Context(), id)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if found {
			stored = page.Content
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(render.Diff(stored, r.FormValue("markdown"))))
}
