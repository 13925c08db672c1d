package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"folio/internal/auth"
	"folio/internal/bridge"
	"folio/internal/relay"
	"folio/internal/render"
	"folio/internal/wikidb"
)

// API provides the JSON page handlers under /api/pages.
type API struct {
	Pages    wikidb.Service
	Renderer render.Renderer
	Relay    relay.Relay
}

type apiPageItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type apiPage struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

// Pointers tell a missing key from an empty value.
type pageDocument struct {
	Name     *string `json:"name"`
	Markdown *string `json:"markdown"`
	Client   string  `json:"client"`
}

// Register registers the API routes
func (c *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/pages", c.list)
	mux.HandleFunc("GET /api/pages/{id}", c.get)
	mux.HandleFunc("POST /api/pages", c.create)
	mux.HandleFunc("PUT /api/pages/{id}", c.update)
	mux.HandleFunc("DELETE /api/pages/{id}", c.delete)
}

func (c *API) list(w http.ResponseWriter, r *http.Request) {
	pages, err := c.Pages.FetchAllPagesData(r.Context())
	if err != nil {
		apiFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]apiPageItem, 0, len(pages))
	for _, p := range pages {
		out = append(out, apiPageItem{ID: p.ID, Name: p.Name})
	}
	apiResponse(w, http.StatusOK, "pages", out)
}

func (c *API) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		apiFailure(w, http.StatusBadRequest, "Invalid page id")
		return
	}

	page, found, err := c.Pages.FetchPageByID(r.Context(), id)
	if err != nil {
		apiFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		apiFailure(w, http.StatusNotFound, fmt.Sprintf("There is no page with ID %d", id))
		return
	}

	html, err := c.Renderer.Render(page.Content)
	if err != nil {
		apiFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	apiResponse(w, http.StatusOK, "page", apiPage{ID: page.ID, Name: page.Name, Markdown: page.Content, HTML: html})
}

func (c *API) create(w http.ResponseWriter, r *http.Request) {
	if !c.allowed(w, r, auth.CapCreate) {
		return
	}
	doc, ok := decodePage(w, r, true)
	if !ok {
		return
	}

	if _, err := c.Pages.CreatePage(r.Context(), *doc.Name, *doc.Markdown); err != nil {
		if errors.Is(err, wikidb.ErrPageExists) {
			apiFailure(w, http.StatusConflict, fmt.Sprintf("A page named %q already exists", *doc.Name))
			return
		}
		apiFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	apiResponse(w, http.StatusCreated, "", nil)
}

func (c *API) update(w http.ResponseWriter, r *http.Request) {
	if !c.allowed(w, r, auth.CapUpdate) {
		return
	}
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		apiFailure(w, http.StatusBadRequest, "Invalid page id")
		return
	}
	doc, ok := decodePage(w, r, false)
	if !ok {
		return
	}

	if err := c.Pages.SavePage(r.Context(), id, *doc.Markdown); err != nil {
		apiFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := bridge.PublishPageSaved(r.Context(), c.Relay, id, doc.Client); err != nil {
		slog.Warn("publish page saved", "id", id, "err", err)
	}
	apiResponse(w, http.StatusOK, "", nil)
}

func (c *API) delete(w http.ResponseWriter, r *http.Request) {
	if !c.allowed(w, r, auth.CapDelete) {
		return
	}
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		apiFailure(w, http.StatusBadRequest, "Invalid page id")
		return
	}

	if err := c.Pages.DeletePage(r.Context(), id); err != nil {
		apiFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	apiResponse(w, http.StatusOK, "", nil)
}

// allowed answers 401 when the token principal lacks capability.
func (c *API) allowed(w http.ResponseWriter, r *http.Request, capability string) bool {
	if principal(r).Can(capability) {
		return true
	}
	apiFailure(w, http.StatusUnauthorized, "Not authorized to "+capability+" pages")
	return false
}

func decodePage(w http.ResponseWriter, r *http.Request, needName bool) (pageDocument, bool) {
	var doc pageDocument
	err := json.NewDecoder(r.Body).Decode(&doc)
	if err != nil || doc.Markdown == nil || (needName && doc.Name == nil) {
		slog.Error("bad page JSON payload", "remote", r.RemoteAddr, "err", err)
		apiFailure(w, http.StatusBadRequest, "Bad request payload")
		return doc, false
	}
	return doc, true
}
