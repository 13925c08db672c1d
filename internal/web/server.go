package web

import (
	"context"
	"html/template"
	"net/http"
	"net/netip"

	"folio/internal/auth"
	"folio/internal/backup"
	"folio/internal/relay"
	"folio/internal/render"
	"folio/internal/wikidb"
)

// Options are the dependencies of the web tier.
type Options struct {
	Pages    wikidb.Service
	Renderer render.Renderer
	Style    string
	Relay    relay.Relay
	Auth     *auth.Service
	Tokens   *auth.TokenService
	// Bridge serves /eventbus when set.
	Bridge http.Handler
	// Backup enables /action/backup when set.
	Backup *backup.Service
	// RateLimit is the per-client request rate of the credential endpoints.
	RateLimit float64
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies []netip.Prefix
}

// Server holds the dependencies for the web server.
type Server struct {
	opts      Options
	templates map[string]*template.Template
	handler   http.Handler
}

// NewServer creates a new server with the given dependencies. Background
// work started for the server ends with ctx.
func NewServer(ctx context.Context, opts Options) (*Server, error) {
	templates, err := ParseTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{opts: opts, templates: templates}
	s.handler = s.routes(ctx)
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
