package web

import (
	"context"
	"net/http"

	"folio/internal/web/controller"
	"folio/internal/web/middleware"
)

func (s *Server) routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", StaticFileServer()))
	mux.Handle("GET /app/", http.StripPrefix("/app/", AppFileServer()))

	miscController := controller.Misc{Renderer: s.opts.Renderer, Style: s.opts.Style}
	miscController.Register(mux)

	if s.opts.Bridge != nil {
		mux.Handle("GET /eventbus", s.opts.Bridge)
	}

	limiter := middleware.NewRateLimiter(ctx, s.opts.RateLimit, burstFor(s.opts.RateLimit), s.opts.TrustedProxies)
	authController := controller.Auth{
		AuthService: s.opts.Auth,
		Tokens:      s.opts.Tokens,
		Templates:   s.templates,
		Limit:       limiter.Limit,
	}
	authController.Register(mux)

	apiMux := http.NewServeMux()
	apiController := controller.API{Pages: s.opts.Pages, Renderer: s.opts.Renderer, Relay: s.opts.Relay}
	apiController.Register(apiMux)
	bearer := middleware.Bearer(s.opts.Tokens, s.opts.Auth.Enabled)(apiMux)
	mux.Handle("/api/pages", bearer)
	mux.Handle("/api/pages/", bearer)

	wikiController := controller.Wiki{
		Pages:         s.opts.Pages,
		Renderer:      s.opts.Renderer,
		Relay:         s.opts.Relay,
		Templates:     s.templates,
		AuthEnabled:   s.opts.Auth.Enabled,
		BackupEnabled: s.opts.Backup != nil,
	}
	authenticatedMux := http.NewServeMux()
	wikiController.Register(authenticatedMux)
	if s.opts.Backup != nil {
		backupController := controller.Backup{
			Service:     s.opts.Backup,
			Pages:       s.opts.Pages,
			Templates:   s.templates,
			AuthEnabled: s.opts.Auth.Enabled,
		}
		backupController.Register(authenticatedMux)
	}

	withPrincipal := middleware.WithPrincipal(s.opts.Auth)
	mux.Handle("GET /{$}", withPrincipal(http.HandlerFunc(wikiController.Index)))
	mux.Handle("/", withPrincipal(middleware.Auth(s.opts.Auth)(authenticatedMux)))

	return middleware.Logging(mux)
}

func burstFor(perSecond float64) int {
	if perSecond < 1 {
		return 1
	}
	return int(perSecond) * 2
}
