package controller

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"folio/internal/auth"
	"folio/internal/web/viewmodels"
)

// Auth provides auth handlers
type Auth struct {
	AuthService *auth.Service
	Tokens      *auth.TokenService
	Templates   map[string]*template.Template
	// Limit wraps the credential endpoints.
	Limit func(http.Handler) http.Handler
}

// Register registers the auth routes
func (a *Auth) Register(mux *http.ServeMux) {
	limit := a.Limit
	if limit == nil {
		limit = func(h http.Handler) http.Handler { return h }
	}

	mux.HandleFunc("GET /login", a.loginGet)
	mux.Handle("POST /login-auth", limit(http.HandlerFunc(a.loginPost)))
	mux.HandleFunc("GET /logout", a.logout)
	mux.Handle("GET /api/token", limit(http.HandlerFunc(a.token)))
}

func (a *Auth) loginGet(w http.ResponseWriter, r *http.Request) {
	if !a.AuthService.Enabled {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	data := viewmodels.New("Login", nil, true)
	data.ReturnURL = safeReturnURL(r.URL.Query().Get("return_url"))
	renderTemplate(w, a.Templates, "login.html", http.StatusOK, data)
}

func (a *Auth) loginPost(w http.ResponseWriter, r *http.Request) {
	if !a.AuthService.Enabled {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	returnURL := safeReturnURL(r.FormValue("return_url"))

	if _, err := a.AuthService.Login(w, r, username, password); err != nil {
		slog.Info("login failed", "username", username, "err", err)
		data := viewmodels.New("Login", nil, true)
		data.ReturnURL = returnURL
		data.Error = "Invalid credentials"
		renderTemplate(w, a.Templates, "login.html", http.StatusUnauthorized, data)
		return
	}
	http.Redirect(w, r, returnURL, http.StatusFound)
}

func (a *Auth) logout(w http.ResponseWriter, r *http.Request) {
	if a.AuthService.Enabled {
		a.AuthService.Logout(w, r)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// token issues an API token for the credentials in the login and password
// headers.
func (a *Auth) token(w http.ResponseWriter, r *http.Request) {
	p := auth.Anonymous()
	if a.AuthService.Enabled {
		var err error
		p, err = a.AuthService.Authenticate(r.Context(), r.Header.Get("login"), r.Header.Get("password"))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	token, err := a.Tokens.Issue(p)
	if err != nil {
		slog.Error("issue token", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(token))
}

// safeReturnURL keeps redirects on this site.
func safeReturnURL(u string) string {
	if !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") || strings.HasPrefix(u, "/\\") {
		return "/"
	}
	return u
}
