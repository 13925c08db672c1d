// Package auth resolves the principal of a request from a cookie session or
// a bearer token and checks its capabilities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"

	"folio/internal/database"
	"folio/internal/models"
)

const (
	sessionName = "folio-session"
	sessionUser = "username"
)

// ErrInvalidCredentials is returned when a username or password does not match.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Service provides authentication-related services.
type Service struct {
	Repo    *Repository
	Store   *sessions.CookieStore
	Enabled bool
}

// NewService creates a new authentication service. An empty session key is
// replaced by a random one, so sessions do not survive a restart.
func NewService(repo *Repository, sessionKey string, enabled bool) (*Service, error) {
	key := []byte(sessionKey)
	if sessionKey == "" {
		key = securecookie.GenerateRandomKey(32)
	}
	if len(key) < 32 {
		return nil, errors.New("session key must be at least 32 characters long")
	}

	store := sessions.NewCookieStore(key)
	store.Options.HttpOnly = true
	store.Options.Path = "/"
	store.Options.SameSite = http.SameSiteLaxMode

	return &Service{Repo: repo, Store: store, Enabled: enabled}, nil
}

// RegisterUser creates a user holding role.
func (s *Service) RegisterUser(ctx context.Context, username, password, role string) error {
	if _, ok := database.RolePermissions[role]; !ok {
		return fmt.Errorf("unknown role %q", role)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return s.Repo.CreateUser(ctx, &models.User{
		Username:     username,
		PasswordHash: string(hashedPassword),
		Roles:        []string{role},
	})
}

// Authenticate checks a username and password and returns the principal.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Principal, error) {
	user, err := s.Repo.FindUser(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.principal(ctx, user.Username)
}

func (s *Service) principal(ctx context.Context, username string) (*Principal, error) {
	perms, err := s.Repo.Permissions(ctx, username)
	if err != nil {
		return nil, err
	}
	return &Principal{Username: username, Capabilities: perms}, nil
}

// Login authenticates a user and stores it in the session.
func (s *Service) Login(w http.ResponseWriter, r *http.Request, username, password string) (*Principal, error) {
	p, err := s.Authenticate(r.Context(), username, password)
	if err != nil {
		return nil, err
	}

	session, _ := s.Store.Get(r, sessionName)
	session.Values[sessionUser] = p.Username
	session.Options.Secure = isSecure(r)
	if err := session.Save(r, w); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return p, nil
}

// Logout destroys a user's session.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := s.Store.Get(r, sessionName)
	delete(session.Values, sessionUser)
	session.Options.Secure = isSecure(r)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		slog.Error("save session", "err", err)
	}
}

// CurrentPrincipal returns the principal of the session, the anonymous
// principal when authentication is disabled, or nil.
func (s *Service) CurrentPrincipal(r *http.Request) *Principal {
	if !s.Enabled {
		return Anonymous()
	}

	session, _ := s.Store.Get(r, sessionName)
	username, ok := session.Values[sessionUser].(string)
	if !ok || username == "" {
		return nil
	}
	p, err := s.principal(r.Context(), username)
	if err != nil {
		slog.Error("resolve session principal", "username", username, "err", err)
		return nil
	}
	return p
}

// RequireLogin redirects requests without a session principal to the login
// page, remembering where they were going.
func (s *Service) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFrom(r.Context()) == nil {
			http.Redirect(w, r, "/login?return_url="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithPrincipal adds the session principal to the request context.
func (s *Service) WithPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithPrincipal(r.Context(), s.CurrentPrincipal(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Set Secure based on the request scheme or X-Forwarded-Proto so cookies
// work behind a TLS-terminating proxy.
func isSecure(r *http.Request) bool {
	return r.TLS != nil || r.URL.Scheme == "https" || r.Header.Get("X-Forwarded-Proto") == "https"
}
