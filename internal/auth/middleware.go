package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/kuitang/mango3-e2e/internal/db"
	"github.com/kuitang/mango3-e2e/internal/obs"
)

type contextKey string

const userKey contextKey = "user"

// Middleware resolves the session cookie into the current user and guards
// routes that require one.
type Middleware struct {
	sessionService *SessionService
	userService    *UserService
	loginURL       string
	homeURL        string
}

// NewMiddleware creates the auth middleware. Guards redirect to loginURL
// (unauthenticated) or homeURL (authenticated but not allowed).
func NewMiddleware(sessionService *SessionService, userService *UserService, loginURL, homeURL string) *Middleware {
	return &Middleware{
		sessionService: sessionService,
		userService:    userService,
		loginURL:       loginURL,
		homeURL:        homeURL,
	}
}

// OptionalAuth adds the user to the context when the request carries a live
// session of an enabled account, and continues either way.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := SessionIDFromRequest(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := m.sessionService.Validate(r.Context(), sessionID)
		if err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				obs.From(r.Context()).Warn("session_validate_failed", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		user, err := m.userService.Get(r.Context(), userID)
		if err != nil || user.IsDisabled() {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireUser redirects unauthenticated requests to the login page.
// Wrap with OptionalAuth first.
func (m *Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUser(r.Context()) == nil {
			http.Redirect(w, r, m.loginURL, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin redirects unauthenticated requests to the login page and
// authenticated non-admins to the home page.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r.Context())
		switch {
		case user == nil:
			http.Redirect(w, r, m.loginURL, http.StatusSeeOther)
		case !user.IsAdmin():
			obs.From(r.Context()).Info("admin_denied", "user_id", user.ID)
			http.Redirect(w, r, m.homeURL, http.StatusSeeOther)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// RequireNoUser sends signed-in visitors of login/register to the home page.
func (m *Middleware) RequireNoUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUser(r.Context()) != nil {
			http.Redirect(w, r, m.homeURL, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser stores the current user in ctx.
func WithUser(ctx context.Context, user *db.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUser returns the current user, or nil.
func GetUser(ctx context.Context) *db.User {
	user, _ := ctx.Value(userKey).(*db.User)
	return user
}

// IsAuthenticated checks if the context has an authenticated user.
func IsAuthenticated(ctx context.Context) bool {
	return GetUser(ctx) != nil
}
