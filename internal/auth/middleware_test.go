package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/mango3-e2e/internal/db"
)

const (
	testLoginURL = "http://accounts.mango3.local/login"
	testHomeURL  = "http://mango3.local/"
)

type middlewareFixture struct {
	mw       *Middleware
	sessions *SessionService
	users    *UserService
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()
	users, store, _ := newTestUserService(t)
	sessions := NewSessionService(store, time.Hour)
	return &middlewareFixture{
		mw:       NewMiddleware(sessions, users, testLoginURL, testHomeURL),
		sessions: sessions,
		users:    users,
	}
}

func (f *middlewareFixture) requestAs(t *testing.T, user *db.User) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "http://admin.mango3.local/", nil)
	if user != nil {
		id, _, err := f.sessions.Create(context.Background(), user.ID)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: id})
	}
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok " + GetUser(r.Context()).Username))
	})
}

func TestRequireAdmin_Redirects(t *testing.T) {
	f := newMiddlewareFixture(t)
	ctx := context.Background()
	user, err := f.users.Register(ctx, validRegistration())
	require.NoError(t, err)
	admin, err := f.users.EnsureAdmin(ctx, "admin", "admin@mango3.local", "admin-password")
	require.NoError(t, err)

	handler := f.mw.OptionalAuth(f.mw.RequireAdmin(okHandler()))

	tests := []struct {
		name     string
		user     *db.User
		status   int
		location string
	}{
		{name: "anonymous goes to login", user: nil, status: http.StatusSeeOther, location: testLoginURL},
		{name: "non-admin goes home", user: user, status: http.StatusSeeOther, location: testHomeURL},
		{name: "admin passes", user: admin, status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, f.requestAs(t, tt.user))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
		})
	}
}

func TestRequireUser_RedirectsAnonymousAndStaleSessions(t *testing.T) {
	f := newMiddlewareFixture(t)
	handler := f.mw.OptionalAuth(f.mw.RequireUser(okHandler()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://my-account.mango3.local/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "stale-session"})
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, testLoginURL, rec.Header().Get("Location"))

	user, err := f.users.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, f.requestAs(t, user))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok tester", rec.Body.String())
}

func TestRequireNoUser_SendsSignedInVisitorsHome(t *testing.T) {
	f := newMiddlewareFixture(t)
	user, err := f.users.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	handler := f.mw.OptionalAuth(f.mw.RequireNoUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, f.requestAs(t, user))
	assert.Equal(t, testHomeURL, rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, f.requestAs(t, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
