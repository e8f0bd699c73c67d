package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kuitang/mango3-e2e/internal/db"
)

// ErrSessionNotFound means the request carries no live session.
var ErrSessionNotFound = errors.New("session not found")

const (
	DefaultSessionDuration = 30 * 24 * time.Hour
	SessionCookieName      = "_mango3_session"

	sessionIDBytes = 32
)

// CookieConfig scopes the session cookie. Domain is the parent domain, so
// one login covers every subdomain origin.
type CookieConfig struct {
	Domain string
	Secure bool
}

// SessionService issues, checks and ends login sessions stored in the
// database, and keeps the session cookie in step with them.
type SessionService struct {
	db     *db.DB
	ttl    time.Duration
	clock  Clock
	cookie CookieConfig
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithCookie scopes the cookies written by Start and End.
func WithCookie(cfg CookieConfig) SessionOption {
	return func(s *SessionService) { s.cookie = cfg }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) SessionOption {
	return func(s *SessionService) { s.clock = c }
}

// NewSessionService builds a service whose sessions live for ttl, or
// DefaultSessionDuration when ttl is not positive.
func NewSessionService(store *db.DB, ttl time.Duration, opts ...SessionOption) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionDuration
	}
	s := &SessionService{db: store, ttl: ttl, clock: realClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Duration is the lifetime of new sessions.
func (s *SessionService) Duration() time.Duration {
	return s.ttl
}

// Create stores a new session for userID.
func (s *SessionService) Create(ctx context.Context, userID string) (id string, expiresAt time.Time, err error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate session id: %w", err)
	}
	id = base64.RawURLEncoding.EncodeToString(buf)

	now := s.clock.Now()
	expiresAt = now.Add(s.ttl)
	if err := s.db.CreateSession(ctx, db.Session{
		SessionID: id,
		UserID:    userID,
		CreatedAt: now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}); err != nil {
		return "", time.Time{}, fmt.Errorf("store session: %w", err)
	}
	return id, expiresAt, nil
}

// Start creates a session for userID and sets its cookie on w.
func (s *SessionService) Start(ctx context.Context, w http.ResponseWriter, userID string) error {
	id, expiresAt, err := s.Create(ctx, userID)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.newCookie(id, expiresAt))
	return nil
}

// End deletes the session r carries, if any, and expires the cookie. The
// cookie is expired even when the delete fails.
func (s *SessionService) End(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	expired := s.newCookie("", time.Time{})
	expired.MaxAge = -1
	http.SetCookie(w, expired)

	id, err := SessionIDFromRequest(r)
	if err != nil {
		return nil
	}
	return s.Delete(ctx, id)
}

func (s *SessionService) newCookie(value string, expiresAt time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Domain:   s.cookie.Domain,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !expiresAt.IsZero() {
		c.Expires = expiresAt.UTC()
	}
	return c
}

// Validate returns the user ID of a live session, or ErrSessionNotFound.
func (s *SessionService) Validate(ctx context.Context, id string) (string, error) {
	session, err := s.db.GetValidSession(ctx, id, s.clock.Now())
	switch {
	case errors.Is(err, db.ErrNotFound):
		return "", ErrSessionNotFound
	case err != nil:
		return "", fmt.Errorf("get session: %w", err)
	}
	return session.UserID, nil
}

// Delete removes one session.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if err := s.db.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Cleanup removes expired sessions and returns how many went.
func (s *SessionService) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.db.DeleteExpiredSessions(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}

// SessionIDFromRequest returns the session cookie value of r, or
// ErrSessionNotFound.
func SessionIDFromRequest(r *http.Request) (string, error) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return "", ErrSessionNotFound
	}
	return c.Value, nil
}
