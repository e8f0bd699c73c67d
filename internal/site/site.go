// Package site is an in-process stand-in for the mango3 application: one
// HTTP handler that serves every origin of a topology (home, accounts, admin,
// my-account, studio, uploads and user websites) by dispatching on the Host
// header. Every page carries the .loading-overlay readiness signal.
package site

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/mango3-e2e/internal/auth"
	"github.com/kuitang/mango3-e2e/internal/db"
	"github.com/kuitang/mango3-e2e/internal/email"
	"github.com/kuitang/mango3-e2e/internal/errs"
	"github.com/kuitang/mango3-e2e/internal/obs"
	"github.com/kuitang/mango3-e2e/internal/ratelimit"
	"github.com/kuitang/mango3-e2e/internal/s3client"
	"github.com/kuitang/mango3-e2e/internal/topology"
	"github.com/kuitang/mango3-e2e/internal/web"
)

// Options configures a Server. Topology, DB and S3 are required.
type Options struct {
	Topology        *topology.Topology
	DB              *db.DB
	S3              *s3client.Client
	Email           email.EmailService
	Hasher          auth.PasswordHasher
	SessionDuration time.Duration
	OverlayDelay    time.Duration
	LoginRateLimit  ratelimit.Config
}

// Server serves every origin of the topology.
type Server struct {
	topo     *topology.Topology
	db       *db.DB
	s3       *s3client.Client
	email    email.EmailService
	users    *auth.UserService
	sessions *auth.SessionService
	authMW   *auth.Middleware
	renderer *web.Renderer
	limiter  *ratelimit.RateLimiter
	links    web.Links
	overlay  time.Duration

	origins map[string]http.Handler
	handler http.Handler
}

// New wires the services and routes.
func New(opts Options) (*Server, error) {
	if opts.Topology == nil || opts.DB == nil || opts.S3 == nil {
		return nil, errs.New(errs.InvalidArgument, "site: topology, database and S3 client are required")
	}
	if opts.Hasher == nil {
		opts.Hasher = auth.Argon2Hasher{}
	}
	if opts.Email == nil {
		opts.Email = email.NewMockEmailService()
	}
	if opts.LoginRateLimit.RPS <= 0 {
		opts.LoginRateLimit = ratelimit.DefaultConfig
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("site: %w", err)
	}

	topo := opts.Topology
	loginURL := topo.LoginURL().String()
	homeURL := topo.HomeURL().String()

	sessions := auth.NewSessionService(opts.DB, opts.SessionDuration,
		auth.WithCookie(auth.CookieConfig{Domain: topo.Domain, Secure: topo.Secure}))
	s := &Server{
		topo:     topo,
		db:       opts.DB,
		s3:       opts.S3.WithPublicURL(strings.TrimSuffix(topo.URL(topology.Uploads, "/").String(), "/")),
		email:    opts.Email,
		sessions: sessions,
		renderer: renderer,
		limiter:  ratelimit.NewRateLimiter(opts.LoginRateLimit),
		overlay:  opts.OverlayDelay,
		links: web.Links{
			Home:      homeURL,
			Login:     loginURL,
			Register:  topo.RegisterURL().String(),
			Logout:    topo.URL(topology.Accounts, "/logout").String(),
			MyAccount: topo.URL(topology.MyAccount, "/").String(),
			Studio:    topo.URL(topology.Studio, "/").String(),
			Admin:     topo.URL(topology.Admin, "/").String(),
		},
	}
	s.users = auth.NewUserService(opts.DB, opts.Hasher, opts.Email, loginURL)
	s.authMW = auth.NewMiddleware(s.sessions, s.users, loginURL, homeURL)

	s.origins = map[string]http.Handler{
		topology.Home:      s.homeRoutes(),
		topology.Accounts:  s.accountsRoutes(),
		topology.Admin:     s.adminRoutes(),
		topology.MyAccount: s.myAccountRoutes(),
		topology.Studio:    s.studioRoutes(),
		topology.Uploads:   s.uploadsRoutes(),
		"":                 s.websiteRoutes(),
	}

	var h http.Handler = http.HandlerFunc(s.dispatch)
	h = obs.AccessLogMiddleware("site", h)
	h = obs.RequestContextMiddleware(s.originOf, h)
	s.handler = h
	return s, nil
}

// Handler returns the root handler for all origins.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Users exposes the account service for seeding.
func (s *Server) Users() *auth.UserService {
	return s.users
}

// Sessions exposes the session service.
func (s *Server) Sessions() *auth.SessionService {
	return s.sessions
}

// Topology returns the origins the server answers for.
func (s *Server) Topology() *topology.Topology {
	return s.topo
}

// Reset clears all rows, uploaded images and throttling state between test
// runs.
func (s *Server) Reset(ctx context.Context) error {
	s.limiter.Reset()
	if _, err := s.s3.DeleteAll(ctx, "images/"); err != nil {
		return err
	}
	return s.db.Reset(ctx)
}

// Close stops background work. The database and S3 client belong to the caller.
func (s *Server) Close() {
	s.limiter.Stop()
}

func (s *Server) originOf(r *http.Request) string {
	name, ok := s.topo.NameForHost(r.Host)
	switch {
	case !ok:
		return "unknown"
	case name == "":
		return "website"
	default:
		return name
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	name, ok := s.topo.NameForHost(r.Host)
	h, known := s.origins[name]
	if !ok || !known {
		obs.From(r.Context()).Warn("unknown_host", "host", r.Host)
		http.Error(w, "Unknown host", http.StatusMisdirectedRequest)
		return
	}
	h.ServeHTTP(w, r)
}

// newMux returns a mux with the health endpoint every origin serves.
func (s *Server) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *Server) page(r *http.Request, title string) *web.PageData {
	return &web.PageData{
		Title:          title,
		User:           auth.GetUser(r.Context()),
		Links:          s.links,
		OverlayDelayMS: s.overlay.Milliseconds(),
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data *web.PageData) {
	if err := s.renderer.Render(w, status, name, data); err != nil {
		obs.From(r.Context()).Error("render_failed", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) renderSuccess(w http.ResponseWriter, r *http.Request, message, next string) {
	data := s.page(r, message)
	data.Data = web.SuccessView{Message: message, Next: next}
	s.render(w, r, http.StatusOK, web.PageSuccess, data)
}

// fail renders the error page for err, using its code for the status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	message := errs.MessageOf(err)
	if status >= http.StatusInternalServerError {
		obs.From(r.Context()).Error("request_failed", "error", err)
		message = "Something went wrong"
	}
	s.renderer.RenderError(w, s.page(r, ""), status, message)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request, what string) {
	s.fail(w, r, errs.New(errs.NotFound, what+" not found"))
}

// ownedWebsite loads a website the current user owns. Others' websites are
// reported as missing.
func (s *Server) ownedWebsite(ctx context.Context, id string) (*db.Website, error) {
	user := auth.GetUser(ctx)
	website, err := s.db.GetWebsite(ctx, id)
	if errors.Is(err, db.ErrNotFound) || (err == nil && (user == nil || website.UserID != user.ID)) {
		return nil, errs.New(errs.NotFound, "Website not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load website", err)
	}
	return website, nil
}
