package site

import (
	"errors"
	"net/http"

	"github.com/kuitang/mango3-e2e/internal/auth"
	"github.com/kuitang/mango3-e2e/internal/errs"
	"github.com/kuitang/mango3-e2e/internal/obs"
	"github.com/kuitang/mango3-e2e/internal/ratelimit"
	"github.com/kuitang/mango3-e2e/internal/web"
)

// registerFields are echoed back into the form after a failed submission.
var registerFields = []string{"username", "email", "full_name", "birthdate", "country_alpha2"}

func (s *Server) accountsRoutes() http.Handler {
	throttle := ratelimit.Middleware(s.limiter, func(r *http.Request) string {
		return r.URL.Path + "|" + ratelimit.ClientIP(r)
	})
	guest := func(h http.HandlerFunc) http.Handler { return s.authMW.RequireNoUser(h) }

	mux := s.newMux()
	mux.Handle("GET /{$}", guest(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.links.Login, http.StatusSeeOther)
	}))
	mux.Handle("GET /login", guest(s.handleLoginPage))
	mux.Handle("POST /login", throttle(guest(s.handleLogin)))
	mux.Handle("GET /register", guest(s.handleRegisterPage))
	mux.Handle("POST /register", throttle(guest(s.handleRegister)))
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) { s.notFound(w, r, "Page") })
	return s.authMW.OptionalAuth(mux)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, web.PageLogin, s.page(r, "Login"))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, errs.Wrap(errs.InvalidArgument, "Invalid form data", err))
		return
	}
	login := r.PostFormValue("username_or_email")

	user, err := s.users.Authenticate(r.Context(), login, r.PostFormValue("password"))
	if err != nil {
		data := s.page(r, "Login")
		data.Form = map[string]string{"username_or_email": login}
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			data.Error = "Failed to login"
		case errors.Is(err, auth.ErrAccountDisabled):
			data.Error = "Your account is disabled"
		default:
			s.fail(w, r, errs.Wrap(errs.Internal, "authenticate", err))
			return
		}
		obs.From(r.Context()).Info("login_failed", "reason", err.Error())
		s.render(w, r, http.StatusUnauthorized, web.PageLogin, data)
		return
	}

	if err := s.startSession(w, r, user.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	obs.From(r.Context()).Info("login_succeeded", "user_id", user.ID)
	http.Redirect(w, r, s.links.Home, http.StatusSeeOther)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	data := s.page(r, "Register")
	data.Data = web.RegisterView{Countries: auth.Countries}
	s.render(w, r, http.StatusOK, web.PageRegister, data)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, errs.Wrap(errs.InvalidArgument, "Invalid form data", err))
		return
	}
	in := auth.RegisterInput{
		Username:      r.PostFormValue("username"),
		Email:         r.PostFormValue("email"),
		Password:      r.PostFormValue("password"),
		FullName:      r.PostFormValue("full_name"),
		Birthdate:     r.PostFormValue("birthdate"),
		CountryAlpha2: r.PostFormValue("country_alpha2"),
	}

	user, err := s.users.Register(r.Context(), in)
	if err != nil {
		data := s.page(r, "Register")
		data.Data = web.RegisterView{Countries: auth.Countries}
		data.Form = make(map[string]string, len(registerFields))
		for _, field := range registerFields {
			data.Form[field] = r.PostFormValue(field)
		}
		switch {
		case errors.Is(err, auth.ErrAccountExists):
			data.Error = "Failed to create user: username or email is already taken"
		case errs.Is(err, errs.InvalidArgument):
			data.Error = "Failed to create user"
			data.FieldErrors = auth.FieldErrors(err)
		default:
			s.fail(w, r, errs.Wrap(errs.Internal, "register", err))
			return
		}
		s.render(w, r, http.StatusUnprocessableEntity, web.PageRegister, data)
		return
	}

	if err := s.startSession(w, r, user.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	obs.From(r.Context()).Info("user_registered", "user_id", user.ID)
	// The new session is not in this request's context yet.
	r = r.WithContext(auth.WithUser(r.Context(), user))
	s.renderSuccess(w, r, "User created successfully", s.links.Home)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.End(r.Context(), w, r); err != nil {
		obs.From(r.Context()).Warn("logout_delete_failed", "error", err)
	}
	http.Redirect(w, r, s.links.Home, http.StatusSeeOther)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, userID string) error {
	if err := s.sessions.Start(r.Context(), w, userID); err != nil {
		return errs.Wrap(errs.Internal, "create session", err)
	}
	return nil
}
