package site

import (
	"errors"
	"net/http"

	"github.com/kuitang/mango3-e2e/internal/auth"
	"github.com/kuitang/mango3-e2e/internal/errs"
	"github.com/kuitang/mango3-e2e/internal/obs"
	"github.com/kuitang/mango3-e2e/internal/web"
)

func (s *Server) adminRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleAdminIndex)
	mux.HandleFunc("GET /users", s.handleAdminUsers)
	mux.HandleFunc("POST /users/{id}/disable", s.handleSetDisabled(true))
	mux.HandleFunc("POST /users/{id}/enable", s.handleSetDisabled(false))
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) { s.notFound(w, r, "Page") })

	root := s.newMux()
	root.Handle("/", s.authMW.OptionalAuth(s.authMW.RequireAdmin(mux)))
	return root
}

func (s *Server) handleAdminIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, web.PageAdminIndex, s.page(r, "Admin"))
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.fail(w, r, errs.Wrap(errs.Internal, "list users", err))
		return
	}
	data := s.page(r, "Users")
	data.Data = web.UsersView{Users: users, CurrentID: data.User.ID}
	s.render(w, r, http.StatusOK, web.PageAdminUsers, data)
}

func (s *Server) handleSetDisabled(disabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if current := auth.GetUser(r.Context()); current != nil && current.ID == id {
			s.fail(w, r, errs.New(errs.FailedPrecondition, "You cannot disable your own account"))
			return
		}
		err := s.users.SetDisabled(r.Context(), id, disabled)
		if errors.Is(err, auth.ErrUserNotFound) {
			s.notFound(w, r, "User")
			return
		}
		if err != nil {
			s.fail(w, r, errs.Wrap(errs.Internal, "update user", err))
			return
		}
		obs.From(r.Context()).Info("user_disabled_changed", "user_id", id, "disabled", disabled)
		http.Redirect(w, r, "/users", http.StatusSeeOther)
	}
}
