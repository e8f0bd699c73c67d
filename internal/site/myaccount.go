package site

import (
	"net/http"

	"github.com/kuitang/mango3-e2e/internal/web"
)

func (s *Server) myAccountRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, web.PageMyAccount, s.page(r, "My account"))
	})
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) { s.notFound(w, r, "Page") })

	root := s.newMux()
	root.Handle("/", s.authMW.OptionalAuth(s.authMW.RequireUser(mux)))
	return root
}
