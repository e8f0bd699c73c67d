package site

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kuitang/mango3-e2e/internal/db"
	"github.com/kuitang/mango3-e2e/internal/errs"
	"github.com/kuitang/mango3-e2e/internal/s3client"
	"github.com/kuitang/mango3-e2e/internal/urlutil"
	"github.com/kuitang/mango3-e2e/internal/web"
)

// websiteRoutes serves <subdomain>.<domain> for user websites.
func (s *Server) websiteRoutes() http.Handler {
	mux := s.newMux()
	mux.Handle("GET /{$}", s.withWebsite(s.handleWebsiteHome))
	mux.Handle("GET /posts/{id}", s.withWebsite(s.handleWebsitePost))
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) { s.notFound(w, r, "Page") })
	return s.authMW.OptionalAuth(mux)
}

func (s *Server) withWebsite(h func(http.ResponseWriter, *http.Request, *db.Website)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subdomain, ok := urlutil.SubdomainOf(r.Host, s.topo.Domain)
		if !ok || subdomain == "" || strings.Contains(subdomain, ".") {
			s.notFound(w, r, "Website")
			return
		}
		website, err := s.db.GetWebsiteBySubdomain(r.Context(), subdomain)
		if errors.Is(err, db.ErrNotFound) {
			s.notFound(w, r, "Website")
			return
		}
		if err != nil {
			s.fail(w, r, errs.Wrap(errs.Internal, "load website", err))
			return
		}
		h(w, r, website)
	})
}

func (s *Server) handleWebsiteHome(w http.ResponseWriter, r *http.Request, website *db.Website) {
	posts, err := s.db.ListPostsByWebsite(r.Context(), website.ID)
	if err != nil {
		s.fail(w, r, errs.Wrap(errs.Internal, "list posts", err))
		return
	}
	view := web.PublicWebsiteView{Website: website, URL: s.topo.WebsiteURL(website.Subdomain).String()}
	for _, p := range posts {
		view.Posts = append(view.Posts, s.postView(website, p))
	}
	data := s.page(r, website.Name)
	data.Data = view
	s.render(w, r, http.StatusOK, web.PageWebsiteHome, data)
}

func (s *Server) handleWebsitePost(w http.ResponseWriter, r *http.Request, website *db.Website) {
	post, err := s.db.GetPost(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) || (err == nil && post.WebsiteID != website.ID) {
		s.notFound(w, r, "Post")
		return
	}
	if err != nil {
		s.fail(w, r, errs.Wrap(errs.Internal, "load post", err))
		return
	}
	pv := s.postView(website, post)
	data := s.page(r, post.Title)
	data.Data = web.PublicWebsiteView{
		Website: website,
		URL:     s.topo.WebsiteURL(website.Subdomain).String(),
		Post:    &pv,
	}
	s.render(w, r, http.StatusOK, web.PageWebsitePost, data)
}

// uploadsRoutes serves stored images from the bucket.
func (s *Server) uploadsRoutes() http.Handler {
	mux := s.newMux()
	mux.HandleFunc("GET /images/{path...}", s.handleImage)
	return mux
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	rest := r.PathValue("path")
	if rest == "" || strings.Contains(rest, "..") {
		http.NotFound(w, r)
		return
	}
	obj, err := s.s3.GetObject(r.Context(), "images/"+rest)
	if errors.Is(err, s3client.ErrObjectNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.fail(w, r, errs.Wrap(errs.Unavailable, "load image", err))
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Write(obj.Data)
}
