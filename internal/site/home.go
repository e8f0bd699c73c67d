package site

import (
	"net/http"
	"strings"

	"github.com/kuitang/mango3-e2e/internal/db"
	"github.com/kuitang/mango3-e2e/internal/errs"
	"github.com/kuitang/mango3-e2e/internal/web"
)

// searchLimit caps each search tab.
const searchLimit = 20

func (s *Server) homeRoutes() http.Handler {
	mux := s.newMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) { s.notFound(w, r, "Page") })
	return s.authMW.OptionalAuth(mux)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, web.PageHome, s.page(r, ""))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	tab := r.URL.Query().Get("tab")
	if tab != web.SearchTabWebsites {
		tab = web.SearchTabPosts
	}
	// Form submissions encode spaces as "+"; search URLs use %20.
	if strings.Contains(r.URL.RawQuery, "+") {
		canonical := s.topo.SearchURL(query, "")
		if tab == web.SearchTabWebsites {
			canonical = s.topo.SearchURL(query, tab)
		}
		http.Redirect(w, r, canonical.String(), http.StatusSeeOther)
		return
	}

	view := web.SearchView{
		Query:       query,
		Tab:         tab,
		PostsURL:    s.topo.SearchURL(query, "").String(),
		WebsitesURL: s.topo.SearchURL(query, web.SearchTabWebsites).String(),
	}

	var (
		results []db.SearchResult
		err     error
	)
	if tab == web.SearchTabWebsites {
		results, err = s.db.SearchWebsites(r.Context(), query, searchLimit)
	} else {
		results, err = s.db.SearchPosts(r.Context(), query, searchLimit)
	}
	if err != nil {
		s.fail(w, r, errs.Wrap(errs.Internal, "search", err))
		return
	}

	websites := make(map[string]*db.Website)
	for _, res := range results {
		website, ok := websites[res.WebsiteID]
		if !ok {
			website, err = s.db.GetWebsite(r.Context(), res.WebsiteID)
			if err != nil {
				continue
			}
			websites[res.WebsiteID] = website
		}
		hit := web.Hit{Title: res.Title, Snippet: res.Snippet}
		base := s.topo.WebsiteURL(website.Subdomain)
		if tab == web.SearchTabWebsites {
			hit.URL = base.String()
		} else {
			hit.URL = base.WithPath("/posts/" + res.ID).String()
		}
		view.Hits = append(view.Hits, hit)
	}

	data := s.page(r, "Search")
	data.Data = view
	s.render(w, r, http.StatusOK, web.PageSearch, data)
}
