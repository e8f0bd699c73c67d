package web

import (
	"github.com/kuitang/mango3-e2e/internal/auth"
	"github.com/kuitang/mango3-e2e/internal/db"
)

// Page template names.
const (
	PageHome          = "home/index.html"
	PageSearch        = "home/search.html"
	PageLogin         = "accounts/login.html"
	PageRegister      = "accounts/register.html"
	PageAdminIndex    = "admin/index.html"
	PageAdminUsers    = "admin/users.html"
	PageMyAccount     = "myaccount/index.html"
	PageStudioIndex   = "studio/index.html"
	PageNewWebsite    = "studio/new_website.html"
	PageStudioWebsite = "studio/website.html"
	PageWebsitePosts  = "studio/posts.html"
	PageNewPost       = "studio/new_post.html"
	PageWebsiteHome   = "websites/index.html"
	PageWebsitePost   = "websites/post.html"
	PageError         = "errors/error.html"
	PageSuccess       = "success.html"
	SearchTabPosts    = "posts"
	SearchTabWebsites = "websites"
)

// Hit is one search result row.
type Hit struct {
	Title   string
	URL     string
	Snippet string
}

// SearchView backs home/search.html.
type SearchView struct {
	Query       string
	Tab         string
	PostsURL    string
	WebsitesURL string
	Hits        []Hit
}

// RegisterView backs accounts/register.html.
type RegisterView struct {
	Countries []auth.Country
}

// SuccessView backs success.html: a confirmation with an Ok link.
type SuccessView struct {
	Message string
	Next    string
}

// WebsiteView is a website plus its public and studio URLs.
type WebsiteView struct {
	Website    *db.Website
	URL        string
	ShowURL    string
	PostsURL   string
	NewPostURL string
}

// PostView is a post plus its URLs.
type PostView struct {
	Post         *db.Post
	URL          string
	CoverURL     string
	AttachedURLs []string
}

// StudioView backs studio/index.html.
type StudioView struct {
	Websites      []WebsiteView
	NewWebsiteURL string
}

// WebsitePostsView backs the studio website, posts and new post pages.
type WebsitePostsView struct {
	Website WebsiteView
	Posts   []PostView
}

// PublicWebsiteView backs websites/index.html and websites/post.html.
type PublicWebsiteView struct {
	Website *db.Website
	URL     string
	Posts   []PostView
	Post    *PostView
}

// UsersView backs admin/users.html.
type UsersView struct {
	Users     []*db.User
	CurrentID string
}
