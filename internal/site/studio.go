package site

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/kuitang/mango3-e2e/internal/auth"
	"github.com/kuitang/mango3-e2e/internal/db"
	"github.com/kuitang/mango3-e2e/internal/email"
	"github.com/kuitang/mango3-e2e/internal/errs"
	"github.com/kuitang/mango3-e2e/internal/obs"
	"github.com/kuitang/mango3-e2e/internal/s3client"
	"github.com/kuitang/mango3-e2e/internal/web"
)

// Upload limits for post images.
const (
	MaxAttachedImages  = 10
	maxPostFormBytes   = s3client.MaxImageBytes*(MaxAttachedImages+1) + db.MaxPostContentBytes
	multipartMemoryMax = 8 << 20
)

func (s *Server) studioRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleStudioIndex)
	mux.HandleFunc("GET /new-website", s.handleNewWebsitePage)
	mux.HandleFunc("POST /new-website", s.handleCreateWebsite)
	mux.HandleFunc("GET /websites/{id}", s.handleStudioWebsite)
	mux.HandleFunc("GET /websites/{id}/posts", s.handleStudioPosts)
	mux.HandleFunc("GET /websites/{id}/posts/new", s.handleNewPostPage)
	mux.HandleFunc("POST /websites/{id}/posts/new", s.handleCreatePost)
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) { s.notFound(w, r, "Page") })

	root := s.newMux()
	root.Handle("/", s.authMW.OptionalAuth(s.authMW.RequireUser(mux)))
	return root
}

func (s *Server) websiteView(w *db.Website) web.WebsiteView {
	show := "/websites/" + w.ID
	return web.WebsiteView{
		Website:    w,
		URL:        s.topo.WebsiteURL(w.Subdomain).String(),
		ShowURL:    show,
		PostsURL:   show + "/posts",
		NewPostURL: show + "/posts/new",
	}
}

func (s *Server) postView(w *db.Website, p *db.Post) web.PostView {
	v := web.PostView{
		Post: p,
		URL:  s.topo.WebsiteURL(w.Subdomain).WithPath("/posts/" + p.ID).String(),
	}
	if p.CoverImageKey != "" {
		v.CoverURL = s.s3.GetPublicURL(p.CoverImageKey)
	}
	for _, key := range p.AttachedImageKeys {
		v.AttachedURLs = append(v.AttachedURLs, s.s3.GetPublicURL(key))
	}
	return v
}

func (s *Server) handleStudioIndex(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	websites, err := s.db.ListWebsitesByUser(r.Context(), user.ID)
	if err != nil {
		s.fail(w, r, errs.Wrap(errs.Internal, "list websites", err))
		return
	}
	view := web.StudioView{NewWebsiteURL: "/new-website"}
	for _, website := range websites {
		view.Websites = append(view.Websites, s.websiteView(website))
	}
	data := s.page(r, "My websites")
	data.Data = view
	s.render(w, r, http.StatusOK, web.PageStudioIndex, data)
}

func (s *Server) handleNewWebsitePage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, web.PageNewWebsite, s.page(r, "New website"))
}

func (s *Server) handleCreateWebsite(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, errs.Wrap(errs.InvalidArgument, "Invalid form data", err))
		return
	}
	in := WebsiteInput{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Subdomain:   strings.ToLower(strings.TrimSpace(r.PostFormValue("subdomain"))),
		Description: strings.TrimSpace(r.PostFormValue("description")),
	}
	if in.Subdomain == "" {
		in.Subdomain = Slugify(in.Name)
	}

	formError := func(status int, message string, fields map[string]string) {
		data := s.page(r, "New website")
		data.Error = message
		data.FieldErrors = fields
		data.Form = map[string]string{"name": in.Name, "subdomain": in.Subdomain, "description": in.Description}
		s.render(w, r, status, web.PageNewWebsite, data)
	}

	if err := in.Validate(s.topo.Names()); err != nil {
		formError(http.StatusUnprocessableEntity, "Failed to create website", auth.FieldErrors(err))
		return
	}

	user := auth.GetUser(r.Context())
	website := &db.Website{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Subdomain:   in.Subdomain,
		Name:        in.Name,
		Description: in.Description,
	}
	if err := s.db.CreateWebsite(r.Context(), website); err != nil {
		if errors.Is(err, db.ErrConflict) {
			formError(http.StatusConflict, "Failed to create website", map[string]string{"subdomain": "is already taken"})
			return
		}
		s.fail(w, r, errs.Wrap(errs.Internal, "create website", err))
		return
	}
	obs.From(r.Context()).Info("website_created", "website_id", website.ID, "subdomain", website.Subdomain)

	err := s.email.Send(user.Email, email.TemplateWebsiteCreated, email.WebsiteCreatedData{
		FullName:    user.FullName,
		WebsiteName: website.Name,
		WebsiteURL:  s.topo.WebsiteURL(website.Subdomain).String(),
	})
	if err != nil {
		obs.From(r.Context()).Warn("website_created_email_failed", "website_id", website.ID, "error", err)
	}

	s.renderSuccess(w, r, "Website created successfully", "/")
}

func (s *Server) handleStudioWebsite(w http.ResponseWriter, r *http.Request) {
	website, err := s.ownedWebsite(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data := s.page(r, website.Name)
	data.Data = web.WebsitePostsView{Website: s.websiteView(website)}
	s.render(w, r, http.StatusOK, web.PageStudioWebsite, data)
}

func (s *Server) handleStudioPosts(w http.ResponseWriter, r *http.Request) {
	website, err := s.ownedWebsite(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	posts, err := s.db.ListPostsByWebsite(r.Context(), website.ID)
	if err != nil {
		s.fail(w, r, errs.Wrap(errs.Internal, "list posts", err))
		return
	}
	view := web.WebsitePostsView{Website: s.websiteView(website)}
	for _, p := range posts {
		view.Posts = append(view.Posts, s.postView(website, p))
	}
	data := s.page(r, "Posts")
	data.Data = view
	s.render(w, r, http.StatusOK, web.PageWebsitePosts, data)
}

func (s *Server) handleNewPostPage(w http.ResponseWriter, r *http.Request) {
	website, err := s.ownedWebsite(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data := s.page(r, "New post")
	data.Data = web.WebsitePostsView{Website: s.websiteView(website)}
	s.render(w, r, http.StatusOK, web.PageNewPost, data)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	website, err := s.ownedWebsite(ctx, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPostFormBytes)
	if err := r.ParseMultipartForm(multipartMemoryMax); err != nil {
		s.fail(w, r, errs.Wrap(errs.InvalidArgument, "Invalid form data", err))
		return
	}
	title := strings.TrimSpace(r.PostFormValue("title"))
	content := r.PostFormValue("content")

	formError := func(fields map[string]string) {
		data := s.page(r, "New post")
		data.Error = "Failed to create post"
		data.FieldErrors = fields
		data.Form = map[string]string{"title": title, "content": content}
		data.Data = web.WebsitePostsView{Website: s.websiteView(website)}
		s.render(w, r, http.StatusUnprocessableEntity, web.PageNewPost, data)
	}

	err = validation.Errors{
		"title":   validation.Validate(title, validation.Required, validation.RuneLength(1, 256)),
		"content": validation.Validate(content, validation.Length(0, db.MaxPostContentBytes)),
	}.Filter()
	if err != nil {
		formError(auth.FieldErrors(err))
		return
	}

	user := auth.GetUser(ctx)
	post := &db.Post{
		ID:        uuid.NewString(),
		WebsiteID: website.ID,
		UserID:    user.ID,
		Title:     title,
		Content:   content,
	}

	covers := r.MultipartForm.File["cover_image"]
	if len(covers) > 0 {
		key, err := s.storeImage(r, user.ID, covers[0])
		if err != nil {
			formError(map[string]string{"cover_image": errs.MessageOf(err)})
			return
		}
		post.CoverImageKey = key
	}
	attached := r.MultipartForm.File["attached_images"]
	if len(attached) > MaxAttachedImages {
		formError(map[string]string{"attached_images": fmt.Sprintf("at most %d images", MaxAttachedImages)})
		return
	}
	for _, fh := range attached {
		key, err := s.storeImage(r, user.ID, fh)
		if err != nil {
			formError(map[string]string{"attached_images": errs.MessageOf(err)})
			return
		}
		post.AttachedImageKeys = append(post.AttachedImageKeys, key)
	}

	if err := s.db.CreatePost(ctx, post); err != nil {
		s.fail(w, r, errs.Wrap(errs.Internal, "create post", err))
		return
	}
	obs.From(ctx).Info("post_created", "post_id", post.ID, "website_id", website.ID, "images", len(post.AttachedImageKeys))
	s.renderSuccess(w, r, "Post created successfully", "/websites/"+website.ID+"/posts")
}

// storeImage uploads one image part to S3 and returns its key. The content
// type is sniffed from the bytes, not trusted from the client.
func (s *Server) storeImage(r *http.Request, userID string, fh *multipart.FileHeader) (string, error) {
	if fh.Size > s3client.MaxImageBytes {
		return "", errs.New(errs.InvalidArgument, "image is too large")
	}
	f, err := fh.Open()
	if err != nil {
		return "", errs.Wrap(errs.InvalidArgument, "unreadable image", err)
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, s3client.MaxImageBytes+1))
	if err != nil {
		return "", errs.Wrap(errs.InvalidArgument, "unreadable image", err)
	}

	key, err := s.s3.PutImage(r.Context(), userID, fh.Filename, content)
	switch {
	case errors.Is(err, s3client.ErrImageTooLarge):
		return "", errs.New(errs.InvalidArgument, "image is too large")
	case errors.Is(err, s3client.ErrUnsupportedImage):
		return "", errs.New(errs.InvalidArgument, "must be a PNG, JPEG, GIF or WebP image")
	case err != nil:
		return "", errs.Wrap(errs.Unavailable, "upload failed", err)
	}
	return key, nil
}
