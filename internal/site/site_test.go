package site_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/mango3-e2e/internal/auth"
	"github.com/kuitang/mango3-e2e/internal/config"
	"github.com/kuitang/mango3-e2e/internal/db"
	"github.com/kuitang/mango3-e2e/internal/email"
	"github.com/kuitang/mango3-e2e/internal/s3client"
	"github.com/kuitang/mango3-e2e/internal/site"
	"github.com/kuitang/mango3-e2e/internal/topology"
)

// pngBytes is enough of a PNG for content sniffing.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

type testSite struct {
	srv     *site.Server
	topo    *topology.Topology
	store   *db.DB
	mail    *email.MockEmailService
	uploads *s3client.Client
	addr    string
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	store, err := db.Open(db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mail := email.NewMockEmailServiceWithOutbox("")
	topo := topology.New(topology.DefaultDomain, false, 0)
	uploads := s3client.TestClient(t, "uploads")
	srv, err := site.New(site.Options{
		Topology:        topo,
		DB:              store,
		S3:              uploads,
		Email:           mail,
		Hasher:          auth.FakeInsecureHasher{},
		SessionDuration: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	_, err = srv.Users().EnsureAdmin(context.Background(), "admin", "admin@mango3.local", "admin-password")
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testSite{srv: srv, topo: topo, store: store, mail: mail, uploads: uploads, addr: ts.Listener.Addr().String()}
}

// client returns a browser-like client: a cookie jar and every host dialed
// to the test listener. Redirects are not followed.
func (s *testSite) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	dialer := &net.Dialer{}
	return &http.Client{
		Jar: jar,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, s.addr)
			},
		},
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		Timeout:       10 * time.Second,
	}
}

func (s *testSite) url(name, path string) string {
	return s.topo.URL(name, path).String()
}

func (s *testSite) register(t *testing.T, c *http.Client, username string) {
	t.Helper()
	resp, body := postForm(t, c, s.url(topology.Accounts, "/register"), url.Values{
		"username":       {username},
		"email":          {username + "@example.com"},
		"password":       {"secret-password"},
		"full_name":      {"Test " + username},
		"birthdate":      {"1990-01-31"},
		"country_alpha2": {"PE"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.Contains(t, body, "User created successfully")
}

func (s *testSite) login(t *testing.T, c *http.Client, login, password string) *http.Response {
	t.Helper()
	resp, _ := postForm(t, c, s.url(topology.Accounts, "/login"), url.Values{
		"username_or_email": {login},
		"password":          {password},
	})
	return resp
}

func get(t *testing.T, c *http.Client, rawURL string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(rawURL)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func postForm(t *testing.T, c *http.Client, rawURL string, values url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := c.PostForm(rawURL, values)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHealth_EveryOrigin(t *testing.T) {
	s := newTestSite(t)
	c := s.client(t)
	for _, name := range s.topo.Names() {
		resp, body := get(t, c, s.url(name, "/health"))
		assert.Equal(t, http.StatusOK, resp.StatusCode, name)
		assert.Equal(t, "ok", body, name)
	}
}

func TestUnknownHost_Misdirected(t *testing.T) {
	s := newTestSite(t)
	resp, _ := get(t, s.client(t), "http://example.org/")
	assert.Equal(t, http.StatusMisdirectedRequest, resp.StatusCode)
}

func TestPages_CarryLoadingOverlay(t *testing.T) {
	s := newTestSite(t)
	c := s.client(t)
	for _, u := range []string{
		s.url(topology.Home, "/"),
		s.url(topology.Accounts, "/login"),
		s.url(topology.Accounts, "/register"),
		s.url(topology.Home, "/search?q=x"),
		s.url(topology.Home, "/missing"),
	} {
		_, body := get(t, c, u)
		assert.Contains(t, body, `class="loading-overlay"`, u)
	}
}

func TestSearch_NoResults(t *testing.T) {
	s := newTestSite(t)
	resp, body := get(t, s.client(t), s.topo.SearchURL("Some unexistent website", "websites").String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<h1>Search results for "Some unexistent website"</h1>`)
	assert.Contains(t, body, "No results found.")
	assert.Contains(t, body, "q=Some%20unexistent%20website&amp;tab=websites")
}

func TestSearch_FormEncodedQueryRedirectsToCanonicalURL(t *testing.T) {
	s := newTestSite(t)
	c := s.client(t)

	resp, _ := get(t, c, s.url(topology.Home, "/search?q=Some+unexistent+post"))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	want := s.topo.SearchURL("Some unexistent post", "")
	assert.NoError(t, want.Compare(resp.Header.Get("Location")))
	assert.True(t, strings.HasSuffix(resp.Header.Get("Location"), "/search?q=Some%20unexistent%20post"))

	resp, _ = get(t, c, s.url(topology.Home, "/search?q=Some+unexistent+website&tab=websites"))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.NoError(t, s.topo.SearchURL("Some unexistent website", "websites").Compare(resp.Header.Get("Location")))

	resp, body := get(t, c, want.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<h1>Search results for "Some unexistent post"</h1>`)
}

func TestGuards_RedirectToExactURLs(t *testing.T) {
	s := newTestSite(t)
	login := s.topo.LoginURL().String()
	home := s.topo.HomeURL().String()

	anon := s.client(t)
	for _, name := range []string{topology.Admin, topology.MyAccount, topology.Studio} {
		resp, _ := get(t, anon, s.url(name, "/"))
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, name)
		assert.Equal(t, login, resp.Header.Get("Location"), name)
	}
	resp, _ := get(t, anon, s.url(topology.Accounts, "/"))
	assert.Equal(t, login, resp.Header.Get("Location"))

	user := s.client(t)
	s.register(t, user, "alice")
	resp, _ = get(t, user, s.url(topology.Admin, "/"))
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, home, resp.Header.Get("Location"))

	resp, _ = get(t, user, s.url(topology.Accounts, "/login"))
	assert.Equal(t, home, resp.Header.Get("Location"), "signed-in visitors skip the login page")
}

func TestRegister_SessionSpansSubdomains(t *testing.T) {
	s := newTestSite(t)
	c := s.client(t)
	s.register(t, c, "alice")

	cookies := c.Jar.Cookies(&url.URL{Scheme: "http", Host: "studio.mango3.local"})
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.SessionCookieName, cookies[0].Name)

	resp, body := get(t, c, s.url(topology.MyAccount, "/"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "alice")

	require.Equal(t, 1, s.mail.Count())
	assert.Equal(t, email.TemplateWelcome, s.mail.LastEmail().Template)
	assert.Equal(t, "alice@example.com", s.mail.LastEmail().To)
}

func TestRegister_ValidationAndDuplicates(t *testing.T) {
	s := newTestSite(t)
	c := s.client(t)

	resp, body := postForm(t, c, s.url(topology.Accounts, "/register"), url.Values{
		"username": {"x"},
		"email":    {"not-an-email"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Failed to create user")
	assert.Contains(t, body, `value="not-an-email"`)

	s.register(t, c, "alice")
	other := s.client(t)
	resp, body = postForm(t, other, s.url(topology.Accounts, "/register"), url.Values{
		"username":       {"alice"},
		"email":          {"other@example.com"},
		"password":       {"secret-password"},
		"full_name":      {"Other"},
		"birthdate":      {"1990-01-31"},
		"country_alpha2": {"PE"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "already taken")
}

func TestLogin_SuccessFailureAndLogout(t *testing.T) {
	s := newTestSite(t)
	s.register(t, s.client(t), "alice")

	c := s.client(t)
	resp := s.login(t, c, "alice", "wrong-password")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.login(t, c, "alice@example.com", "secret-password")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, s.topo.HomeURL().String(), resp.Header.Get("Location"))

	resp, _ = get(t, c, s.url(topology.MyAccount, "/"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = postForm(t, c, s.url(topology.Accounts, "/logout"), nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, _ = get(t, c, s.url(topology.MyAccount, "/"))
	assert.Equal(t, s.topo.LoginURL().String(), resp.Header.Get("Location"))
}

func TestAdmin_DisableEndsSessionsAndBlocksLogin(t *testing.T) {
	s := newTestSite(t)
	user := s.client(t)
	s.register(t, user, "alice")
	alice, err := s.store.GetUserByLogin(context.Background(), "alice")
	require.NoError(t, err)

	admin := s.client(t)
	require.Equal(t, http.StatusSeeOther, s.login(t, admin, "admin", "admin-password").StatusCode)

	resp, body := get(t, admin, s.url(topology.Admin, "/users"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "alice")

	resp, _ = postForm(t, admin, s.url(topology.Admin, "/users/"+alice.ID+"/disable"), nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = get(t, user, s.url(topology.MyAccount, "/"))
	assert.Equal(t, s.topo.LoginURL().String(), resp.Header.Get("Location"))

	resp, body = postForm(t, s.client(t), s.url(topology.Accounts, "/login"), url.Values{
		"username_or_email": {"alice"},
		"password":          {"secret-password"},
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Your account is disabled")

	resp, _ = postForm(t, admin, s.url(topology.Admin, "/users/"+alice.ID+"/enable"), nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, http.StatusSeeOther, s.login(t, s.client(t), "alice", "secret-password").StatusCode)
}

func TestAdmin_CannotDisableSelf(t *testing.T) {
	s := newTestSite(t)
	admin := s.client(t)
	require.Equal(t, http.StatusSeeOther, s.login(t, admin, "admin", "admin-password").StatusCode)
	self, err := s.store.GetUserByLogin(context.Background(), "admin")
	require.NoError(t, err)

	resp, _ := postForm(t, admin, s.url(topology.Admin, "/users/"+self.ID+"/disable"), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func createWebsite(t *testing.T, s *testSite, c *http.Client, name, subdomain string) (*http.Response, string) {
	t.Helper()
	return postForm(t, c, s.url(topology.Studio, "/new-website"), url.Values{
		"name":        {name},
		"subdomain":   {subdomain},
		"description": {"A **test** website"},
	})
}

func TestStudio_CreateWebsite(t *testing.T) {
	s := newTestSite(t)
	c := s.client(t)
	s.register(t, c, "alice")

	resp, body := createWebsite(t, s, c, "Alice Blog", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, "Website created successfully")
	assert.Equal(t, email.TemplateWebsiteCreated, s.mail.LastEmail().Template)

	website, err := s.store.GetWebsiteBySubdomain(context.Background(), "alice-blog")
	require.NoError(t, err)

	_, body = get(t, c, s.url(topology.Studio, "/"))
	assert.Contains(t, body, "Alice Blog")
	assert.Contains(t, body, "/websites/"+website.ID)

	resp, body = get(t, s.client(t), s.topo.WebsiteURL("alice-blog").String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Alice Blog")
	assert.Contains(t, body, "<strong>test</strong>")

	resp, body = createWebsite(t, s, c, "Second", "alice-blog")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "is already taken")
}

func TestStudio_RejectsReservedSubdomains(t *testing.T) {
	s := newTestSite(t)
	c := s.client(t)
	s.register(t, c, "alice")

	for _, sub := range []string{"studio", "accounts", "www", "my-account"} {
		resp, body := createWebsite(t, s, c, "Sneaky", sub)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, sub)
		assert.Contains(t, body, "is reserved", sub)
	}
}

func TestStudio_OtherUsersWebsitesAreHidden(t *testing.T) {
	s := newTestSite(t)
	alice := s.client(t)
	s.register(t, alice, "alice")
	resp, _ := createWebsite(t, s, alice, "Alice Blog", "alice-blog")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	website, err := s.store.GetWebsiteBySubdomain(context.Background(), "alice-blog")
	require.NoError(t, err)

	bob := s.client(t)
	s.register(t, bob, "bob")
	resp, _ = get(t, bob, s.url(topology.Studio, "/websites/"+website.ID+"/posts"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

var coverPattern = regexp.MustCompile(`http://uploads\.mango3\.local/images/[^"]+\.png`)

func TestStudio_CreatePostWithImages(t *testing.T) {
	s := newTestSite(t)
	c := s.client(t)
	s.register(t, c, "alice")
	resp, _ := createWebsite(t, s, c, "Alice Blog", "alice-blog")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	website, err := s.store.GetWebsiteBySubdomain(context.Background(), "alice-blog")
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Hello mango"))
	require.NoError(t, mw.WriteField("content", "First *post* body"))
	part, err := mw.CreateFormFile("cover_image", "cover.png")
	require.NoError(t, err)
	_, err = part.Write(pngBytes)
	require.NoError(t, err)
	for _, name := range []string{"a.png", "b.png"} {
		part, err := mw.CreateFormFile("attached_images", name)
		require.NoError(t, err)
		_, err = part.Write(pngBytes)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err = c.Post(s.url(topology.Studio, "/websites/"+website.ID+"/posts/new"), mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	body := readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, "Post created successfully")

	posts, err := s.store.ListPostsByWebsite(context.Background(), website.ID)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Len(t, posts[0].AttachedImageKeys, 2)

	visitor := s.client(t)
	resp, body = get(t, visitor, s.topo.WebsiteURL("alice-blog").WithPath("/posts/"+posts[0].ID).String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Hello mango")
	cover := coverPattern.FindString(body)
	require.NotEmpty(t, cover, "post page links the cover image")

	resp, img := get(t, visitor, cover)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, string(pngBytes), img)

	_, body = get(t, visitor, s.topo.SearchURL("mango", "").String())
	assert.Contains(t, body, "Hello mango")
	assert.NotContains(t, body, "No results found.")
}

func TestStudio_RejectsNonImageUploads(t *testing.T) {
	s := newTestSite(t)
	c := s.client(t)
	s.register(t, c, "alice")
	resp, _ := createWebsite(t, s, c, "Alice Blog", "alice-blog")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	website, err := s.store.GetWebsiteBySubdomain(context.Background(), "alice-blog")
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Script"))
	part, err := mw.CreateFormFile("cover_image", "cover.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("<script>alert(1)</script>"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err = c.Post(s.url(topology.Studio, "/websites/"+website.ID+"/posts/new"), mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "must be a PNG")
}

func TestWebsites_UnknownSubdomainAndPost(t *testing.T) {
	s := newTestSite(t)
	c := s.client(t)
	resp, _ := get(t, c, s.topo.WebsiteURL("nobody-here").String())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, c, s.url(topology.Uploads, "/images/missing.png"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, c, s.url(topology.Uploads, "/images/a/../../secret"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReset_ClearsAccounts(t *testing.T) {
	s := newTestSite(t)
	c := s.client(t)
	s.register(t, c, "alice")
	require.NoError(t, s.srv.Reset(context.Background()))

	resp, _ := get(t, c, s.url(topology.MyAccount, "/"))
	assert.Equal(t, s.topo.LoginURL().String(), resp.Header.Get("Location"))
}

func TestReset_RemovesUploadedImages(t *testing.T) {
	s := newTestSite(t)
	ctx := context.Background()
	require.NoError(t, s.uploads.PutObject(ctx, "images/u1/a.png", []byte("\x89PNG\r\n\x1a\n"), "image/png"))

	resp, _ := get(t, s.client(t), s.url(topology.Uploads, "/images/u1/a.png"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.srv.Reset(ctx))
	resp, _ = get(t, s.client(t), s.url(topology.Uploads, "/images/u1/a.png"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNew_RequiresBackingServices(t *testing.T) {
	_, err := site.New(site.Options{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "required"))
}

func TestListen_RandomPortTopology(t *testing.T) {
	cfg := &config.Config{
		ListenAddr:      "127.0.0.1:0",
		Domain:          topology.DefaultDomain,
		DatabasePath:    db.MemoryPath,
		SessionDuration: time.Hour,
		AdminUsername:   "admin",
		AdminEmail:      "admin@mango3.local",
		AdminPassword:   "admin-password",
		NoEmail:         true,
		NoS3:            true,
		TestMode:        true,
	}
	app, err := site.Listen(context.Background(), cfg)
	require.NoError(t, err)
	app.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
	})

	port := app.Addr().(*net.TCPAddr).Port
	assert.Equal(t, port, cfg.PublicPort)
	home := app.Topology().HomeURL()
	assert.Equal(t, "mango3.local:"+strconv.Itoa(port), home.Host)
	require.NotNil(t, app.Mailbox)

	s := &testSite{srv: app.Server, topo: app.Topology(), mail: app.Mailbox, addr: app.Addr().String()}
	c := s.client(t)
	resp, body := get(t, c, s.url(topology.Accounts, "/health"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)

	assert.Equal(t, http.StatusSeeOther, s.login(t, c, "admin", "admin-password").StatusCode)
}
