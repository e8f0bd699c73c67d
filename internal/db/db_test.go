package db

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var testIDCounter uint64

func nextTestID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, atomic.AddUint64(&testIDCounter, 1))
}

func openTestDB(t testing.TB) *DB {
	t.Helper()
	d, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func seedUser(t testing.TB, d *DB, username string) *User {
	t.Helper()
	u := &User{
		ID:            nextTestID("user"),
		Username:      username,
		Email:         username + "@example.com",
		PasswordHash:  "hash",
		FullName:      "Test " + username,
		Birthdate:     "1990-01-01",
		CountryAlpha2: "US",
	}
	require.NoError(t, d.CreateUser(context.Background(), u))
	return u
}

func TestOpen_MemoryDatabasesAreIsolated(t *testing.T) {
	a := openTestDB(t)
	b := openTestDB(t)
	seedUser(t, a, "alice")

	_, err := b.GetUserByLogin(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_FileDatabaseWithKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "mango3.db")
	key := strings.Repeat("ab", 32)

	d, err := Open(path, WithKey(key))
	require.NoError(t, err)
	seedUser(t, d, "carol")
	require.NoError(t, d.Close())

	reopened, err := Open(path, WithKey(key))
	require.NoError(t, err)
	defer reopened.Close()
	u, err := reopened.GetUserByLogin(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, "carol", u.Username)
}

func TestOpen_RejectsMalformedKey(t *testing.T) {
	_, err := Open(MemoryPath, WithKey("not-hex"))
	require.Error(t, err)
}

func TestCreateUser_Conflicts(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	seedUser(t, d, "dave")

	dup := &User{ID: nextTestID("user"), Username: "DAVE", Email: "other@example.com",
		PasswordHash: "h", FullName: "x", Birthdate: "1990-01-01", CountryAlpha2: "US"}
	assert.ErrorIs(t, d.CreateUser(ctx, dup), ErrConflict)

	dupEmail := &User{ID: nextTestID("user"), Username: "dave2", Email: "Dave@Example.com",
		PasswordHash: "h", FullName: "x", Birthdate: "1990-01-01", CountryAlpha2: "US"}
	assert.ErrorIs(t, d.CreateUser(ctx, dupEmail), ErrConflict)
}

func TestGetUserByLogin_UsernameOrEmail(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, d, "erin")

	byName, err := d.GetUserByLogin(ctx, "Erin")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byEmail, err := d.GetUserByLogin(ctx, "erin@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, RoleUser, byEmail.Role)
	assert.False(t, byEmail.IsAdmin())

	_, err = d.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessions_Lifecycle(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, d, "frank")
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, d.CreateSession(ctx, Session{SessionID: "live", UserID: u.ID, ExpiresAt: now.Add(time.Hour).Unix()}))
	require.NoError(t, d.CreateSession(ctx, Session{SessionID: "stale", UserID: u.ID, ExpiresAt: now.Add(-time.Hour).Unix()}))

	s, err := d.GetValidSession(ctx, "live", now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, s.UserID)

	_, err = d.GetValidSession(ctx, "stale", now)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := d.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, d.DeleteSession(ctx, "live"))
	_, err = d.GetValidSession(ctx, "live", now)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, d.DeleteSession(ctx, "never-existed"))
}

func TestWebsitesAndPosts(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, d, "grace")

	w := &Website{ID: nextTestID("site"), UserID: u.ID, Subdomain: "Gardening", Name: "Gardening tips", Description: "Tomatoes and roses"}
	require.NoError(t, d.CreateWebsite(ctx, w))
	assert.Equal(t, "gardening", w.Subdomain)

	again := &Website{ID: nextTestID("site"), UserID: u.ID, Subdomain: "gardening", Name: "dup"}
	assert.ErrorIs(t, d.CreateWebsite(ctx, again), ErrConflict)

	got, err := d.GetWebsiteBySubdomain(ctx, "GARDENING")
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)

	p := &Post{ID: nextTestID("post"), WebsiteID: w.ID, UserID: u.ID, Title: "Pruning roses",
		Content: "Cut above an outward bud.", CoverImageKey: "covers/a.png", AttachedImageKeys: []string{"a.png", "b.png"}}
	require.NoError(t, d.CreatePost(ctx, p))

	gotPost, err := d.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png"}, gotPost.AttachedImageKeys)
	assert.Equal(t, "covers/a.png", gotPost.CoverImageKey)

	posts, err := d.ListPostsByWebsite(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, posts, 1)

	sites, err := d.ListWebsitesByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, sites, 1)

	_, err = d.GetPost(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreatePost_RejectsOversizedContent(t *testing.T) {
	d := openTestDB(t)
	err := d.CreatePost(context.Background(), &Post{ID: "p", Content: strings.Repeat("x", MaxPostContentBytes+1)})
	require.Error(t, err)
}

func TestSearch_PostsAndWebsites(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, d, "heidi")

	w := &Website{ID: nextTestID("site"), UserID: u.ID, Subdomain: "birds", Name: "Birdwatching", Description: "Owls at night"}
	require.NoError(t, d.CreateWebsite(ctx, w))
	require.NoError(t, d.CreatePost(ctx, &Post{ID: nextTestID("post"), WebsiteID: w.ID, UserID: u.ID,
		Title: "Barn owls", Content: "They hunt mice."}))

	posts, err := d.SearchPosts(ctx, "owl", 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Barn owls", posts[0].Title)
	assert.Equal(t, w.ID, posts[0].WebsiteID)

	sites, err := d.SearchWebsites(ctx, "owls", 10)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "Birdwatching", sites[0].Title)

	none, err := d.SearchPosts(ctx, "Some unexistent post", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	empty, err := d.SearchPosts(ctx, `"" --- ***`, 10)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestReset_ClearsEverything(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, d, "ivan")
	w := &Website{ID: nextTestID("site"), UserID: u.ID, Subdomain: "ivan", Name: "Ivan"}
	require.NoError(t, d.CreateWebsite(ctx, w))
	require.NoError(t, d.CreatePost(ctx, &Post{ID: nextTestID("post"), WebsiteID: w.ID, UserID: u.ID, Title: "t", Content: "c"}))

	require.NoError(t, d.Reset(ctx))

	users, err := d.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	hits, err := d.SearchWebsites(ctx, "Ivan", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestEscapeFTS5Query_Examples(t *testing.T) {
	cases := map[string]string{
		"pub":                  "pub*",
		"cat OR dog":           "cat* OR dog*",
		`"hello world"`:        `"hello world"`,
		"rust -spam":           "rust* NOT spam*",
		"-spam":                "spam*",
		"OR cat OR":            "cat*",
		"Some unexistent post": "some* unexistent* post*",
	}
	for in, want := range cases {
		assert.Equal(t, want, EscapeFTS5Query(in), "input %q", in)
	}
}

func testEscapeFTS5Query_NeverFailsToParse(t *rapid.T) {
	input := rapid.String().Draw(t, "input")
	escaped := EscapeFTS5Query(input)
	if strings.HasPrefix(escaped, "OR") || strings.HasSuffix(escaped, "OR") {
		t.Fatalf("dangling OR in %q (from %q)", escaped, input)
	}
	if strings.HasPrefix(escaped, "NOT ") {
		t.Fatalf("leading NOT in %q (from %q)", escaped, input)
	}
}

func TestEscapeFTS5Query_NeverFailsToParse(t *testing.T) {
	rapid.Check(t, testEscapeFTS5Query_NeverFailsToParse)
}

func testSearch_ArbitraryInputIsSafe(d *DB) func(*rapid.T) {
	return func(t *rapid.T) {
		input := rapid.String().Draw(t, "input")
		if _, err := d.SearchPosts(context.Background(), input, 5); err != nil {
			t.Fatalf("search %q failed: %v", input, err)
		}
	}
}

func TestSearch_ArbitraryInputIsSafe(t *testing.T) {
	d := openTestDB(t)
	rapid.Check(t, testSearch_ArbitraryInputIsSafe(d))
}

func TestSetUserDisabled_EndsSessions(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, d, "judy")
	now := time.Now()
	require.NoError(t, d.CreateSession(ctx, Session{SessionID: "s1", UserID: u.ID, ExpiresAt: now.Add(time.Hour).Unix()}))

	require.NoError(t, d.SetUserDisabled(ctx, u.ID, true, now))
	got, err := d.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDisabled())
	_, err = d.GetValidSession(ctx, "s1", now)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, d.SetUserDisabled(ctx, u.ID, false, now))
	got, err = d.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDisabled())

	assert.ErrorIs(t, d.SetUserDisabled(ctx, "missing", true, now), ErrNotFound)
}
