package e2e

import (
	"errors"
	"testing"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/mango3-e2e/internal/obs"
	"github.com/kuitang/mango3-e2e/internal/storagestate"
)

// Fixture declares tests. The base fixture starts every test with an empty
// browser context; a derived fixture seeds the context from one stored
// session. Fixtures never log in and never write the store.
type Fixture struct {
	env          *Env
	role         string
	allowMissing bool
}

// Test is the base fixture.
func (e *Env) Test() *Fixture {
	return &Fixture{env: e}
}

// TestAsUser seeds each test with this suite's stored user session.
func (e *Env) TestAsUser() *Fixture {
	return e.TestAs(storagestate.RoleUser)
}

// TestAsAdmin seeds each test with this suite's stored administrator session.
func (e *Env) TestAsAdmin() *Fixture {
	return e.TestAs(storagestate.RoleAdmin)
}

// TestAs seeds each test with the session stored for role.
func (e *Env) TestAs(role string) *Fixture {
	return &Fixture{env: e, role: role, allowMissing: e.Config.AllowMissingSession}
}

// AllowMissingSession returns a copy of f that starts unauthenticated instead
// of failing when no session was stored.
func (f *Fixture) AllowMissingSession() *Fixture {
	c := *f
	c.allowMissing = true
	return &c
}

// Key is the storage-state key f seeds from. The base fixture has none.
func (f *Fixture) Key() (storagestate.Key, bool) {
	if f.role == "" {
		return storagestate.Key{}, false
	}
	return storagestate.Key{Suite: f.env.Suite, Role: f.role}, true
}

// ContextOptions resolves the browser-context options for one test. A missing
// session is an error wrapping storagestate.ErrNoSession unless f allows it.
func (f *Fixture) ContextOptions() (playwright.BrowserNewContextOptions, error) {
	var opts playwright.BrowserNewContextOptions
	key, ok := f.Key()
	if !ok {
		return opts, nil
	}
	state, err := f.env.Store.Read(key)
	switch {
	case errors.Is(err, storagestate.ErrNoSession):
		if f.allowMissing {
			obs.Pkg("e2e").Warn("session_missing_allowed", "key", key.String())
			return opts, nil
		}
		return opts, err
	case err != nil:
		return opts, err
	}
	opts.StorageState = state.Optional()
	return opts, nil
}

// Run runs body as a subtest with a fresh page. It reports whether the
// subtest passed, like t.Run. A skipped subtest (no browser) skips t too.
func (f *Fixture) Run(t *testing.T, name string, body func(t *testing.T, page playwright.Page)) bool {
	t.Helper()
	return Subtest(t, name, func(t *testing.T) {
		t.Helper()
		opts, err := f.ContextOptions()
		if err != nil {
			t.Fatalf("%v", err)
		}
		bctx := f.env.NewContext(t, opts)
		page := f.env.NewPage(t, bctx)
		body(t, page)
	})
}
