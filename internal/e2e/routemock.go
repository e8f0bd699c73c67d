package e2e

import (
	"net/http"
	"sync"
	"testing"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/mango3-e2e/internal/obs"
	"github.com/kuitang/mango3-e2e/internal/topology"
)

// LoginMockBody is served in place of the real login page. Its overlay is
// already done so readiness waits pass immediately.
const LoginMockBody = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Login</title></head>
<body>
<div class="loading-overlay is-done"></div>
<main><h2>Login</h2></main>
</body>
</html>`

// LoginMock intercepts exactly one URL for the lifetime of a page.
type LoginMock struct {
	target topology.Endpoint

	mu   sync.Mutex
	hits []string
}

// MockLoginRoute fulfils requests for target with LoginMockBody. Only an exact
// URL match is intercepted; everything else reaches the network.
func MockLoginRoute(t testing.TB, page playwright.Page, target topology.Endpoint) *LoginMock {
	t.Helper()
	m := &LoginMock{target: target}
	if err := page.Route(m.Matches, m.fulfill); err != nil {
		t.Fatalf("Failed to install login route mock for %s: %v", target, err)
	}
	return m
}

// MockLoginRoute mocks the topology's login page.
func (e *Env) MockLoginRoute(t testing.TB, page playwright.Page) *LoginMock {
	t.Helper()
	return MockLoginRoute(t, page, e.Topology.LoginURL())
}

// Matches reports whether rawURL is the mocked URL.
func (m *LoginMock) Matches(rawURL string) bool {
	return m.target.Compare(rawURL) == nil
}

func (m *LoginMock) fulfill(route playwright.Route) {
	u := route.Request().URL()
	m.mu.Lock()
	m.hits = append(m.hits, u)
	m.mu.Unlock()
	obs.Pkg("e2e").Debug("login_route_mocked", "url", u)

	err := route.Fulfill(playwright.RouteFulfillOptions{
		Status:      playwright.Int(http.StatusOK),
		ContentType: playwright.String("text/html; charset=utf-8"),
		Headers: map[string]string{
			"Cache-Control": "no-store",
		},
		Body: LoginMockBody,
	})
	if err != nil {
		obs.Pkg("e2e").Warn("login_route_fulfill_failed", "url", u, "error", err)
	}
}

// Hits returns the URLs intercepted so far.
func (m *LoginMock) Hits() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.hits...)
}
