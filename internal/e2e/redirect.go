package e2e

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/mango3-e2e/internal/errs"
	"github.com/kuitang/mango3-e2e/internal/topology"
	"github.com/kuitang/mango3-e2e/internal/wait"
)

// waitURL polls current until check accepts it. Redirect chains across
// origins land asynchronously, so a single read of the URL is not enough.
func waitURL(ctx context.Context, policy wait.Policy, expected string, current func() string, check func(string) error) error {
	return wait.Until(ctx, expected, policy, func(context.Context) (bool, string, error) {
		actual := current()
		if err := check(actual); err != nil {
			return false, actual, err
		}
		return true, actual, nil
	})
}

// WaitForURL waits until the page URL equals expected exactly, modulo the
// given whitelist.
func WaitForURL(ctx context.Context, page playwright.Page, policy wait.Policy, expected topology.Endpoint, opts ...topology.MatchOption) error {
	return waitURL(ctx, policy, "URL "+expected.String(), page.URL, func(actual string) error {
		return expected.Compare(actual, opts...)
	})
}

// WaitForURLMatch waits until the page URL matches re.
func WaitForURLMatch(ctx context.Context, page playwright.Page, policy wait.Policy, re *regexp.Regexp) error {
	return waitURL(ctx, policy, "URL matching "+re.String(), page.URL, func(actual string) error {
		if re.MatchString(actual) {
			return nil
		}
		return errs.New(errs.Mismatch, fmt.Sprintf("URL %s does not match %s", actual, re))
	})
}

// ExpectURL fails the test unless the page reaches expected.
func (e *Env) ExpectURL(t testing.TB, page playwright.Page, expected topology.Endpoint, opts ...topology.MatchOption) {
	t.Helper()
	if err := WaitForURL(context.Background(), page, e.Policy(), expected, opts...); err != nil {
		if m, ok := topology.AsMismatch(err); ok {
			t.Fatalf("%s", m.Error())
		}
		t.Fatalf("expected URL %s: %v", expected, err)
	}
}

// ExpectURLMatches fails the test unless the page URL comes to match re.
func (e *Env) ExpectURLMatches(t testing.TB, page playwright.Page, re *regexp.Regexp) {
	t.Helper()
	if err := WaitForURLMatch(context.Background(), page, e.Policy(), re); err != nil {
		t.Fatalf("%v", err)
	}
}

// ExpectRedirectToHomePage asserts the page ended on the home origin root.
func (e *Env) ExpectRedirectToHomePage(t testing.TB, page playwright.Page) {
	t.Helper()
	e.ExpectURL(t, page, e.Topology.HomeURL())
}

// ExpectRedirectToLoginPage asserts the page ended on the accounts login page.
func (e *Env) ExpectRedirectToLoginPage(t testing.TB, page playwright.Page) {
	t.Helper()
	e.ExpectURL(t, page, e.Topology.LoginURL())
}

// ExpectRedirectToRestrictedArea asserts the page ended on the landing page of
// the named origin, e.g. admin after logging in as an administrator.
func (e *Env) ExpectRedirectToRestrictedArea(t testing.TB, page playwright.Page, origin string) {
	t.Helper()
	target, err := e.Topology.Origin(origin)
	if err != nil {
		t.Fatalf("%v", err)
	}
	e.ExpectURL(t, page, target)
}
