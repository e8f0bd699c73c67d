package e2e

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/mango3-e2e/internal/wait"
)

// Readiness contract of the application under test.
const (
	OverlaySelector = ".loading-overlay"
	DoneClass       = "is-done"
)

// overlayClassScript returns the overlay's class attribute, or null when the
// overlay is not in the document yet.
var overlayClassScript = classAttrScript(OverlaySelector)

func classAttrScript(selector string) string {
	return fmt.Sprintf(`() => {
	const el = document.querySelector(%q);
	return el ? el.getAttribute("class") || "" : null;
}`, selector)
}

// HasClassToken reports whether the space-separated class attribute contains
// token exactly. "is-done-later" does not contain "is-done".
func HasClassToken(classAttr, token string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == token {
			return true
		}
	}
	return false
}

// overlayProbe reads the overlay state. present is false while the element is
// absent.
type overlayProbe func(ctx context.Context) (present bool, classAttr string, err error)

func pageOverlayProbe(page playwright.Page) overlayProbe {
	return func(context.Context) (bool, string, error) {
		v, err := page.Evaluate(overlayClassScript)
		if err != nil {
			// Typically the execution context was replaced by a navigation.
			return false, "", err
		}
		classAttr, ok := v.(string)
		if !ok {
			return false, "", nil
		}
		return true, classAttr, nil
	}
}

func waitOverlayDone(ctx context.Context, policy wait.Policy, probe overlayProbe) error {
	expected := fmt.Sprintf("%s to have class %q", OverlaySelector, DoneClass)
	return wait.Until(ctx, expected, policy, func(ctx context.Context) (bool, string, error) {
		present, classAttr, err := probe(ctx)
		if err != nil {
			return false, "", err
		}
		if !present {
			return false, "overlay absent", nil
		}
		return HasClassToken(classAttr, DoneClass), fmt.Sprintf("class=%q", classAttr), nil
	})
}

// WaitLoadComplete blocks until the page's loading overlay is done. An absent
// overlay and one still loading are both waited on.
func WaitLoadComplete(ctx context.Context, page playwright.Page, policy wait.Policy) error {
	return waitOverlayDone(ctx, policy, pageOverlayProbe(page))
}

// ExpectLoadToComplete fails the test unless the page finishes loading within
// the harness timeout.
func (e *Env) ExpectLoadToComplete(t testing.TB, page playwright.Page) {
	t.Helper()
	if err := WaitLoadComplete(context.Background(), page, e.Policy()); err != nil {
		t.Fatalf("page %s did not finish loading: %v", page.URL(), err)
	}
}
