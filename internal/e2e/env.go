// Package e2e is the shared browser-test harness for the mango3 suites. One
// Env per test binary owns the Playwright driver, the browser, the target
// topology and the storage-state store; every test gets its own browser
// context.
package e2e

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/mango3-e2e/internal/config"
	"github.com/kuitang/mango3-e2e/internal/db"
	"github.com/kuitang/mango3-e2e/internal/obs"
	"github.com/kuitang/mango3-e2e/internal/ratelimit"
	"github.com/kuitang/mango3-e2e/internal/site"
	"github.com/kuitang/mango3-e2e/internal/storagestate"
	"github.com/kuitang/mango3-e2e/internal/topology"
	"github.com/kuitang/mango3-e2e/internal/wait"
)

// InProcessOverlayDelay keeps the in-process overlay visibly loading for a
// few frames so readiness waits are exercised.
const InProcessOverlayDelay = 50 * time.Millisecond

var (
	envMu     sync.Mutex
	sharedEnv *runtime
)

// runtime is the per-process state shared by every suite in a test binary.
type runtime struct {
	cfg   *config.HarnessConfig
	topo  *topology.Topology
	store *storagestate.Store
	app   *site.App

	browserMu sync.Mutex
	pw        *playwright.Playwright
	browser   playwright.Browser
}

// Env is one suite's view of the shared harness runtime.
type Env struct {
	Config   *config.HarnessConfig
	Topology *topology.Topology
	Store    *storagestate.Store

	// App is the in-process reference application, nil for an external target.
	App *site.App

	// Suite names the storage-state directory this suite reads and writes.
	Suite string

	rt *runtime
}

// Setup returns the harness for suite. The runtime is created on first use
// and shared by later calls in the same process. Browser suites are skipped
// in -short mode.
func Setup(t testing.TB, suite string) *Env {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser suite in short mode")
	}
	if err := (storagestate.Key{Suite: suite, Role: storagestate.RoleUser}).Validate(); err != nil {
		t.Fatalf("invalid suite name: %v", err)
	}

	rt, err := sharedRuntime()
	if err != nil {
		t.Fatalf("Failed to set up E2E harness: %v", err)
	}
	return &Env{
		Config:   rt.cfg,
		Topology: rt.topo,
		Store:    rt.store,
		App:      rt.app,
		Suite:    suite,
		rt:       rt,
	}
}

func sharedRuntime() (*runtime, error) {
	envMu.Lock()
	defer envMu.Unlock()
	if sharedEnv != nil {
		return sharedEnv, nil
	}

	cfg, err := config.LoadHarnessConfig()
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, store: storagestate.NewOSStore(cfg.StateDir)}

	switch cfg.Target {
	case config.TargetExternal:
		rt.topo, err = cfg.ExternalTopology()
		if err != nil {
			return nil, fmt.Errorf("resolve external topology: %w", err)
		}
	default:
		rt.app, err = startInProcess(cfg)
		if err != nil {
			return nil, fmt.Errorf("start reference application: %w", err)
		}
		rt.topo = rt.app.Topology()
	}

	obs.Pkg("e2e").Info("harness_ready",
		"target", cfg.Target,
		"home", rt.topo.HomeURL().String(),
		"state_dir", cfg.StateDir)
	sharedEnv = rt
	return rt, nil
}

func startInProcess(cfg *config.HarnessConfig) (*site.App, error) {
	app, err := site.Listen(context.Background(), &config.Config{
		ListenAddr:      "127.0.0.1:0",
		Domain:          cfg.Domain,
		OverlayDelay:    InProcessOverlayDelay,
		DatabasePath:    db.MemoryPath,
		SessionDuration: 24 * time.Hour,
		AdminUsername:   cfg.AdminUsername,
		AdminEmail:      cfg.AdminUsername + "@" + cfg.Domain,
		AdminPassword:   cfg.AdminPassword,
		LoginRateLimit:  ratelimit.Config{RPS: 1000, Burst: 1000, CleanupInterval: time.Hour},
		NoEmail:         true,
		NoS3:            true,
		TestMode:        true,
	})
	if err != nil {
		return nil, err
	}
	app.Start()
	return app, nil
}

// Main runs the tests of a suite package and releases the shared runtime.
// Call it from TestMain.
func Main(m *testing.M) {
	code := m.Run()
	Shutdown()
	os.Exit(code)
}

// Shutdown closes the browser, the driver and the in-process application.
func Shutdown() {
	envMu.Lock()
	defer envMu.Unlock()
	if sharedEnv == nil {
		return
	}
	rt := sharedEnv
	sharedEnv = nil

	rt.browserMu.Lock()
	if rt.browser != nil {
		_ = rt.browser.Close()
	}
	if rt.pw != nil {
		_ = rt.pw.Stop()
	}
	rt.browserMu.Unlock()

	if rt.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.app.Shutdown(ctx)
	}
}

// Policy is the wait policy for readiness and redirect waits.
func (e *Env) Policy() wait.Policy {
	return e.Config.Policy()
}

// TimeoutMS is the per-action Playwright timeout.
func (e *Env) TimeoutMS() float64 {
	return float64(e.Config.Timeout.Milliseconds())
}

// hostResolverRules points every origin of the in-process topology at the
// loopback listener; Chromium would otherwise resolve *.mango3.local via DNS.
func hostResolverRules(domain string) string {
	return fmt.Sprintf("MAP *.%s 127.0.0.1, MAP %s 127.0.0.1", domain, domain)
}

func (e *Env) initBrowser(t testing.TB) playwright.Browser {
	t.Helper()
	e.rt.browserMu.Lock()
	defer e.rt.browserMu.Unlock()
	if e.rt.browser != nil {
		return e.rt.browser
	}

	pw, err := playwright.Run()
	if err != nil {
		t.Skip("Playwright not available:", err)
	}

	var args []string
	if e.App != nil {
		args = append(args, "--host-resolver-rules="+hostResolverRules(e.Topology.Domain))
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(e.Config.Headless),
		Args:     args,
	})
	if err != nil {
		_ = pw.Stop()
		t.Skip("Could not launch browser:", err)
	}
	e.rt.pw = pw
	e.rt.browser = browser
	return browser
}

// NewContext creates an isolated browser context closed at test cleanup.
func (e *Env) NewContext(t testing.TB, options ...playwright.BrowserNewContextOptions) playwright.BrowserContext {
	t.Helper()
	browser := e.initBrowser(t)

	var opts playwright.BrowserNewContextOptions
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.IgnoreHttpsErrors == nil && e.Topology.Secure {
		opts.IgnoreHttpsErrors = playwright.Bool(true)
	}
	bctx, err := browser.NewContext(opts)
	if err != nil {
		t.Fatalf("could not create browser context: %v", err)
	}
	bctx.SetDefaultTimeout(e.TimeoutMS())
	bctx.SetDefaultNavigationTimeout(e.TimeoutMS())
	t.Cleanup(func() { _ = bctx.Close() })
	// Tag requests to the in-process site so its access log names the test.
	if e.App != nil {
		if err := bctx.SetExtraHTTPHeaders(map[string]string{obs.TestHeader: t.Name()}); err != nil {
			t.Fatalf("could not set test header: %v", err)
		}
	}
	return bctx
}

// NewPage opens a page in bctx.
func (e *Env) NewPage(t testing.TB, bctx playwright.BrowserContext) playwright.Page {
	t.Helper()
	page, err := bctx.NewPage()
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	page.SetDefaultTimeout(e.TimeoutMS())
	page.SetDefaultNavigationTimeout(e.TimeoutMS())
	return page
}

// Navigate loads target and returns once the DOM is parsed. Readiness of the
// page is a separate step: see ExpectLoadToComplete.
func (e *Env) Navigate(t testing.TB, page playwright.Page, target topology.Endpoint) {
	t.Helper()
	_, err := page.Goto(target.String(), playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(e.TimeoutMS()),
	})
	if err != nil {
		t.Fatalf("Failed to navigate to %s: %v", target, err)
	}
}

// Goto navigates to path on the named origin.
func (e *Env) Goto(t testing.TB, page playwright.Page, origin, path string) {
	t.Helper()
	e.Navigate(t, page, e.Topology.URL(origin, path))
}

// Reset clears the in-process application between suites. It is a no-op
// against an external target.
func (e *Env) Reset(t testing.TB) {
	t.Helper()
	if e.App == nil {
		return
	}
	ctx := context.Background()
	if err := e.App.Reset(ctx); err != nil {
		t.Fatalf("Failed to reset reference application: %v", err)
	}
	if _, err := e.App.Users().EnsureAdmin(ctx, e.Config.AdminUsername, e.Config.AdminUsername+"@"+e.Topology.Domain, e.Config.AdminPassword); err != nil {
		t.Fatalf("Failed to reseed administrator: %v", err)
	}
	if e.App.Mailbox != nil {
		e.App.Mailbox.Clear()
	}
}
