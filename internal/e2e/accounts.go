package e2e

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/mango3-e2e/internal/logutil"
	"github.com/kuitang/mango3-e2e/internal/obs"
	"github.com/kuitang/mango3-e2e/internal/storagestate"
)

// Account is a user the harness registers through the UI.
type Account struct {
	Username  string
	Email     string
	Password  string
	FullName  string
	Birthdate string
	Country   string
}

// NewAccount returns an account with a username unique to this run.
func NewAccount() Account {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	username := "u" + suffix
	return Account{
		Username:  username,
		Email:     username + "@example.com",
		Password:  "password-" + suffix,
		FullName:  "Test User " + suffix,
		Birthdate: "1990-01-01",
		Country:   "PE",
	}
}

// exactLabel matches the whole label text.
func exactLabel() playwright.PageGetByLabelOptions {
	return playwright.PageGetByLabelOptions{Exact: playwright.Bool(true)}
}

// Fill fills the input labelled label.
func Fill(t testing.TB, page playwright.Page, label, value string) {
	t.Helper()
	if err := page.GetByLabel(label, exactLabel()).Fill(value); err != nil {
		t.Fatalf("Failed to fill %q: %v", label, err)
	}
}

// ClickButton clicks the button named name.
func ClickButton(t testing.TB, page playwright.Page, name string) {
	t.Helper()
	err := page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{
		Name:  name,
		Exact: playwright.Bool(true),
	}).Click()
	if err != nil {
		t.Fatalf("Failed to click button %q: %v", name, err)
	}
}

// ExpectVisible waits for locator to become visible and logs page
// diagnostics on failure.
func (e *Env) ExpectVisible(t testing.TB, page playwright.Page, locator playwright.Locator, what string) {
	t.Helper()
	err := locator.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(e.TimeoutMS()),
	})
	if err != nil {
		title, _ := page.Title()
		content, _ := page.Content()
		content = logutil.Preview(content, 500)
		t.Logf("Current URL: %s", page.URL())
		t.Logf("Current title: %s", title)
		t.Logf("Content preview: %s", content)
		t.Fatalf("expected %s to be visible: %v", what, err)
	}
}

// ExpectText waits for text to be visible on the page.
func (e *Env) ExpectText(t testing.TB, page playwright.Page, text string) {
	t.Helper()
	e.ExpectVisible(t, page, page.GetByText(text, playwright.PageGetByTextOptions{Exact: playwright.Bool(true)}), fmt.Sprintf("text %q", text))
}

// ExpectHeading waits for a heading with exactly text.
func (e *Env) ExpectHeading(t testing.TB, page playwright.Page, level int, text string) {
	t.Helper()
	locator := page.GetByRole(*playwright.AriaRoleHeading, playwright.PageGetByRoleOptions{
		Name:  text,
		Exact: playwright.Bool(true),
		Level: playwright.Int(level),
	})
	e.ExpectVisible(t, page, locator, fmt.Sprintf("heading %q", text))
}

// Register drives the registration form for acct and waits for the
// confirmation. The page ends up signed in.
func (e *Env) Register(t testing.TB, page playwright.Page, acct Account) {
	t.Helper()
	e.Navigate(t, page, e.Topology.LoginURL())
	e.ExpectLoadToComplete(t, page)
	e.ExpectHeading(t, page, 2, "Login")

	if err := page.GetByText("I don't have an account").Click(); err != nil {
		t.Fatalf("Failed to open the registration page: %v", err)
	}
	e.ExpectURL(t, page, e.Topology.RegisterURL())
	e.ExpectLoadToComplete(t, page)
	e.ExpectHeading(t, page, 2, "Register")

	Fill(t, page, "Username", acct.Username)
	Fill(t, page, "Email", acct.Email)
	Fill(t, page, "Password", acct.Password)
	Fill(t, page, "Full name", acct.FullName)
	Fill(t, page, "Birthdate", acct.Birthdate)
	_, err := page.GetByLabel("Country", exactLabel()).SelectOption(playwright.SelectOptionValues{
		Values: &[]string{acct.Country},
	})
	if err != nil {
		t.Fatalf("Failed to select country %s: %v", acct.Country, err)
	}
	ClickButton(t, page, "Submit")
	e.ExpectText(t, page, "User created successfully")
}

// Login drives the login form.
func (e *Env) Login(t testing.TB, page playwright.Page, login, password string) {
	t.Helper()
	e.Navigate(t, page, e.Topology.LoginURL())
	e.ExpectLoadToComplete(t, page)
	Fill(t, page, "Username or email", login)
	Fill(t, page, "Password", password)
	ClickButton(t, page, "Submit")
	e.ExpectRedirectToHomePage(t, page)
}

// SaveSession captures the page's browser context under role for this suite.
// It overwrites whatever was stored before.
func (e *Env) SaveSession(t testing.TB, page playwright.Page, role string) {
	t.Helper()
	key := storagestate.Key{Suite: e.Suite, Role: role}
	state, err := e.Store.Capture(key, page.Context())
	if err != nil {
		t.Fatalf("Failed to save session %s: %v", key, err)
	}
	obs.Pkg("e2e").Info("session_saved", "key", key.String(), "cookies", len(state.Cookies))
}

// RegisterAndSave registers a fresh account and stores its session as the
// suite's user session.
func (e *Env) RegisterAndSave(t testing.TB, page playwright.Page) Account {
	t.Helper()
	acct := NewAccount()
	e.Register(t, page, acct)
	e.SaveSession(t, page, storagestate.RoleUser)
	return acct
}

// LoginAdminAndSave signs in as the configured administrator and stores the
// session as the suite's admin session.
func (e *Env) LoginAdminAndSave(t testing.TB, page playwright.Page) {
	t.Helper()
	e.Login(t, page, e.Config.AdminUsername, e.Config.AdminPassword)
	e.SaveSession(t, page, storagestate.RoleAdmin)
}
