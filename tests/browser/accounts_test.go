package browser

import (
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/mango3-e2e/internal/auth"
	"github.com/kuitang/mango3-e2e/internal/e2e"
	"github.com/kuitang/mango3-e2e/internal/storagestate"
	"github.com/kuitang/mango3-e2e/internal/topology"
)

func TestBrowser_Accounts(t *testing.T) {
	env := e2e.Setup(t, "accounts")
	var acct e2e.Account

	e2e.NewPlan().
		Step("register", func(t *testing.T) {
			env.Test().Run(t, "new user", func(t *testing.T, page playwright.Page) {
				acct = env.RegisterAndSave(t, page)

				state, err := env.Store.Read(storagestate.Key{Suite: env.Suite, Role: storagestate.RoleUser})
				require.NoError(t, err)
				cookie, ok := state.Cookie(auth.SessionCookieName)
				require.True(t, ok, "stored session carries the session cookie")
				assert.Contains(t, cookie.Domain, env.Topology.Domain)
			})
		}).
		Step("registration signs in", func(t *testing.T) {
			env.TestAsUser().Run(t, "my account", func(t *testing.T, page playwright.Page) {
				env.Goto(t, page, topology.MyAccount, "/")
				env.ExpectLoadToComplete(t, page)
				env.ExpectURL(t, page, env.Topology.MustOrigin(topology.MyAccount))
				env.ExpectHeading(t, page, 1, "My account")
				env.ExpectText(t, page, acct.Email)
			})
		}, "register").
		Step("login", func(t *testing.T) {
			env.Test().Run(t, "by username", func(t *testing.T, page playwright.Page) {
				env.Login(t, page, acct.Username, acct.Password)
				env.ExpectLoadToComplete(t, page)
				env.ExpectVisible(t, page, page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: "Logout"}), "logout button")
			})
			env.Test().Run(t, "by email", func(t *testing.T, page playwright.Page) {
				env.Login(t, page, acct.Email, acct.Password)
			})
		}, "register").
		Step("wrong password", func(t *testing.T) {
			env.Test().Run(t, "rejected", func(t *testing.T, page playwright.Page) {
				env.Navigate(t, page, env.Topology.LoginURL())
				env.ExpectLoadToComplete(t, page)
				e2e.Fill(t, page, "Username or email", acct.Username)
				e2e.Fill(t, page, "Password", "not-the-password")
				e2e.ClickButton(t, page, "Submit")
				env.ExpectText(t, page, "Failed to login")
				env.ExpectURL(t, page, env.Topology.LoginURL())
			})
		}, "register").
		Step("signed-in user leaves accounts", func(t *testing.T) {
			env.TestAsUser().Run(t, "login page", func(t *testing.T, page playwright.Page) {
				env.Navigate(t, page, env.Topology.LoginURL())
				env.ExpectRedirectToHomePage(t, page)
			})
		}, "register").
		Step("logout", func(t *testing.T) {
			env.Test().Run(t, "ends session", func(t *testing.T, page playwright.Page) {
				env.Login(t, page, acct.Username, acct.Password)
				env.ExpectLoadToComplete(t, page)
				e2e.ClickButton(t, page, "Logout")
				env.ExpectRedirectToHomePage(t, page)
				env.ExpectLoadToComplete(t, page)

				env.Goto(t, page, topology.MyAccount, "/")
				env.ExpectRedirectToLoginPage(t, page)
			})
		}, "login", "signed-in user leaves accounts", "registration signs in").
		Run(t)
}

func TestBrowser_Accounts_LoginRouteMock(t *testing.T) {
	env := e2e.Setup(t, "accounts-mock")

	env.Test().Run(t, "mocked login page", func(t *testing.T, page playwright.Page) {
		mock := env.MockLoginRoute(t, page)
		env.Navigate(t, page, env.Topology.LoginURL())
		env.ExpectLoadToComplete(t, page)
		env.ExpectHeading(t, page, 2, "Login")
		assert.Equal(t, []string{env.Topology.LoginURL().String()}, mock.Hits())
	})

	env.Test().Run(t, "other pages pass through", func(t *testing.T, page playwright.Page) {
		mock := env.MockLoginRoute(t, page)
		env.Navigate(t, page, env.Topology.RegisterURL())
		env.ExpectLoadToComplete(t, page)
		env.ExpectHeading(t, page, 2, "Register")
		assert.Empty(t, mock.Hits())
	})
}
