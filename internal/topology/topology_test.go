package topology

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/mango3-e2e/internal/errs"
)

func TestNew_ConventionalOrigins(t *testing.T) {
	topo := New("mango3.local", false, 0)

	assert.Equal(t, "http://mango3.local/", topo.HomeURL().String())
	assert.Equal(t, "http://accounts.mango3.local/login", topo.LoginURL().String())
	assert.Equal(t, "http://accounts.mango3.local/register", topo.RegisterURL().String())
	assert.Equal(t, "http://studio.mango3.local/new-website", topo.NewWebsiteURL().String())
	assert.Equal(t, "http://my-account.mango3.local/", topo.URL(MyAccount, "/").String())
	assert.Equal(t, "http://blog.mango3.local/", topo.WebsiteURL("Blog").String())
	assert.Equal(t,
		"http://mango3.local/search?q=Some%20unexistent%20website&tab=websites",
		topo.SearchURL("Some unexistent website", "websites").String())
}

func TestNew_PortAndScheme(t *testing.T) {
	topo := New("mango3.local", true, 8443)
	assert.Equal(t, "https://admin.mango3.local:8443/", topo.URL(Admin, "").String())

	std := New("mango3.local", true, 443)
	assert.Equal(t, "https://admin.mango3.local/", std.URL(Admin, "/").String())
}

func TestOrigin_NormalizesNames(t *testing.T) {
	topo := New("mango3.local", false, 0)
	for _, name := range []string{"my-account", "my_account", "MyAccount"} {
		e, err := topo.Origin(name)
		require.NoError(t, err, name)
		assert.Equal(t, "my-account.mango3.local", e.Host, name)
	}
	_, err := topo.Origin("billing")
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))
}

func TestLoad_OverridesOrigins(t *testing.T) {
	doc := `
domain: example.test
port: 9000
origins:
  accounts: https://login.example.test
  websites_preview: http://preview.example.test:9000
`
	topo, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "https://login.example.test/login", topo.LoginURL().String())
	assert.Equal(t, "http://example.test:9000/", topo.HomeURL().String())
	assert.Equal(t, "http://preview.example.test:9000/", topo.URL("websites-preview", "/").String())
	assert.Contains(t, topo.Names(), "websites-preview")
}

func TestLoad_RejectsUnknownFieldsAndBadURLs(t *testing.T) {
	_, err := Load(strings.NewReader("domian: typo.test\n"))
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))

	_, err = Load(strings.NewReader("origins:\n  home: /relative\n"))
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))

	_, err = Load(strings.NewReader("domain: 'not a host'\n"))
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}

func TestLoad_EmptyDocumentUsesDefaults(t *testing.T) {
	topo, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "http://mango3.local/", topo.HomeURL().String())
}

func TestNameForHost(t *testing.T) {
	topo := New("mango3.local", false, 8080)

	name, ok := topo.NameForHost("accounts.mango3.local:8080")
	assert.True(t, ok)
	assert.Equal(t, Accounts, name)

	name, ok = topo.NameForHost("mango3.local:8080")
	assert.True(t, ok)
	assert.Equal(t, Home, name)

	name, ok = topo.NameForHost("my-blog.mango3.local:8080")
	assert.True(t, ok)
	assert.Empty(t, name)

	_, ok = topo.NameForHost("evil.test")
	assert.False(t, ok)
}

func TestTable_ListsEveryOrigin(t *testing.T) {
	table := New("mango3.local", false, 0).Table()
	for _, name := range []string{Home, Accounts, Admin, MyAccount, Studio, Uploads} {
		assert.Contains(t, table, name)
	}
}
