package e2e

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/mango3-e2e/internal/config"
	"github.com/kuitang/mango3-e2e/internal/errs"
	"github.com/kuitang/mango3-e2e/internal/storagestate"
	"github.com/kuitang/mango3-e2e/internal/topology"
)

func newUnitEnv(suite string) *Env {
	return &Env{
		Config:   &config.HarnessConfig{},
		Topology: topology.New("mango3.local", false, 0),
		Store:    storagestate.NewStore(afero.NewMemMapFs(), "/state"),
		Suite:    suite,
	}
}

func sessionState(value string) *storagestate.State {
	return &storagestate.State{
		Cookies: []storagestate.Cookie{{
			Name:     "_mango3_session",
			Value:    value,
			Domain:   "mango3.local",
			Path:     "/",
			Expires:  -1,
			HTTPOnly: true,
			SameSite: "Lax",
		}},
		Origins: []storagestate.Origin{},
	}
}

func TestFixture_BaseNeverReadsTheStore(t *testing.T) {
	env := newUnitEnv("admin")
	opts, err := env.Test().ContextOptions()
	require.NoError(t, err)
	assert.Nil(t, opts.StorageState)
	_, ok := env.Test().Key()
	assert.False(t, ok)
}

func TestFixture_MissingSessionFailsFast(t *testing.T) {
	env := newUnitEnv("admin")
	_, err := env.TestAsUser().ContextOptions()
	require.Error(t, err)
	assert.True(t, errors.Is(err, storagestate.ErrNoSession))
	assert.True(t, errs.Is(err, errs.FailedPrecondition))
	assert.Contains(t, err.Error(), "no prior session found for admin/user")
}

func TestFixture_AllowMissingSessionStartsUnauthenticated(t *testing.T) {
	env := newUnitEnv("admin")
	opts, err := env.TestAsUser().AllowMissingSession().ContextOptions()
	require.NoError(t, err)
	assert.Nil(t, opts.StorageState)

	env.Config.AllowMissingSession = true
	opts, err = env.TestAsAdmin().ContextOptions()
	require.NoError(t, err)
	assert.Nil(t, opts.StorageState)
}

func TestFixture_SeedsFromItsOwnRole(t *testing.T) {
	env := newUnitEnv("admin")
	require.NoError(t, env.Store.Write(storagestate.Key{Suite: "admin", Role: storagestate.RoleUser}, sessionState("user-session")))
	require.NoError(t, env.Store.Write(storagestate.Key{Suite: "admin", Role: storagestate.RoleAdmin}, sessionState("admin-session")))

	userOpts, err := env.TestAsUser().ContextOptions()
	require.NoError(t, err)
	require.NotNil(t, userOpts.StorageState)
	require.Len(t, userOpts.StorageState.Cookies, 1)
	assert.Equal(t, "user-session", userOpts.StorageState.Cookies[0].Value)

	adminOpts, err := env.TestAsAdmin().ContextOptions()
	require.NoError(t, err)
	assert.Equal(t, "admin-session", adminOpts.StorageState.Cookies[0].Value)
}

func TestFixture_DoesNotMutateTheStore(t *testing.T) {
	env := newUnitEnv("studio")
	key := storagestate.Key{Suite: "studio", Role: storagestate.RoleUser}
	require.NoError(t, env.Store.Write(key, sessionState("v1")))
	raw, err := env.Store.Read(key)
	require.NoError(t, err)
	for range 3 {
		_, err := env.TestAsUser().ContextOptions()
		require.NoError(t, err)
	}
	after, err := env.Store.Read(key)
	require.NoError(t, err)
	assert.Equal(t, raw, after)
}

func TestFixture_SuitesAreIsolated(t *testing.T) {
	env := newUnitEnv("accounts")
	require.NoError(t, env.Store.Write(storagestate.Key{Suite: "admin", Role: storagestate.RoleUser}, sessionState("x")))
	_, err := env.TestAsUser().ContextOptions()
	assert.True(t, errors.Is(err, storagestate.ErrNoSession))
}

func TestLoginMock_MatchesExactURLOnly(t *testing.T) {
	env := newUnitEnv("admin")
	m := &LoginMock{target: env.Topology.LoginURL()}

	assert.True(t, m.Matches("http://accounts.mango3.local/login"))
	for _, u := range []string{
		"http://accounts.mango3.local/login?next=/",
		"http://accounts.mango3.local/login/extra",
		"http://accounts.mango3.local/register",
		"http://admin.mango3.local/login",
		"http://accounts.mango3.local/static/login.css",
		"not a url",
	} {
		assert.False(t, m.Matches(u), u)
	}
	assert.Empty(t, m.Hits())
}

func TestHostResolverRules(t *testing.T) {
	assert.Equal(t, "MAP *.mango3.local 127.0.0.1, MAP mango3.local 127.0.0.1", hostResolverRules("mango3.local"))
}
