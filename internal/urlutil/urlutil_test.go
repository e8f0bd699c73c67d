package urlutil

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func TestHostWithoutPort(t *testing.T) {
	cases := map[string]string{
		"Accounts.Mango3.Local:8080": "accounts.mango3.local",
		"mango3.local.":              "mango3.local",
		" mango3.local ":             "mango3.local",
		"[::1]:443":                  "::1",
		"":                           "",
	}
	for in, want := range cases {
		if got := HostWithoutPort(in); got != want {
			t.Errorf("HostWithoutPort(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSubdomainOf(t *testing.T) {
	cases := []struct {
		host    string
		sub     string
		matched bool
	}{
		{"mango3.local:8080", "", true},
		{"MANGO3.local", "", true},
		{"accounts.mango3.local:8080", "accounts", true},
		{"my-account.mango3.local", "my-account", true},
		{"blog.mango3.local.", "blog", true},
		{"evilmango3.local", "", false},
		{"mango3.local.evil.test", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		sub, ok := SubdomainOf(tc.host, "mango3.local")
		if sub != tc.sub || ok != tc.matched {
			t.Errorf("SubdomainOf(%q) = (%q, %v), want (%q, %v)", tc.host, sub, ok, tc.sub, tc.matched)
		}
	}
}

func TestSubdomainOf_RoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		label := rapid.StringMatching(`[a-z][a-z0-9-]{0,20}[a-z0-9]`).Draw(rt, "label")
		port := rapid.IntRange(1, 65535).Draw(rt, "port")
		sub, ok := SubdomainOf(fmt.Sprintf("%s.mango3.local:%d", label, port), "mango3.local")
		if !ok || sub != label {
			rt.Fatalf("SubdomainOf lost label %q: got (%q, %v)", label, sub, ok)
		}
	})
}
