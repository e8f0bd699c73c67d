// Package topology models the origins of a mango3 deployment. An Endpoint is
// a fully-qualified URL value (scheme, host, path, query, fragment) used both
// as a navigation target and as an expected redirect destination; a Topology
// maps logical origin names (home, accounts, admin, ...) to base Endpoints.
package topology

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/kuitang/mango3-e2e/internal/errs"
)

// Endpoint is an absolute URL under test. The zero value is invalid.
type Endpoint struct {
	Scheme   string
	Host     string // host[:port], lowercase
	Path     string // decoded path; "" and "/" are equivalent
	RawQuery string // already encoded
	Fragment string
}

// Parse parses an absolute http(s) URL into an Endpoint.
func Parse(raw string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("parse endpoint %q", raw), err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, errs.New(errs.InvalidArgument, fmt.Sprintf("endpoint %q must use http or https", raw))
	}
	if u.Host == "" {
		return Endpoint{}, errs.New(errs.InvalidArgument, fmt.Sprintf("endpoint %q has no host", raw))
	}
	return Endpoint{
		Scheme:   u.Scheme,
		Host:     normalizeHost(u.Scheme, u.Host),
		Path:     u.Path,
		RawQuery: u.RawQuery,
		Fragment: u.Fragment,
	}, nil
}

// MustParse is Parse for package-level constants and tests.
func MustParse(raw string) Endpoint {
	e, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return e
}

// IsZero reports whether e is the zero Endpoint.
func (e Endpoint) IsZero() bool {
	return e == Endpoint{}
}

// Origin returns scheme://host.
func (e Endpoint) Origin() string {
	return e.Scheme + "://" + e.Host
}

// Hostname returns the host without port.
func (e Endpoint) Hostname() string {
	if h, _, err := net.SplitHostPort(e.Host); err == nil {
		return h
	}
	return e.Host
}

// String renders the endpoint the way a browser reports it: the root path is "/".
func (e Endpoint) String() string {
	u := url.URL{
		Scheme:   e.Scheme,
		Host:     e.Host,
		Path:     normalizePath(e.Path),
		RawQuery: e.RawQuery,
		Fragment: e.Fragment,
	}
	return u.String()
}

// WithPath returns a copy of e at path, dropping query and fragment.
func (e Endpoint) WithPath(path string) Endpoint {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return Endpoint{Scheme: e.Scheme, Host: e.Host, Path: path}
}

// WithQuery returns a copy of e with key=value appended to the query. Values
// are percent-encoded the way encodeURIComponent does (space as %20).
func (e Endpoint) WithQuery(key, value string) Endpoint {
	pair := encodeComponent(key) + "=" + encodeComponent(value)
	if e.RawQuery == "" {
		e.RawQuery = pair
	} else {
		e.RawQuery += "&" + pair
	}
	return e
}

// WithFragment returns a copy of e with the given fragment.
func (e Endpoint) WithFragment(fragment string) Endpoint {
	e.Fragment = fragment
	return e
}

// SameOrigin reports whether two endpoints share scheme and host.
func (e Endpoint) SameOrigin(other Endpoint) bool {
	return strings.EqualFold(e.Scheme, other.Scheme) && e.Host == other.Host
}

// MatchOption relaxes Compare for variance a test explicitly expects.
type MatchOption func(*matchConfig)

type matchConfig struct {
	ignoreQueryKeys map[string]bool
	ignoreFragment  bool
}

// IgnoreQueryKeys whitelists query keys whose presence or value may vary.
func IgnoreQueryKeys(keys ...string) MatchOption {
	return func(c *matchConfig) {
		for _, k := range keys {
			c.ignoreQueryKeys[k] = true
		}
	}
}

// IgnoreFragment accepts any fragment on the actual URL.
func IgnoreFragment() MatchOption {
	return func(c *matchConfig) {
		c.ignoreFragment = true
	}
}

// Mismatch describes how an actual URL differs from an expected Endpoint.
type Mismatch struct {
	Expected string
	Actual   string
	Parts    []string // scheme, host, path, query, fragment
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("URL mismatch (%s)\n  expected: %s\n  actual:   %s",
		strings.Join(m.Parts, ", "), m.Expected, m.Actual)
}

// Compare checks actual against e. It returns nil on an exact match and an
// errs.Mismatch error wrapping *Mismatch otherwise. Prefix matches never pass.
// Path and query values are compared as encoded: "+" is not "%20" and
// "/log%69n" is not "/login". Query pair order is free.
func (e Endpoint) Compare(actual string, opts ...MatchOption) error {
	cfg := matchConfig{ignoreQueryKeys: map[string]bool{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	mismatch := &Mismatch{Expected: e.String(), Actual: actual}
	got, err := Parse(actual)
	if err != nil {
		mismatch.Parts = []string{"unparseable"}
		return errs.Wrap(errs.Mismatch, "actual URL is not an absolute http(s) URL", mismatch)
	}

	if !strings.EqualFold(e.Scheme, got.Scheme) {
		mismatch.Parts = append(mismatch.Parts, "scheme")
	}
	if normalizeHost(e.Scheme, e.Host) != got.Host {
		mismatch.Parts = append(mismatch.Parts, "host")
	}
	if escapedPath(e.Path) != rawPath(actual) {
		mismatch.Parts = append(mismatch.Parts, "path")
	}
	if !queryEqual(e.RawQuery, got.RawQuery, cfg.ignoreQueryKeys) {
		mismatch.Parts = append(mismatch.Parts, "query")
	}
	if !cfg.ignoreFragment && e.Fragment != got.Fragment {
		mismatch.Parts = append(mismatch.Parts, "fragment")
	}
	if len(mismatch.Parts) == 0 {
		return nil
	}
	return errs.Wrap(errs.Mismatch, "unexpected URL", mismatch)
}

// AsMismatch extracts the *Mismatch from a Compare error.
func AsMismatch(err error) (*Mismatch, bool) {
	var m *Mismatch
	if errors.As(err, &m) {
		return m, true
	}
	return nil, false
}

func queryEqual(expectedRaw, actualRaw string, ignore map[string]bool) bool {
	expected := queryPairs(expectedRaw, ignore)
	actual := queryPairs(actualRaw, ignore)
	if len(expected) != len(actual) {
		return false
	}
	sort.Strings(expected)
	sort.Strings(actual)
	for i := range expected {
		if expected[i] != actual[i] {
			return false
		}
	}
	return true
}

// queryPairs splits a raw query into its encoded key=value pairs, dropping
// pairs whose decoded key is ignored.
func queryPairs(raw string, ignore map[string]bool) []string {
	var pairs []string
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if ignore[key] {
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs
}

// escapedPath renders a decoded path the way a browser sends it.
func escapedPath(p string) string {
	u := url.URL{Path: normalizePath(p)}
	return u.EscapedPath()
}

// rawPath returns the path of rawURL exactly as written.
func rawPath(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return normalizePath(u.EscapedPath())
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

func normalizeHost(scheme, host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		return h
	}
	return host
}

// encodeComponent mirrors JavaScript's encodeURIComponent.
func encodeComponent(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	for _, r := range []string{"!", "'", "(", ")", "*", "~"} {
		escaped = strings.ReplaceAll(escaped, url.QueryEscape(r), r)
	}
	return escaped
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
