// Package storagestate persists authenticated browser sessions in Playwright's
// native storage-state format so one login can be replayed by many tests.
//
// The store is a single-writer/many-reader artifact: one producer step per
// suite writes a key, every consumer reads a snapshot when its browser context
// is created. The store does no locking; ordering is declared by the suite.
package storagestate

import (
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/mango3-e2e/internal/errs"
	"github.com/kuitang/mango3-e2e/internal/logutil"
)

// Cookie mirrors a cookie entry of a Playwright storage-state file.
// Expires is seconds since the epoch; -1 marks a session cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// NameValue is one localStorage entry.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Origin holds the localStorage entries of one origin.
type Origin struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

// State is a captured browser session.
type State struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// FromPlaywright converts a live context snapshot.
func FromPlaywright(ps *playwright.StorageState) *State {
	st := &State{Cookies: []Cookie{}, Origins: []Origin{}}
	if ps == nil {
		return st
	}
	for _, c := range ps.Cookies {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			cookie.SameSite = string(*c.SameSite)
		}
		st.Cookies = append(st.Cookies, cookie)
	}
	for _, o := range ps.Origins {
		origin := Origin{Origin: o.Origin, LocalStorage: []NameValue{}}
		for _, kv := range o.LocalStorage {
			origin.LocalStorage = append(origin.LocalStorage, NameValue{Name: kv.Name, Value: kv.Value})
		}
		st.Origins = append(st.Origins, origin)
	}
	return st
}

// Optional converts the state into the form accepted by
// BrowserNewContextOptions.StorageState.
func (s *State) Optional() *playwright.OptionalStorageState {
	out := &playwright.OptionalStorageState{}
	for _, c := range s.Cookies {
		oc := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			Expires:  playwright.Float(c.Expires),
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
		}
		if c.SameSite != "" {
			same := playwright.SameSiteAttribute(c.SameSite)
			oc.SameSite = &same
		}
		out.Cookies = append(out.Cookies, oc)
	}
	for _, o := range s.Origins {
		origin := playwright.Origin{Origin: o.Origin}
		for _, kv := range o.LocalStorage {
			origin.LocalStorage = append(origin.LocalStorage, playwright.NameValue{Name: kv.Name, Value: kv.Value})
		}
		out.Origins = append(out.Origins, origin)
	}
	return out
}

// Validate reports every structural problem in the state at once.
func (s *State) Validate() error {
	var result *multierror.Error
	seen := make(map[string]bool)
	for i, c := range s.Cookies {
		if c.Name == "" {
			result = multierror.Append(result, fmt.Errorf("cookies[%d]: name is empty", i))
		}
		if c.Domain == "" {
			result = multierror.Append(result, fmt.Errorf("cookies[%d] %q: domain is empty", i, c.Name))
		}
		if c.Path == "" {
			result = multierror.Append(result, fmt.Errorf("cookies[%d] %q: path is empty", i, c.Name))
		}
		switch c.SameSite {
		case "", "Strict", "Lax", "None":
		default:
			result = multierror.Append(result, fmt.Errorf("cookies[%d] %q: sameSite %q is not Strict, Lax or None", i, c.Name, c.SameSite))
		}
		id := c.Name + "\x00" + c.Domain + "\x00" + c.Path
		if seen[id] {
			result = multierror.Append(result, fmt.Errorf("cookies[%d] %q: duplicate for domain %s path %s", i, c.Name, c.Domain, c.Path))
		}
		seen[id] = true
	}
	for i, o := range s.Origins {
		u, err := url.Parse(o.Origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("origins[%d]: %q is not an absolute origin", i, o.Origin))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return errs.Wrap(errs.InvalidArgument, "invalid storage state", err)
	}
	return nil
}

// LiveCookies returns the cookies that have not expired at now.
func (s *State) LiveCookies(now time.Time) []Cookie {
	var live []Cookie
	for _, c := range s.Cookies {
		if c.Expires < 0 || c.Expires == 0 || time.Unix(int64(c.Expires), 0).After(now) {
			live = append(live, c)
		}
	}
	return live
}

// Cookie returns the first cookie with the given name.
func (s *State) Cookie(name string) (Cookie, bool) {
	for _, c := range s.Cookies {
		if c.Name == name {
			return c, true
		}
	}
	return Cookie{}, false
}

// CookieSummary is a redacted view of one cookie.
type CookieSummary struct {
	Name        string
	Domain      string
	Path        string
	Fingerprint string
	Expires     string
	Expired     bool
}

// Summary is a redacted, printable view of a State.
type Summary struct {
	Cookies []CookieSummary
	Origins map[string]int // origin -> number of localStorage entries
}

// Summarize renders the state with cookie values replaced by fingerprints.
func (s *State) Summarize(now time.Time) Summary {
	sum := Summary{Origins: make(map[string]int)}
	for _, c := range s.Cookies {
		cs := CookieSummary{
			Name:        c.Name,
			Domain:      c.Domain,
			Path:        c.Path,
			Fingerprint: logutil.Fingerprint(c.Value),
			Expires:     "session",
		}
		if c.Expires > 0 {
			at := time.Unix(int64(c.Expires), 0).UTC()
			cs.Expires = at.Format(time.RFC3339)
			cs.Expired = !at.After(now)
		}
		sum.Cookies = append(sum.Cookies, cs)
	}
	sort.Slice(sum.Cookies, func(i, j int) bool {
		if sum.Cookies[i].Domain != sum.Cookies[j].Domain {
			return sum.Cookies[i].Domain < sum.Cookies[j].Domain
		}
		return sum.Cookies[i].Name < sum.Cookies[j].Name
	})
	for _, o := range s.Origins {
		sum.Origins[o.Origin] += len(o.LocalStorage)
	}
	return sum
}
