package topology

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/iancoleman/strcase"
	"gopkg.in/yaml.v3"

	"github.com/kuitang/mango3-e2e/internal/errs"
	"github.com/kuitang/mango3-e2e/internal/urlutil"
)

// Logical origin names.
const (
	Home      = "home"
	Accounts  = "accounts"
	Admin     = "admin"
	MyAccount = "my-account"
	Studio    = "studio"
	Uploads   = "uploads"
)

// DefaultDomain is the development domain used by the mango3 apps.
const DefaultDomain = "mango3.local"

// Topology maps logical origin names to base endpoints.
type Topology struct {
	Domain  string
	Secure  bool
	Port    int
	origins map[string]Endpoint
}

// fileFormat is the YAML shape accepted by Load.
type fileFormat struct {
	Domain  string            `yaml:"domain"`
	Secure  bool              `yaml:"secure"`
	Port    int               `yaml:"port"`
	Origins map[string]string `yaml:"origins"`
}

// New builds the conventional topology: home is the apex domain and every
// other origin is <name>.<domain>. A zero port means the scheme default.
func New(domain string, secure bool, port int) *Topology {
	t := &Topology{
		Domain:  strings.ToLower(strings.TrimSpace(domain)),
		Secure:  secure,
		Port:    port,
		origins: make(map[string]Endpoint),
	}
	t.origins[Home] = t.hostEndpoint(t.Domain)
	for _, name := range []string{Accounts, Admin, MyAccount, Studio, Uploads} {
		t.origins[name] = t.hostEndpoint(name + "." + t.Domain)
	}
	return t
}

// Load reads a YAML topology. Origins listed in the file override the
// conventional ones derived from domain/secure/port.
func Load(r io.Reader) (*Topology, error) {
	var f fileFormat
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, errs.Wrap(errs.InvalidArgument, "decode topology", err)
	}
	if f.Domain == "" {
		f.Domain = DefaultDomain
	}
	t := New(f.Domain, f.Secure, f.Port)
	for _, name := range SortedKeys(f.Origins) {
		if err := t.Set(name, f.Origins[name]); err != nil {
			return nil, err
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadFile reads a YAML topology from path.
func LoadFile(path string) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, fmt.Sprintf("open topology %s", path), err)
	}
	defer f.Close()
	return Load(f)
}

// NormalizeName maps "MyAccount", "my_account" and "my-account" to "my-account".
func NormalizeName(name string) string {
	return strcase.ToKebab(strings.TrimSpace(name))
}

// Set overrides the base URL of a logical origin.
func (t *Topology) Set(name, rawURL string) error {
	e, err := Parse(rawURL)
	if err != nil {
		return err
	}
	t.origins[NormalizeName(name)] = e.WithPath("/")
	return nil
}

// Origin returns the base endpoint for a logical origin.
func (t *Topology) Origin(name string) (Endpoint, error) {
	e, ok := t.origins[NormalizeName(name)]
	if !ok {
		return Endpoint{}, errs.New(errs.NotFound, fmt.Sprintf("unknown origin %q", name))
	}
	return e, nil
}

// MustOrigin is Origin for the well-known names.
func (t *Topology) MustOrigin(name string) Endpoint {
	e, err := t.Origin(name)
	if err != nil {
		panic(err)
	}
	return e
}

// URL returns the endpoint at path on the named origin.
func (t *Topology) URL(name, path string) Endpoint {
	return t.MustOrigin(name).WithPath(path)
}

// HomeURL is the home origin root.
func (t *Topology) HomeURL() Endpoint { return t.URL(Home, "/") }

// LoginURL is the accounts origin login page.
func (t *Topology) LoginURL() Endpoint { return t.URL(Accounts, "/login") }

// RegisterURL is the accounts origin registration page.
func (t *Topology) RegisterURL() Endpoint { return t.URL(Accounts, "/register") }

// NewWebsiteURL is the studio page that creates a website.
func (t *Topology) NewWebsiteURL() Endpoint { return t.URL(Studio, "/new-website") }

// WebsiteURL is the public origin of a user website.
func (t *Topology) WebsiteURL(subdomain string) Endpoint {
	return t.hostEndpoint(strings.ToLower(subdomain) + "." + t.Domain)
}

// SearchURL is the home search page for query, optionally on a tab.
func (t *Topology) SearchURL(query, tab string) Endpoint {
	e := t.URL(Home, "/search").WithQuery("q", query)
	if tab != "" {
		e = e.WithQuery("tab", tab)
	}
	return e
}

// Names returns the logical origin names in lexical order.
func (t *Topology) Names() []string {
	return SortedKeys(t.origins)
}

// NameForHost resolves a request host to a logical origin name. Hosts under
// the domain that are not a known origin resolve to ("", true): user websites.
func (t *Topology) NameForHost(host string) (string, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	bare := urlutil.HostWithoutPort(host)
	for _, name := range t.Names() {
		e := t.origins[name]
		if e.Host == host || e.Hostname() == bare {
			return name, true
		}
	}
	if _, ok := urlutil.SubdomainOf(host, t.Domain); ok {
		return "", true
	}
	return "", false
}

// Validate checks the topology is usable for navigation.
func (t *Topology) Validate() error {
	err := validation.ValidateStruct(t,
		validation.Field(&t.Domain, validation.Required, is.Host),
		validation.Field(&t.Port, validation.Min(0), validation.Max(65535)),
	)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "invalid topology", err)
	}
	for _, name := range []string{Home, Accounts} {
		if _, ok := t.origins[name]; !ok {
			return errs.New(errs.InvalidArgument, fmt.Sprintf("topology is missing required origin %q", name))
		}
	}
	return nil
}

// Table renders name → URL lines for diagnostics.
func (t *Topology) Table() string {
	var b strings.Builder
	for _, name := range t.Names() {
		fmt.Fprintf(&b, "%-12s %s\n", name, t.origins[name].String())
	}
	return b.String()
}

func (t *Topology) hostEndpoint(host string) Endpoint {
	scheme := "http"
	if t.Secure {
		scheme = "https"
	}
	if t.Port > 0 {
		host = host + ":" + strconv.Itoa(t.Port)
	}
	return Endpoint{Scheme: scheme, Host: normalizeHost(scheme, host), Path: "/"}
}
