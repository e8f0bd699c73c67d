package site

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	subdomainPattern = regexp.MustCompile(`^[[:alnum:]]+(?:-[[:alnum:]]+)*$`)
	slugStrip        = regexp.MustCompile(`[^[:alnum:]]+`)
)

// reservedSubdomains can never be claimed by a user website.
var reservedSubdomains = []string{
	"_dmarc", "account", "accounts", "admin", "administrator", "api", "asset",
	"assets", "app", "apps", "auth", "authentication", "authenticator", "blog",
	"cdn", "cloud", "dash", "dashboard", "dmarc", "dns", "editor", "email",
	"hosting", "http", "https", "forum", "graphql", "groups", "hashtag",
	"hashtags", "imap", "inbound", "legal", "login", "mail", "mango", "mango3",
	"monitor", "mta", "my-account", "new-website", "ns", "pkg", "pop3", "pop3s",
	"post", "posts", "profile", "profiles", "register", "reset-password", "root",
	"search", "shop", "sign-in", "sign-out", "sign-up", "signin", "signout",
	"signup", "smtp", "smtps", "stat", "stats", "status", "store", "studio",
	"upload", "uploads", "user", "users", "web", "webapi", "webapp", "webapps",
	"webmail", "website", "websites", "wiki", "www",
}

// Slugify derives a subdomain from a website name: "My Blog!" → "my-blog".
func Slugify(name string) string {
	return strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// WebsiteInput is the new-website form.
type WebsiteInput struct {
	Name        string
	Subdomain   string
	Description string
}

// Validate checks the form. taken lists subdomains already in use by the
// deployment's own origins, in addition to the reserved list.
func (in WebsiteInput) Validate(taken []string) error {
	blocked := make([]any, 0, len(reservedSubdomains)+len(taken))
	for _, name := range reservedSubdomains {
		blocked = append(blocked, name)
	}
	for _, name := range taken {
		blocked = append(blocked, name)
	}
	return validation.Errors{
		"name": validation.Validate(in.Name, validation.Required, validation.RuneLength(3, 256)),
		"subdomain": validation.Validate(in.Subdomain,
			validation.Required,
			validation.RuneLength(3, 63),
			validation.Match(subdomainPattern).Error("must contain only letters, digits and inner hyphens"),
			validation.NotIn(blocked...).Error("is reserved"),
		),
		"description": validation.Validate(in.Description, validation.RuneLength(0, 1024)),
	}.Filter()
}
