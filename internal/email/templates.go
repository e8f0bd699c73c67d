package email

// Template names
const (
	TemplateWelcome        = "welcome"
	TemplateWebsiteCreated = "website_created"
)

// WelcomeData is sent after registration.
type WelcomeData struct {
	Username string
	FullName string
	LoginURL string
}

// WebsiteCreatedData is sent when a studio user creates a website.
type WebsiteCreatedData struct {
	FullName    string
	WebsiteName string
	WebsiteURL  string
}
