package email

import (
	"fmt"
	"html"

	"github.com/resend/resend-go/v3"
)

// ResendEmailService implements EmailService using the Resend API.
type ResendEmailService struct {
	client      *resend.Client
	fromAddress string
}

// NewResendEmailService creates a Resend-backed service. fromAddress must be
// verified in Resend.
func NewResendEmailService(apiKey, fromAddress string) *ResendEmailService {
	return &ResendEmailService{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
	}
}

// Send renders the template and sends it through Resend.
func (r *ResendEmailService) Send(to, templateName string, data any) error {
	subject, body := r.renderTemplate(templateName, data)

	params := &resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}

	if _, err := r.client.Emails.Send(params); err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	return nil
}

// renderTemplate returns the subject and HTML body. Unknown templates and
// mismatched data fall back to a generic message.
func (r *ResendEmailService) renderTemplate(templateName string, data any) (subject, body string) {
	switch d := data.(type) {
	case WelcomeData:
		if templateName == TemplateWelcome {
			return "Welcome to mango3!", renderWelcomeHTML(d)
		}
	case WebsiteCreatedData:
		if templateName == TemplateWebsiteCreated {
			return "Your website " + d.WebsiteName + " is live", renderWebsiteCreatedHTML(d)
		}
	}
	return "Message from mango3", fmt.Sprintf("<p>%s</p>", html.EscapeString(fmt.Sprintf("%+v", data)))
}

const emailLayout = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>%s</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <div style="background: #ffb300; padding: 24px; border-radius: 10px 10px 0 0;">
        <h1 style="color: white; margin: 0; font-size: 24px;">mango3</h1>
    </div>
    <div style="background: #ffffff; padding: 24px; border: 1px solid #e0e0e0; border-top: none; border-radius: 0 0 10px 10px;">
%s
        <hr style="border: none; border-top: 1px solid #e0e0e0; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">This is an automated message from mango3. Please do not reply to this email.</p>
    </div>
</body>
</html>`

func renderWelcomeHTML(data WelcomeData) string {
	name := data.FullName
	if name == "" {
		name = data.Username
	}
	content := fmt.Sprintf(`        <h2 style="margin-top: 0;">Welcome, %s!</h2>
        <p>Your account <strong>%s</strong> is ready.</p>
        <p><a href="%s">Log in to mango3</a></p>`,
		html.EscapeString(name), html.EscapeString(data.Username), html.EscapeString(data.LoginURL))
	return fmt.Sprintf(emailLayout, "Welcome to mango3!", content)
}

func renderWebsiteCreatedHTML(data WebsiteCreatedData) string {
	content := fmt.Sprintf(`        <h2 style="margin-top: 0;">%s is live</h2>
        <p>Hi %s, your new website is published at <a href="%s">%s</a>.</p>`,
		html.EscapeString(data.WebsiteName), html.EscapeString(data.FullName),
		html.EscapeString(data.WebsiteURL), html.EscapeString(data.WebsiteURL))
	return fmt.Sprintf(emailLayout, "Your website is live", content)
}
