package email

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestResendRenderTemplate_KnownTemplates(t *testing.T) {
	t.Parallel()
	svc := &ResendEmailService{}

	subject, html := svc.renderTemplate(TemplateWelcome, WelcomeData{
		Username: "ada",
		FullName: "Ada Lovelace",
		LoginURL: "http://accounts.mango3.local/login",
	})
	if !strings.Contains(subject, "Welcome") {
		t.Fatalf("unexpected welcome subject: %q", subject)
	}
	if !strings.Contains(html, "Ada Lovelace") || !strings.Contains(html, "http://accounts.mango3.local/login") {
		t.Fatalf("welcome html missing name or link")
	}

	subject, html = svc.renderTemplate(TemplateWebsiteCreated, WebsiteCreatedData{
		FullName:    "Ada",
		WebsiteName: "Engines",
		WebsiteURL:  "http://engines.mango3.local",
	})
	if !strings.Contains(subject, "Engines") {
		t.Fatalf("unexpected website subject: %q", subject)
	}
	if !strings.Contains(html, "http://engines.mango3.local") {
		t.Fatalf("website html missing link")
	}
}

func TestResendRenderTemplate_EscapesUserInput(t *testing.T) {
	t.Parallel()
	svc := &ResendEmailService{}
	_, html := svc.renderTemplate(TemplateWelcome, WelcomeData{Username: "<script>alert(1)</script>"})
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func testResendRenderTemplate_UnknownTemplateFallsBack(t *rapid.T) {
	svc := &ResendEmailService{}
	template := rapid.StringMatching(`[a-z0-9._-]{1,32}`).Draw(t, "template")
	data := rapid.StringMatching(`[A-Za-z0-9 _:/.-]{1,64}`).Draw(t, "data")

	subject, html := svc.renderTemplate(template, data)
	if subject == "" || html == "" {
		t.Fatalf("fallback template should return non-empty subject/html: subject=%q html=%q", subject, html)
	}
	if !strings.Contains(subject, "mango3") {
		t.Fatalf("fallback subject mismatch: %q", subject)
	}
	if !strings.Contains(html, data) {
		t.Fatalf("fallback html should include input data: %q", html)
	}
}

func TestResendRenderTemplate_UnknownTemplateFallsBack(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testResendRenderTemplate_UnknownTemplateFallsBack)
}

func TestMockEmailService_CapturesAndWritesOutbox(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := NewMockEmailServiceWithFs(fs, "/outbox")

	require.NoError(t, svc.Send("ada@example.com", TemplateWelcome, WelcomeData{Username: "ada", LoginURL: "http://accounts.mango3.local/login"}))
	require.NoError(t, svc.Send("bob@example.com", TemplateWebsiteCreated, WebsiteCreatedData{WebsiteName: "Engines", WebsiteURL: "http://engines.mango3.local"}))

	assert.Equal(t, 2, svc.Count())
	assert.Equal(t, TemplateWebsiteCreated, svc.LastEmail().Template)
	require.Len(t, svc.To("ADA@example.com"), 1)
	assert.Equal(t, TemplateWelcome, svc.To("ada@example.com")[0].Template)

	entries, err := afero.ReadDir(fs, "/outbox")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "00000000000000000001-welcome-ada@example.com.json", entries[0].Name())

	raw, err := afero.ReadFile(fs, "/outbox/"+entries[0].Name())
	require.NoError(t, err)
	var event outboxEvent
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.EqualValues(t, 1, event.Sequence)
	assert.Equal(t, "ada", event.Name)
	assert.Equal(t, "http://accounts.mango3.local/login", event.Link)

	svc.Clear()
	assert.Equal(t, 0, svc.Count())
	assert.Empty(t, svc.Sent())
	assert.Equal(t, SentEmail{}, svc.LastEmail())
}

func TestMockEmailService_MemoryOnly(t *testing.T) {
	svc := NewMockEmailServiceWithOutbox("")
	require.NoError(t, svc.Send("ada@example.com", "custom", map[string]string{"k": "v"}))
	assert.Equal(t, "custom", svc.LastEmail().Template)
}

func TestOutboxComponent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "unknown", outboxComponent("  "))
	assert.Equal(t, "a_b@example.com", outboxComponent("a/b@example.com"))
}
