package email

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/kuitang/mango3-e2e/internal/obs"
)

// EmailService sends templated emails.
type EmailService interface {
	// Send sends an email using the named template. data must be the
	// template's data type (WelcomeData for TemplateWelcome, ...).
	Send(to, templateName string, data any) error
}

// SentEmail is a captured email.
type SentEmail struct {
	To       string
	Template string
	Data     any
}

// MockEmailService captures emails instead of sending them. With an outbox
// each email is also written there as one JSON file, named so that a lexical
// listing is send order; an out-of-process harness reads it to follow
// links from emails.
type MockEmailService struct {
	mu     sync.Mutex
	sent   []SentEmail
	outbox afero.Fs
	seq    uint64
}

// NewMockEmailService creates a mock writing to MOCK_EMAIL_OUTBOX_DIR, if set.
func NewMockEmailService() *MockEmailService {
	return NewMockEmailServiceWithOutbox(strings.TrimSpace(os.Getenv("MOCK_EMAIL_OUTBOX_DIR")))
}

// NewMockEmailServiceWithOutbox creates a mock writing to outboxDir on the
// local disk. An empty outboxDir keeps emails in memory only.
func NewMockEmailServiceWithOutbox(outboxDir string) *MockEmailService {
	if outboxDir == "" {
		return &MockEmailService{}
	}
	return NewMockEmailServiceWithFs(afero.NewOsFs(), outboxDir)
}

// NewMockEmailServiceWithFs creates a mock writing to dir on fs.
func NewMockEmailServiceWithFs(fs afero.Fs, dir string) *MockEmailService {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		obs.Pkg("email").Warn("outbox_dir_unavailable", "dir", dir, "error", err)
		return &MockEmailService{}
	}
	return &MockEmailService{outbox: afero.NewBasePathFs(fs, dir)}
}

// Send captures the email.
func (m *MockEmailService) Send(to, templateName string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentEmail{To: to, Template: templateName, Data: data})

	event := outboxEvent{
		To:             to,
		Template:       templateName,
		SentAtUnixNano: time.Now().UnixNano(),
	}
	switch d := data.(type) {
	case WelcomeData:
		event.Name, event.Link = d.Username, d.LoginURL
	case WebsiteCreatedData:
		event.Name, event.Link = d.WebsiteName, d.WebsiteURL
	default:
		event.RawData = fmt.Sprintf("%+v", data)
	}
	obs.Pkg("email").Info("mock_email_sent",
		slog.String("to", to),
		slog.String("template", templateName),
		slog.String("link", event.Link),
	)
	return m.writeOutbox(event)
}

// Sent returns a copy of every captured email in send order.
func (m *MockEmailService) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.sent...)
}

// To returns the captured emails addressed to addr.
func (m *MockEmailService) To(addr string) []SentEmail {
	var out []SentEmail
	for _, e := range m.Sent() {
		if strings.EqualFold(e.To, addr) {
			out = append(out, e)
		}
	}
	return out
}

// LastEmail returns the most recently sent email, or the zero value.
func (m *MockEmailService) LastEmail() SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentEmail{}
	}
	return m.sent[len(m.sent)-1]
}

// Clear forgets captured emails. Outbox files are left for the reader.
func (m *MockEmailService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// Count returns the number of captured emails.
func (m *MockEmailService) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type outboxEvent struct {
	Sequence       uint64 `json:"sequence"`
	To             string `json:"to"`
	Template       string `json:"template"`
	Link           string `json:"link,omitempty"`
	Name           string `json:"name,omitempty"`
	RawData        string `json:"raw_data,omitempty"`
	SentAtUnixNano int64  `json:"sent_at_unix_nano"`
}

// writeOutbox writes event under a temporary name and renames it, so a
// reader never sees a partial file.
func (m *MockEmailService) writeOutbox(event outboxEvent) error {
	if m.outbox == nil {
		return nil
	}
	m.seq++
	event.Sequence = m.seq

	name := fmt.Sprintf("%020d-%s-%s.json", event.Sequence, outboxComponent(event.Template), outboxComponent(event.To))
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}
	tmp := name + ".tmp"
	if err := afero.WriteFile(m.outbox, tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write outbox file: %w", err)
	}
	if err := m.outbox.Rename(tmp, name); err != nil {
		_ = m.outbox.Remove(tmp)
		return fmt.Errorf("rename outbox file: %w", err)
	}
	return nil
}

var unsafeOutboxChars = regexp.MustCompile(`[^a-zA-Z0-9._@-]+`)

func outboxComponent(input string) string {
	safe := strings.TrimSpace(input)
	if safe == "" {
		return "unknown"
	}
	return unsafeOutboxChars.ReplaceAllString(safe, "_")
}
