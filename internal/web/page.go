package web

import (
	"github.com/kuitang/mango3-e2e/internal/db"
)

// Links are the cross-origin URLs every page header needs.
type Links struct {
	Home      string
	Login     string
	Register  string
	Logout    string
	MyAccount string
	Studio    string
	Admin     string
}

// PageData is the data passed to every template.
type PageData struct {
	Title string
	User  *db.User
	Links Links

	// OverlayDelayMS postpones the is-done class on the loading overlay.
	OverlayDelayMS int64

	Flash       string
	Error       string
	FieldErrors map[string]string
	Form        map[string]string

	// Data is the page-specific payload.
	Data any
}

// FieldError returns the message for a form field, or "".
func (p *PageData) FieldError(field string) string {
	return p.FieldErrors[field]
}

// Value returns the submitted value of a form field, or "".
func (p *PageData) Value(field string) string {
	return p.Form[field]
}
