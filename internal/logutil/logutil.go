// Package logutil keeps session secrets out of logs and test output.
package logutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var sensitiveFragments = []string{"token", "secret", "password", "apikey", "session", "auth"}

// Sensitive reports whether a header, form field or cookie name likely
// carries a credential.
func Sensitive(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("-", "", "_", "").Replace(n)
	for _, frag := range sensitiveFragments {
		if strings.Contains(n, frag) {
			return true
		}
	}
	return false
}

// Fingerprint returns a short digest of value so two lines can be compared
// without printing it.
func Fingerprint(value string) string {
	if value == "" {
		return "<empty>"
	}
	sum := sha256.Sum256([]byte(value))
	return "sha256:" + hex.EncodeToString(sum[:])[:12]
}

// Cookies renders a Cookie or Set-Cookie value with every cookie value
// replaced by its fingerprint. Attributes after the first pair are kept.
func Cookies(header string) string {
	pairs := strings.Split(header, ";")
	for i, pair := range pairs {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			pairs[i] = strings.TrimSpace(pair)
			continue
		}
		if i > 0 && isCookieAttribute(name) {
			pairs[i] = name + "=" + value
			continue
		}
		pairs[i] = name + "=" + Fingerprint(value)
	}
	return strings.Join(pairs, "; ")
}

func isCookieAttribute(name string) bool {
	switch strings.ToLower(name) {
	case "domain", "path", "expires", "max-age", "samesite":
		return true
	}
	return false
}

// Headers returns stable, redacted header text. Cookies keep their names;
// other sensitive headers are dropped to [REDACTED].
func Headers(h http.Header) string {
	if len(h) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		values := append([]string(nil), h.Values(k)...)
		lower := strings.ToLower(k)
		for i, v := range values {
			switch {
			case lower == "cookie" || lower == "set-cookie":
				values[i] = Cookies(v)
			case Sensitive(k):
				values[i] = "[REDACTED]"
			}
		}
		parts = append(parts, fmt.Sprintf("%s=%q", lower, strings.Join(values, ", ")))
	}
	return strings.Join(parts, "; ")
}

// Preview returns a one-line preview of page content cut at max bytes.
func Preview(value string, max int) string {
	s := strings.Join(strings.Fields(value), " ")
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
