// Package urlutil maps request hosts onto the subdomains of one parent
// domain.
package urlutil

import (
	"net"
	"strings"
)

// HostWithoutPort lowercases host and strips its port and trailing dot.
func HostWithoutPort(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

// SubdomainOf returns the labels of host in front of domain. The apex yields
// ("", true); a host outside domain yields ("", false).
func SubdomainOf(host, domain string) (string, bool) {
	host, domain = HostWithoutPort(host), HostWithoutPort(domain)
	switch {
	case host == "" || domain == "":
		return "", false
	case host == domain:
		return "", true
	}
	sub, ok := strings.CutSuffix(host, "."+domain)
	if !ok || sub == "" {
		return "", false
	}
	return sub, true
}
