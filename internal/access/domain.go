// Package access decides whether anonymous widget traffic may use a bot.
//
// The hostname helpers in this file are pure: malformed input degrades to an
// empty result or false and never panics or returns an error. Security
// decisions are made by Validator, not here.
package access

import (
	"net"
	"net/url"
	"strings"
)

const wildcardPrefix = "*."

// HostnameFromURLLike extracts a lower-cased hostname from a full URL, a bare
// origin, or a bare hostname with optional port. The value is parsed as-is
// first and retried with an https scheme so bare domains resolve too.
func HostnameFromURLLike(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	if host, ok := parseHost(value); ok {
		return host, true
	}
	return parseHost("https://" + value)
}

func parseHost(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" || strings.ContainsAny(host, " /\\@") {
		return "", false
	}
	return host, true
}

// NormalizeAllowedDomain canonicalizes an allow-list pattern. Wildcard
// patterns keep their "*." prefix around a normalized suffix. Unparseable
// patterns return false and must be skipped by callers.
func NormalizeAllowedDomain(pattern string) (string, bool) {
	p := strings.ToLower(strings.TrimSpace(pattern))
	if p == "" {
		return "", false
	}
	if strings.HasPrefix(p, wildcardPrefix) {
		suffix, ok := HostnameFromURLLike(strings.TrimPrefix(p, wildcardPrefix))
		if !ok {
			return "", false
		}
		return wildcardPrefix + suffix, true
	}
	return HostnameFromURLLike(p)
}

// IsHostnameAllowed reports whether hostname matches any pattern. A wildcard
// "*.X" admits X and every subdomain of X. A bare domain X admits X and, by
// the same suffix rule, its subdomains as well.
func IsHostnameAllowed(hostname string, patterns []string) bool {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return false
	}
	for _, raw := range patterns {
		allowed, ok := NormalizeAllowedDomain(raw)
		if !ok {
			continue
		}
		if hostname == allowed {
			return true
		}
		suffix := strings.TrimPrefix(allowed, wildcardPrefix)
		if hostname == suffix || strings.HasSuffix(hostname, "."+suffix) {
			return true
		}
	}
	return false
}

// IsLocalhostHostname reports whether hostname points at the local machine.
func IsLocalhostHostname(hostname string) bool {
	h := strings.ToLower(strings.TrimSpace(hostname))
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	switch h {
	case "localhost", "127.0.0.1", "0.0.0.0", "::1":
		return true
	}
	return strings.HasSuffix(h, ".localhost")
}

// HasLocalhostInAllowedDomains reports whether the allow-list opts into the
// local development exception via "localhost" or "*.localhost".
func HasLocalhostInAllowedDomains(patterns []string) bool {
	for _, raw := range patterns {
		p, ok := NormalizeAllowedDomain(raw)
		if !ok {
			continue
		}
		if p == "localhost" || p == wildcardPrefix+"localhost" {
			return true
		}
	}
	return false
}

// RequestHostname strips the port from an HTTP Host header value.
func RequestHostname(hostHeader string) string {
	hostHeader = strings.TrimSpace(hostHeader)
	if host, _, err := net.SplitHostPort(hostHeader); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostHeader)
}
