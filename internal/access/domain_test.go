package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostnameFromURLLike(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"full url", "https://Widget.Example.com/page?x=1", "widget.example.com", true},
		{"origin with port", "http://localhost:3000", "localhost", true},
		{"bare hostname", "example.com", "example.com", true},
		{"bare hostname with port", "example.com:8080", "example.com", true},
		{"trailing dot", "https://example.com.", "example.com", true},
		{"surrounding whitespace", "  example.com  ", "example.com", true},
		{"empty", "", "", false},
		{"blank", "   ", "", false},
		{"space inside host", "exa mple.com", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := HostnameFromURLLike(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeAllowedDomain(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
		wantOK  bool
	}{
		{"example.com", "example.com", true},
		{"EXAMPLE.com", "example.com", true},
		{"https://example.com/path", "example.com", true},
		{"*.Example.com", "*.example.com", true},
		{"*.localhost", "*.localhost", true},
		{"", "", false},
		{"*.", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, ok := NormalizeAllowedDomain(tt.pattern)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsHostnameAllowed(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		patterns []string
		want     bool
	}{
		{"wildcard subdomain", "widget.example.com", []string{"*.example.com"}, true},
		{"wildcard apex", "example.com", []string{"*.example.com"}, true},
		{"wildcard other tld", "example.org", []string{"*.example.com"}, false},
		{"bare exact", "example.com", []string{"example.com"}, true},
		{"bare admits subdomain", "shop.example.com", []string{"example.com"}, true},
		{"suffix without dot boundary", "badexample.com", []string{"example.com"}, false},
		{"case insensitive", "Shop.Example.COM", []string{"EXAMPLE.com"}, true},
		{"invalid pattern skipped", "example.com", []string{"", "*.", "example.com"}, true},
		{"empty list", "example.com", nil, false},
		{"empty hostname", "", []string{"example.com"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHostnameAllowed(tt.hostname, tt.patterns))
		})
	}
}

func TestIsLocalhostHostname(t *testing.T) {
	for _, h := range []string{"localhost", "LOCALHOST", "127.0.0.1", "0.0.0.0", "::1", "[::1]", "app.localhost"} {
		assert.True(t, IsLocalhostHostname(h), h)
	}
	for _, h := range []string{"", "example.com", "localhost.example.com", "127.0.0.2"} {
		assert.False(t, IsLocalhostHostname(h), h)
	}
}

func TestHasLocalhostInAllowedDomains(t *testing.T) {
	assert.True(t, HasLocalhostInAllowedDomains([]string{"example.com", "localhost"}))
	assert.True(t, HasLocalhostInAllowedDomains([]string{"*.localhost"}))
	assert.True(t, HasLocalhostInAllowedDomains([]string{"http://localhost:5173"}))
	assert.False(t, HasLocalhostInAllowedDomains([]string{"example.com"}))
	assert.False(t, HasLocalhostInAllowedDomains(nil))
}

func TestRequestHostname(t *testing.T) {
	assert.Equal(t, "localhost", RequestHostname("localhost:8080"))
	assert.Equal(t, "api.example.com", RequestHostname("API.example.com"))
	assert.Equal(t, "::1", RequestHostname("[::1]:8080"))
}
