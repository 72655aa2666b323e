package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ginKeyClientIP = "client_ip"

	// UnknownClientIP keys rate-limit windows for requests with no usable
	// forwarding headers.
	UnknownClientIP = "unknown"
)

// ClientIPFromRequest returns the first X-Forwarded-For entry, then
// X-Real-Ip. The service always runs behind a proxy, so the socket address
// is never used.
func ClientIPFromRequest(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	return UnknownClientIP
}

// ClientIP resolves the client address once per request.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ginKeyClientIP, ClientIPFromRequest(c.Request))
		c.Next()
	}
}

// GetClientIP returns the address resolved by ClientIP, resolving it on the
// spot when the middleware is not installed.
func GetClientIP(c *gin.Context) string {
	if v := c.GetString(ginKeyClientIP); v != "" {
		return v
	}
	return ClientIPFromRequest(c.Request)
}
