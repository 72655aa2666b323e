package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	apperrors "chatpilot.io/pilot/internal/pkg/errors"
)

// ServiceTokenHeader carries the shared secret of trusted backend callers.
const ServiceTokenHeader = "X-Service-Token"

// ErrServiceTokenHashMissing is returned when internal routes are mounted
// without a configured token hash.
var ErrServiceTokenHashMissing = errors.New("service token hash is not configured")

// ServiceToken guards internal routes. The presented token, from
// X-Service-Token or a bearer header, is compared to a bcrypt hash so the
// plaintext never lives in configuration.
func ServiceToken(hash string) (gin.HandlerFunc, error) {
	if hash == "" {
		return nil, ErrServiceTokenHashMissing
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, err
	}
	hashed := []byte(hash)

	return func(c *gin.Context) {
		token := c.GetHeader(ServiceTokenHeader)
		if token == "" {
			token, _ = bearerToken(c.GetHeader("Authorization"))
		}
		if token == "" || bcrypt.CompareHashAndPassword(hashed, []byte(token)) != nil {
			_ = c.Error(apperrors.Unauthorized(apperrors.CodeUnauthorized, "invalid service token"))
			c.Abort()
			return
		}
		c.Next()
	}, nil
}
