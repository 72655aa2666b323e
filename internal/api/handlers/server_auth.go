package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/api/middleware"
	apperrors "chatpilot.io/pilot/internal/pkg/errors"
	"chatpilot.io/pilot/internal/pkg/logger"
)

// currentUser returns the authenticated subject or attaches a 401.
func currentUser(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c.Request.Context())
	if userID == "" {
		_ = c.Error(apperrors.Unauthorized(apperrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return userID, true
}

// PostAuthCallback handles POST /auth/callback. The identity provider calls it
// after every sign-in; the first call provisions trial credits.
func (s *Server) PostAuthCallback(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	acct, err := s.ledger.EnsureTrialCredits(ctx, userID)
	if err != nil {
		logger.Ctx(ctx).Error("trial credit provisioning failed", zap.String("user_id", userID), zap.Error(err))
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInternal, "could not load credit account", http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, acct)
}
