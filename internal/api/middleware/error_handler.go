// Package middleware provides the gin middleware chain of the Chat Pilot API.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "chatpilot.io/pilot/internal/pkg/errors"
	"chatpilot.io/pilot/internal/pkg/logger"
)

type errorBody struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Reply     string                 `json:"reply,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// ErrorHandler renders the last error attached with c.Error as a JSON
// envelope. Handlers never write error bodies themselves.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		ctx := c.Request.Context()
		err := c.Errors.Last().Err
		rid := logger.RequestIDFromContext(ctx)

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			log := logger.Ctx(ctx).Warn
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				log = logger.Ctx(ctx).Error
			}
			log("request error",
				zap.String("code", appErr.Code),
				zap.Int("status", appErr.HTTPStatus),
				zap.String("path", c.FullPath()),
				zap.Error(appErr.Err),
			)
			c.JSON(appErr.HTTPStatus, errorBody{
				Code:      appErr.Code,
				Message:   appErr.Message,
				Reply:     appErr.Reply,
				Params:    appErr.Params,
				RequestID: rid,
			})
			return
		}

		logger.Ctx(ctx).Error("unhandled request error", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, errorBody{
			Code:      apperrors.CodeInternal,
			Message:   "an internal error occurred",
			RequestID: rid,
		})
	}
}
