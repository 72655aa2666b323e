package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatpilot.io/pilot/internal/domain"
)

type notificationList struct {
	Items []domain.Notification `json:"items"`
}

// ListNotifications handles GET /notifications.
func (s *Server) ListNotifications(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := listLimit(c)
	if !ok {
		return
	}

	items := []domain.Notification{}
	if s.inbox != nil {
		found, err := s.inbox.ListNotifications(c.Request.Context(), userID, limit)
		if err != nil {
			_ = c.Error(internalError(err, "could not list notifications"))
			return
		}
		if found != nil {
			items = found
		}
	}
	c.JSON(http.StatusOK, notificationList{Items: items})
}
