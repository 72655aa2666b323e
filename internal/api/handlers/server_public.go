package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatpilot.io/pilot/internal/access"
	"chatpilot.io/pilot/internal/api/middleware"
	"chatpilot.io/pilot/internal/llm"
	apperrors "chatpilot.io/pilot/internal/pkg/errors"
	"chatpilot.io/pilot/internal/usecase"
)

type chatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type chatRequest struct {
	Message string     `json:"message"`
	History []chatTurn `json:"history"`
}

func requestOrigin(c *gin.Context) string {
	return access.OriginFromHeaders(c.GetHeader("Origin"), c.GetHeader("Referer"))
}

// GetPublicWidget handles GET /public/bots/{botId}/widget.
func (s *Server) GetPublicWidget(c *gin.Context, botID string) {
	bot, err := s.chat.PublicBot(c.Request.Context(), botID, requestOrigin(c), access.RequestHostname(c.Request.Host))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

// PostPublicChat handles POST /public/bots/{botId}/chat.
func (s *Server) PostPublicChat(c *gin.Context, botID string) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequest, "request body must be a JSON chat message"))
		return
	}

	history := make([]llm.Turn, 0, len(req.History))
	for _, turn := range req.History {
		role := llm.RoleUser
		if turn.Role == string(llm.RoleAssistant) {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Turn{Role: role, Text: turn.Text})
	}

	out, err := s.chat.Execute(c.Request.Context(), usecase.ChatInput{
		BotID:       botID,
		Origin:      requestOrigin(c),
		RequestHost: access.RequestHostname(c.Request.Host),
		ClientIP:    middleware.GetClientIP(c),
		Message:     req.Message,
		History:     history,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
