// Package handlers implements the HTTP operations described by the embedded
// OpenAPI contract.
//
// Handlers translate requests into use case calls and attach failures with
// c.Error; the ErrorHandler middleware renders them.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"chatpilot.io/pilot/internal/credits"
	"chatpilot.io/pilot/internal/domain"
	"chatpilot.io/pilot/internal/notification"
	"chatpilot.io/pilot/internal/usecase"
)

// ServerInterface lists every operation of the contract.
type ServerInterface interface {
	GetPublicWidget(c *gin.Context, botID string)
	PostPublicChat(c *gin.Context, botID string)
	PostAuthCallback(c *gin.Context)
	GetCredits(c *gin.Context)
	ListCreditTransactions(c *gin.Context)
	ListNotifications(c *gin.Context)
	GetOwnerCredits(c *gin.Context, ownerID string)
	GrantOwnerCredits(c *gin.Context, ownerID string)
	GetLiveness(c *gin.Context)
	GetReadiness(c *gin.Context)
}

var _ ServerInterface = (*Server)(nil)

// NotificationLister reads a user's inbox.
type NotificationLister interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

// HealthChecker is a dependency probed by the readiness endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server implements ServerInterface.
type Server struct {
	chat     *usecase.ChatUseCase
	ledger   *credits.Ledger
	inbox    NotificationLister
	notifier *notification.Triggers // optional
	checks   map[string]HealthChecker
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Chat     *usecase.ChatUseCase
	Ledger   *credits.Ledger
	Inbox    NotificationLister
	Notifier *notification.Triggers
	Checks   map[string]HealthChecker
}

// NewServer creates a Server.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		chat:     deps.Chat,
		ledger:   deps.Ledger,
		inbox:    deps.Inbox,
		notifier: deps.Notifier,
		checks:   deps.Checks,
	}
}
