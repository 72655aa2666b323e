// Package notification delivers in-app messages to bot owners.
//
// Inbox writes are synchronous: when Send returns nil the row is stored.
// Callers that must not block (the credit ledger) enqueue a job instead.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/domain"
	"chatpilot.io/pilot/internal/pkg/logger"
)

// Notification types.
const (
	TypeCreditLowBalance = "CREDIT_LOW_BALANCE"
	TypeCreditGranted    = "CREDIT_GRANTED"
)

// Params holds the required fields for creating a notification.
type Params struct {
	RecipientID  string
	Type         string
	Title        string
	Message      string
	ResourceType string
	ResourceID   string
}

// Sender delivers a notification to one recipient.
type Sender interface {
	Send(ctx context.Context, params Params) error
}

// Inbox stores and lists notifications.
type Inbox interface {
	InsertNotification(ctx context.Context, n domain.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

// InboxSender writes notifications to an Inbox.
type InboxSender struct {
	inbox Inbox
}

// NewInboxSender creates a new inbox sender.
func NewInboxSender(inbox Inbox) *InboxSender {
	return &InboxSender{inbox: inbox}
}

// Send stores a single notification.
func (s *InboxSender) Send(ctx context.Context, params Params) error {
	if err := validateParams(params); err != nil {
		return fmt.Errorf("notification params invalid: %w", err)
	}

	err := s.inbox.InsertNotification(ctx, domain.Notification{
		ID:           uuid.Must(uuid.NewV7()).String(),
		UserID:       params.RecipientID,
		Type:         params.Type,
		Title:        params.Title,
		Message:      params.Message,
		ResourceType: params.ResourceType,
		ResourceID:   params.ResourceID,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("create notification for user %s: %w", params.RecipientID, err)
	}

	logger.Debug("notification sent",
		zap.String("recipient", params.RecipientID),
		zap.String("type", params.Type),
	)
	return nil
}

var _ Sender = (*InboxSender)(nil)

func validateParams(p Params) error {
	if p.RecipientID == "" {
		return fmt.Errorf("recipient_id is required")
	}
	if p.Type == "" {
		return fmt.Errorf("type is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}
