package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/pkg/logger"
)

// Triggers turns credit events into owner notifications.
type Triggers struct {
	sender Sender
}

// NewTriggers creates a new notification trigger service.
func NewTriggers(sender Sender) *Triggers {
	return &Triggers{sender: sender}
}

// OnLowBalance notifies an owner that their balance reached threshold.
func (t *Triggers) OnLowBalance(ctx context.Context, ownerID string, balance, threshold int64) error {
	params := Params{
		RecipientID:  ownerID,
		Type:         TypeCreditLowBalance,
		Title:        fmt.Sprintf("Only %d credits left", balance),
		Message:      fmt.Sprintf("Your balance dropped to %d credits. Your bots stop answering at zero; top up to keep them online.", balance),
		ResourceType: "credit_account",
		ResourceID:   ownerID,
	}
	if err := t.sender.Send(ctx, params); err != nil {
		logger.Error("failed to send low balance notification",
			zap.String("owner_id", ownerID),
			zap.Int64("threshold", threshold),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// OnCreditsGranted confirms a top-up. Failures are logged only.
func (t *Triggers) OnCreditsGranted(ctx context.Context, userID string, amount, balance int64) {
	params := Params{
		RecipientID:  userID,
		Type:         TypeCreditGranted,
		Title:        fmt.Sprintf("%d credits added", amount),
		Message:      fmt.Sprintf("Your balance is now %d credits.", balance),
		ResourceType: "credit_account",
		ResourceID:   userID,
	}
	if err := t.sender.Send(ctx, params); err != nil {
		logger.Warn("failed to send grant notification",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
