package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/credits"
	"chatpilot.io/pilot/internal/domain"
	apperrors "chatpilot.io/pilot/internal/pkg/errors"
	"chatpilot.io/pilot/internal/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type ownerBalance struct {
	OwnerID string `json:"owner_id"`
	Balance int64  `json:"balance"`
}

type grantRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type transactionList struct {
	Items []domain.CreditTransaction `json:"items"`
}

// listLimit parses the optional limit query parameter.
func listLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequest, "limit must be between 1 and 200").
			WithParams(map[string]interface{}{"min": 1, "max": maxListLimit}))
		return 0, false
	}
	return n, true
}

func internalError(err error, msg string) *apperrors.AppError {
	return apperrors.Wrap(err, apperrors.CodeInternal, msg, http.StatusInternalServerError)
}

// GetCredits handles GET /credits for the authenticated user.
func (s *Server) GetCredits(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	acct, err := s.ledger.EnsureTrialCredits(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(internalError(err, "could not load credit account"))
		return
	}
	c.JSON(http.StatusOK, acct)
}

// ListCreditTransactions handles GET /credits/transactions.
func (s *Server) ListCreditTransactions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := listLimit(c)
	if !ok {
		return
	}
	txs, err := s.ledger.RecentTransactions(c.Request.Context(), userID, limit)
	if err != nil {
		_ = c.Error(internalError(err, "could not list transactions"))
		return
	}
	if txs == nil {
		txs = []domain.CreditTransaction{}
	}
	c.JSON(http.StatusOK, transactionList{Items: txs})
}

// GetOwnerCredits handles GET /internal/owners/{ownerId}/credits.
func (s *Server) GetOwnerCredits(c *gin.Context, ownerID string) {
	balance, found, err := s.ledger.OwnerBalance(c.Request.Context(), ownerID)
	if err != nil {
		_ = c.Error(internalError(err, "could not load credit account"))
		return
	}
	if !found {
		_ = c.Error(apperrors.NotFound(apperrors.CodeAccountNotFound, "owner has no credit account"))
		return
	}
	c.JSON(http.StatusOK, ownerBalance{OwnerID: ownerID, Balance: balance})
}

// GrantOwnerCredits handles POST /internal/owners/{ownerId}/credits/grant.
func (s *Server) GrantOwnerCredits(c *gin.Context, ownerID string) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequest, "amount must be a positive integer"))
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual_grant"
	}

	ctx := c.Request.Context()
	balance, err := s.ledger.Grant(ctx, credits.GrantInput{UserID: ownerID, Amount: req.Amount, Reason: reason})
	switch {
	case err == nil:
	case errors.Is(err, credits.ErrInvalidAmount):
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInvalidRequest, "amount would overflow the balance", http.StatusBadRequest).
			WithParams(map[string]interface{}{"balance": balance, "max_amount": int64(math.MaxInt64) - balance}))
		return
	case errors.Is(err, credits.ErrCreditContention):
		_ = c.Error(apperrors.ErrCreditContention(err))
		return
	default:
		_ = c.Error(internalError(err, "could not grant credits"))
		return
	}

	logger.Ctx(ctx).Info("credits granted",
		zap.String("owner_id", ownerID),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance", balance),
	)
	if s.notifier != nil {
		s.notifier.OnCreditsGranted(ctx, ownerID, req.Amount, balance)
	}
	c.JSON(http.StatusOK, ownerBalance{OwnerID: ownerID, Balance: balance})
}
