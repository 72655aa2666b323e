package errors

import "net/http"

// Access error codes. Missing and forbidden bots share one code so callers
// cannot probe for bot existence.
const (
	CodeBotUnavailable = "BOT_UNAVAILABLE"
)

// Metering error codes.
const (
	CodeRateLimited      = "RATE_LIMITED"
	CodeOutOfCredits     = "OUT_OF_CREDITS"
	CodeCreditContention = "CREDIT_CONTENTION"
	CodeAccountNotFound  = "ACCOUNT_NOT_FOUND"
)

// Auth error codes.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
)

// Generic error codes.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInternal         = "INTERNAL_ERROR"
	CodeCompletionFailed = "COMPLETION_FAILED"
)

// ErrBotUnavailable is returned for both unknown bots and disallowed origins.
func ErrBotUnavailable() *AppError {
	return Forbidden(CodeBotUnavailable, "bot is not available for this origin")
}

// ErrRateLimited carries the friendly message rendered inside the chat widget.
func ErrRateLimited(reply string) *AppError {
	return New(CodeRateLimited, "too many requests", http.StatusTooManyRequests).WithReply(reply)
}

// ErrOutOfCredits is rendered as a temporary unavailability of the bot.
func ErrOutOfCredits(reply string, err error) *AppError {
	return Wrap(err, CodeOutOfCredits, "bot is temporarily unavailable", http.StatusPaymentRequired).WithReply(reply)
}

// ErrCreditContention signals ledger retries were exhausted; retrying the
// whole request may succeed.
func ErrCreditContention(err error) *AppError {
	return Wrap(err, CodeCreditContention, "please retry the request", http.StatusInternalServerError)
}
