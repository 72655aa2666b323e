package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New("BOT_UNAVAILABLE", "bot is not available", http.StatusForbidden),
			want: "BOT_UNAVAILABLE: bot is not available",
		},
		{
			name: "with wrapped error",
			err:  Wrap(fmt.Errorf("db error"), "INTERNAL_ERROR", "database failure", http.StatusInternalServerError),
			want: "INTERNAL_ERROR: database failure: db error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap(inner, "CODE", "msg", 500)

	if !errors.Is(appErr, inner) {
		t.Error("errors.Is should match inner error")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := ErrRateLimited("slow down")
	wrapped := fmt.Errorf("wrapped: %w", appErr)

	got, ok := IsAppError(wrapped)
	if !ok {
		t.Fatal("IsAppError should return true for wrapped AppError")
	}
	if got.Code != CodeRateLimited {
		t.Errorf("Code = %q, want %q", got.Code, CodeRateLimited)
	}
	if got.Reply != "slow down" {
		t.Errorf("Reply = %q, want %q", got.Reply, "slow down")
	}
	if _, ok := IsAppError(errors.New("plain")); ok {
		t.Error("IsAppError should return false for plain errors")
	}
}

func TestDomainConstructors(t *testing.T) {
	inner := errors.New("balance too low")
	tests := []struct {
		name       string
		err        *AppError
		wantStatus int
		wantCode   string
	}{
		{"bot unavailable", ErrBotUnavailable(), http.StatusForbidden, CodeBotUnavailable},
		{"rate limited", ErrRateLimited("x"), http.StatusTooManyRequests, CodeRateLimited},
		{"out of credits", ErrOutOfCredits("x", inner), http.StatusPaymentRequired, CodeOutOfCredits},
		{"contention", ErrCreditContention(inner), http.StatusInternalServerError, CodeCreditContention},
		{"bad request", BadRequest("BR", "bad"), http.StatusBadRequest, "BR"},
		{"unauthorized", Unauthorized("UA", "no"), http.StatusUnauthorized, "UA"},
		{"not found", NotFound("NF", "gone"), http.StatusNotFound, "NF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.wantStatus)
			}
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
		})
	}

	if !errors.Is(ErrOutOfCredits("x", inner), inner) {
		t.Error("ErrOutOfCredits should wrap the ledger error")
	}
}
