package credits

import (
	"errors"
	"fmt"
)

// CodeOutOfCredits is the stable machine-readable tag for OutOfCreditsError.
const CodeOutOfCredits = "OUT_OF_CREDITS"

var (
	// ErrOutOfCredits matches any *OutOfCreditsError via errors.Is.
	ErrOutOfCredits = errors.New("out of credits")

	// ErrCreditContention is returned when every compare-and-swap attempt lost
	// to a concurrent writer. Retrying the whole request may succeed.
	ErrCreditContention = errors.New("credit balance contention")

	// ErrInvalidAmount is returned for amounts the ledger cannot apply:
	// non-positive grants, grants that overflow the balance, and math.MinInt64.
	ErrInvalidAmount = errors.New("invalid credit amount")

	// ErrAccountMissing means an account vanished between ensure and update.
	ErrAccountMissing = errors.New("credit account missing")
)

// OutOfCreditsError reports a debit larger than the available balance.
// No mutation happened when it is returned.
type OutOfCreditsError struct {
	OwnerID   string
	Balance   int64
	Requested int64
}

func (e *OutOfCreditsError) Error() string {
	return fmt.Sprintf("%s: owner %s has %d, needs %d", CodeOutOfCredits, e.OwnerID, e.Balance, e.Requested)
}

// Code returns CodeOutOfCredits.
func (e *OutOfCreditsError) Code() string { return CodeOutOfCredits }

// Is lets errors.Is(err, ErrOutOfCredits) match.
func (e *OutOfCreditsError) Is(target error) bool {
	return target == ErrOutOfCredits
}

// IsOutOfCredits reports whether err carries an out-of-credits condition.
func IsOutOfCredits(err error) bool {
	return errors.Is(err, ErrOutOfCredits)
}
