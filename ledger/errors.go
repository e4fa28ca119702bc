package ledger

import "errors"

// Sentinel errors a Client implementation returns so validator/executor
// can distinguish definite ledger-side rejections from transport-level
// LedgerError/UnboundedError failures (spec.md §7).
var (
	ErrInsufficientFunds     = errors.New("ledger: insufficient funds")
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
	ErrDuplicateTransaction  = errors.New("ledger: duplicate transaction")
	ErrCreatedAtTimeTooOld   = errors.New("ledger: created_at_time is too far in the past")
	ErrUnknownStatus         = errors.New("ledger: reply timed out, status unknown")
)
