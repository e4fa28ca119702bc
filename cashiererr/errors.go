// Package cashiererr defines the stable error taxonomy every entry point
// in this repository returns through (spec.md §7). Leaf packages return
// *Error directly or wrap a lower-level error with one of the
// constructors below; the state-machine layer is the only place that
// decides whether an error fails a Transaction or is surfaced untouched.
package cashiererr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the stable tag every *Error carries. Kind values are part of
// the external contract: callers match on Kind, never on Detail text.
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindNotFound            Kind = "NOT_FOUND"
	KindHandleLogic         Kind = "HANDLE_LOGIC"
	KindRateLimit           Kind = "RATE_LIMIT"
	KindRequestLockExists   Kind = "REQUEST_LOCK_ALREADY_EXISTS"
	KindLedger              Kind = "LEDGER"
	KindCanister            Kind = "CANISTER"
)

// Error is the single error currency threaded through the orchestration
// core. Code is a short machine-stable identifier (e.g.
// "duplicate_action"), Detail is free text for humans/logs.
type Error struct {
	Kind       Kind
	Code       string
	Detail     string
	RetryAfter time.Duration // only meaningful for KindRateLimit
	LockKey    string        // only meaningful for KindRequestLockExists
	cause      error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// Is supports errors.Is comparisons against a Kind-only template, e.g.
// errors.Is(err, cashiererr.ErrKind(cashiererr.KindNotFound)).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) && other.cause == nil && other.Code == "" {
		return e.Kind == other.Kind
	}
	return false
}

// ErrKind builds a bare template usable with errors.Is to test only the
// Kind of a returned error, ignoring Code/Detail.
func ErrKind(k Kind) error { return &Error{Kind: k} }

func newf(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Detail: fmt.Sprintf(format, args...)}
}

func Validation(code, format string, args ...interface{}) *Error {
	return newf(KindValidation, code, format, args...)
}

func Unauthorized(code, format string, args ...interface{}) *Error {
	return newf(KindUnauthorized, code, format, args...)
}

func NotFound(code, format string, args ...interface{}) *Error {
	return newf(KindNotFound, code, format, args...)
}

func HandleLogic(code, format string, args ...interface{}) *Error {
	return newf(KindHandleLogic, code, format, args...)
}

func RateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Code:       "rate_limit_exceeded",
		Detail:     fmt.Sprintf("retry after %s", retryAfter),
		RetryAfter: retryAfter,
	}
}

func LockHeld(key string) *Error {
	return &Error{
		Kind:    KindRequestLockExists,
		Code:    "request_lock_already_exists",
		Detail:  fmt.Sprintf("lock %q is already held", key),
		LockKey: key,
	}
}

func Ledger(code string, cause error) *Error {
	return &Error{Kind: KindLedger, Code: code, Detail: cause.Error(), cause: cause}
}

// Wrap lifts an arbitrary error into the catch-all CanisterError kind
// used at the external API boundary (spec.md §7).
func Wrap(cause error) *Error {
	var existing *Error
	if errors.As(cause, &existing) {
		return existing
	}
	return &Error{Kind: KindCanister, Code: "internal_error", Detail: cause.Error(), cause: cause}
}
