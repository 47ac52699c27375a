// Package coreerr holds the error taxonomy surfaced at the core boundary
// (spec.md §7). Every RPC handler and component precondition returns one
// of these five kinds, wrapped with a reason, so the API layer can map
// them to a stable set of transport-level statuses without string
// matching on error text.
package coreerr

import "errors"

// Kind classifies an error into the taxonomy spec.md §7 requires.
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindInsufficientBalance
	KindDuplicateRequest
	KindUnavailable
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindInsufficientBalance:
		return "InsufficientBalance"
	case KindDuplicateRequest:
		return "DuplicateRequest"
	case KindUnavailable:
		return "Unavailable"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned across the core boundary.
type Error struct {
	Kind   Kind
	Reason string
	Err    error // optional wrapped cause, for %w chains
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, reason string, wrapped ...error) *Error {
	e := &Error{Kind: k, Reason: reason}
	if len(wrapped) > 0 {
		e.Err = wrapped[0]
	}
	return e
}

// InvalidArgument builds a validation failure: malformed/unknown
// asset/market, bad decimal, unknown order id, wrong owner, precision
// mismatch, out-of-range limit, etc. Never has side effects.
func InvalidArgument(reason string) *Error { return newErr(KindInvalidArgument, reason) }

// InsufficientBalance builds a precondition failure for sub/freeze/unfreeze.
func InsufficientBalance(reason string) *Error { return newErr(KindInsufficientBalance, reason) }

// DuplicateRequest builds an idempotency-cache hit failure.
func DuplicateRequest(reason string) *Error { return newErr(KindDuplicateRequest, reason) }

// Unavailable builds a back-pressure failure: a sink or the operation-log
// queue is saturated. Admission-time only, never after a mutation began.
func Unavailable(reason string) *Error { return newErr(KindUnavailable, reason) }

// Internal builds an invariant-violation / persistence-fatal failure.
// Callers that see this from the matching core are expected to abort the
// process rather than continue with possibly corrupt state (spec.md §7).
func Internal(reason string, cause error) *Error { return newErr(KindInternal, reason, cause) }

// Is reports whether err carries the given Kind, unwrapping *Error chains.
func Is(err error, k Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == k
	}
	return false
}
