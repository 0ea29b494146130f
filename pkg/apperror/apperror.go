// Package apperror defines the structured error taxonomy shared by the claims
// core. Every failure surfaced to a caller carries a kind, a human-readable
// reason, and (where applicable) the offending field or record identifier.
// None of these kinds are fatal to the process.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers. Callers branch on the kind, not the
// reason text.
type Kind string

const (
	// KindValidation covers malformed or missing input. The caller can
	// recover by correcting the input.
	KindValidation Kind = "validation"
	// KindIllegalTransition means a state machine guard rejected the
	// requested transition. The caller should re-read current state.
	KindIllegalTransition Kind = "illegal_transition"
	// KindIneligibleBatch means a reconciliation precondition failed for a
	// specific batch.
	KindIneligibleBatch Kind = "ineligible_batch"
	// KindConflict signals a concurrent write was detected. The caller
	// should retry with fresh state.
	KindConflict Kind = "conflict"
	// KindIncompleteClosure means the batch closure input was missing one of
	// its required groups.
	KindIncompleteClosure Kind = "incomplete_closure"
	// KindNotFound means the referenced record does not exist.
	KindNotFound Kind = "not_found"
)

// Error is the structured error returned by core services.
type Error struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
	Field  string `json:"field,omitempty"`
	ID     string `json:"id,omitempty"`
}

func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field %s)", e.Kind, e.Reason, e.Field)
	case e.ID != "":
		return fmt.Sprintf("%s: %s (id %s)", e.Kind, e.Reason, e.ID)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
}

// Validation builds a validation error for the given field.
func Validation(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IllegalTransition builds a state machine guard error.
func IllegalTransition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindIllegalTransition, Reason: fmt.Sprintf(format, args...)}
}

// IneligibleBatch builds a reconciliation precondition error naming the
// offending batch.
func IneligibleBatch(batchID, format string, args ...interface{}) *Error {
	return &Error{Kind: KindIneligibleBatch, ID: batchID, Reason: fmt.Sprintf(format, args...)}
}

// Conflict builds a concurrent-write error for the given record.
func Conflict(id, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, ID: id, Reason: fmt.Sprintf(format, args...)}
}

// IncompleteClosure builds a closure precondition error for the given input
// field.
func IncompleteClosure(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindIncompleteClosure, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFound builds a missing-record error.
func NotFound(resource, id string) *Error {
	return &Error{Kind: KindNotFound, ID: id, Reason: fmt.Sprintf("%s not found", resource)}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the HTTP status the routing layer should
// return. Unknown errors map to 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindIncompleteClosure:
		return http.StatusBadRequest
	case KindIllegalTransition, KindIneligibleBatch:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
