// Package apperr holds the error kinds shared by the domain packages and the
// HTTP layer. Domain code returns *Error (or wraps one); handlers map the kind
// to a status code with Status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kinds. Match with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrPermission = errors.New("permission denied")
)

// Error carries a human-readable message and the kind it belongs to.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

func Permission(format string, args ...any) error {
	return &Error{Kind: ErrPermission, Msg: fmt.Sprintf(format, args...)}
}

// Well-known domain errors.
var (
	ErrAlreadySubmitted  = &Error{Kind: ErrConflict, Msg: "assessment already submitted"}
	ErrDuplicateQuestion = &Error{Kind: ErrConflict, Msg: "question already added to this assessment"}
	ErrAlreadyEnrolled   = &Error{Kind: ErrConflict, Msg: "already enrolled in this product"}
	// ErrNoAssociation is the lookup failure for a question that is not part
	// of the assessment being graded or edited.
	ErrNoAssociation = &Error{Kind: ErrNotFound, Msg: "question not found in this assessment"}
)

// Status maps err to an HTTP status code. Unknown errors are 500.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrPermission):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
