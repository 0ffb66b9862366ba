package apperror

import (
	"errors"
	"net/http"
)

// Kind classifies an error by how callers are expected to react to it.
type Kind string

const (
	KindValidation             Kind = "VALIDATION"
	KindPrecondition           Kind = "PRECONDITION"
	KindNotFound               Kind = "NOT_FOUND"
	KindTransientProvider      Kind = "TRANSIENT_PROVIDER"
	KindDeclined               Kind = "DECLINED"
	KindPersistence            Kind = "PERSISTENCE"
	KindConcurrentModification Kind = "CONCURRENT_MODIFICATION"
)

// Kind-level sentinels. errors.Is(err, ErrPrecondition) matches every
// precondition error regardless of which package declared it.
var (
	ErrValidation             = &Error{Kind: KindValidation, Status: http.StatusBadRequest}
	ErrPrecondition           = &Error{Kind: KindPrecondition, Status: http.StatusUnprocessableEntity}
	ErrNotFound               = &Error{Kind: KindNotFound, Status: http.StatusNotFound}
	ErrTransientProvider      = &Error{Kind: KindTransientProvider, Status: http.StatusServiceUnavailable}
	ErrDeclined               = &Error{Kind: KindDeclined, Status: http.StatusPaymentRequired}
	ErrPersistence            = &Error{Kind: KindPersistence, Status: http.StatusInternalServerError}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification, Status: http.StatusConflict}
)

// Error is a classified application error carrying the HTTP status it maps to.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

// New declares a package-level sentinel of the given kind.
func New(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches the exact sentinel, or any error of the same kind when target is
// one of the kind-level sentinels above.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == e {
		return true
	}
	return t.Message == "" && t.Kind == e.Kind
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return "", false
}

// HTTPStatus maps err to a response status, 500 for unclassified errors.
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// Message returns the client-facing message of the classified error in err's
// chain, falling back to a generic one so internals do not leak.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return "internal server error"
}
