package apperror

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation     Kind = "validation"
	KindUnauthorized   Kind = "unauthorized"
	KindForbidden      Kind = "forbidden"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindInvalidState   Kind = "invalid_state"
	KindPaymentFailed  Kind = "payment_failed"
	KindPaymentTimeout Kind = "payment_timeout"
	KindInternal       Kind = "internal"
)

var kindCodes = map[Kind]string{
	KindValidation:     "VALIDATION_ERROR",
	KindUnauthorized:   "UNAUTHORIZED",
	KindForbidden:      "FORBIDDEN",
	KindNotFound:       "NOT_FOUND",
	KindConflict:       "CONFLICT",
	KindInvalidState:   "INVALID_STATE",
	KindPaymentFailed:  "PAYMENT_FAILED",
	KindPaymentTimeout: "PAYMENT_TIMEOUT",
	KindInternal:       "INTERNAL_ERROR",
}

var kindStatus = map[Kind]int{
	KindValidation:     http.StatusBadRequest,
	KindUnauthorized:   http.StatusUnauthorized,
	KindForbidden:      http.StatusForbidden,
	KindNotFound:       http.StatusNotFound,
	KindConflict:       http.StatusConflict,
	KindInvalidState:   http.StatusConflict,
	KindPaymentFailed:  http.StatusBadGateway,
	KindPaymentTimeout: http.StatusGatewayTimeout,
	KindInternal:       http.StatusInternalServerError,
}

// Error is returned by the service layer. PublicError is safe to show to
// clients; InternalError and Err are for logs only.
type Error struct {
	Kind          Kind
	Code          string
	StatusCode    int
	PublicError   string
	InternalError string
	Err           error
}

func (e *Error) Error() string {
	if e.InternalError != "" {
		return e.InternalError
	}
	if e.Err != nil {
		return e.PublicError + ": " + e.Err.Error()
	}
	return e.PublicError
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels, so errors.Is(err, ErrConflict) holds for any conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.PublicError == "" && t.Kind == e.Kind
}

var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrUnauthorized   = &Error{Kind: KindUnauthorized}
	ErrForbidden      = &Error{Kind: KindForbidden}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrInvalidState   = &Error{Kind: KindInvalidState}
	ErrPaymentFailed  = &Error{Kind: KindPaymentFailed}
	ErrPaymentTimeout = &Error{Kind: KindPaymentTimeout}
	ErrInternal       = &Error{Kind: KindInternal}
)

func New(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:        kind,
		Code:        kindCodes[kind],
		StatusCode:  kindStatus[kind],
		PublicError: message,
		Err:         err,
	}
}

func Validation(message string) *Error   { return New(KindValidation, message, nil) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message, nil) }
func Forbidden(message string) *Error    { return New(KindForbidden, message, nil) }
func NotFound(message string) *Error     { return New(KindNotFound, message, nil) }
func Conflict(message string) *Error     { return New(KindConflict, message, nil) }
func InvalidState(message string) *Error { return New(KindInvalidState, message, nil) }

func PaymentFailed(message string, err error) *Error {
	return New(KindPaymentFailed, message, err)
}

func PaymentTimeout(message string, err error) *Error {
	return New(KindPaymentTimeout, message, err)
}

// Internal hides the detail behind a generic public message.
func Internal(detail string, err error) *Error {
	e := New(KindInternal, "internal server error", err)
	e.InternalError = detail
	if err != nil {
		e.InternalError = detail + ": " + err.Error()
	}
	return e
}

// From classifies any error, falling back to Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr
	}
	return Internal("unexpected error", err)
}
