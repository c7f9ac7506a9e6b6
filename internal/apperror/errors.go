// Package apperror defines the error kinds the console reports to its callers.
//
// Every failure surfaced by a service carries a Kind so the presentation layer can
// render a specific message instead of a generic error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindInvalidTemplate         Kind = "INVALID_TEMPLATE"
	KindNoSequenceConfig        Kind = "NO_SEQUENCE_CONFIG"
	KindDuplicatePendingRequest Kind = "DUPLICATE_PENDING_REQUEST"
	KindNotAuthorized           Kind = "NOT_AUTHORIZED"
	KindAlreadyDecided          Kind = "ALREADY_DECIDED"
	KindValidation              Kind = "VALIDATION_ERROR"
	KindNotFound                Kind = "NOT_FOUND"
	KindConflict                Kind = "CONFLICT"
	KindMachineLocked           Kind = "MACHINE_LOCKED"
	KindInternal                Kind = "INTERNAL_ERROR"
)

var httpStatus = map[Kind]int{
	KindInvalidTemplate:         http.StatusBadRequest,
	KindNoSequenceConfig:        http.StatusNotFound,
	KindDuplicatePendingRequest: http.StatusConflict,
	KindNotAuthorized:           http.StatusForbidden,
	KindAlreadyDecided:          http.StatusConflict,
	KindValidation:              http.StatusBadRequest,
	KindNotFound:                http.StatusNotFound,
	KindConflict:                http.StatusConflict,
	KindMachineLocked:           http.StatusLocked,
	KindInternal:                http.StatusInternalServerError,
}

// HTTPStatus returns the status code a handler should answer with for k.
func (k Kind) HTTPStatus() int {
	if status, ok := httpStatus[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is a structured application error.
type Error struct {
	Kind    Kind
	Message string
	// Params carries structured context, e.g. the id of an existing pending request.
	Params map[string]interface{}
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithParams attaches structured parameters to the error.
func (e *Error) WithParams(params map[string]interface{}) *Error {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err into an Error of the given kind.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func InvalidTemplate(message string) *Error  { return New(KindInvalidTemplate, message) }
func NoSequenceConfig(message string) *Error { return New(KindNoSequenceConfig, message) }
func NotAuthorized(message string) *Error    { return New(KindNotAuthorized, message) }
func AlreadyDecided(message string) *Error   { return New(KindAlreadyDecided, message) }
func Validation(message string) *Error       { return New(KindValidation, message) }
func NotFound(message string) *Error         { return New(KindNotFound, message) }
func Conflict(message string) *Error         { return New(KindConflict, message) }
func MachineLocked(message string) *Error    { return New(KindMachineLocked, message) }

// DuplicatePendingRequest reports that machineID already has a PENDING request.
func DuplicatePendingRequest(machineID, existingRequestID string) *Error {
	e := New(KindDuplicatePendingRequest, "machine already has a pending approval request")
	params := map[string]interface{}{"machine_id": machineID}
	if existingRequestID != "" {
		params["request_id"] = existingRequestID
	}
	return e.WithParams(params)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the kind of err, or KindInternal for errors that carry none.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
