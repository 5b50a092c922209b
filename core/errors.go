package core

import "github.com/pkg/errors"

// FieldError reports a validation problem on a single named field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError wraps a domain validation failure with the offending
// fields; the API layer renders Fields as a field -> message map.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// shutdown signals an unrecoverable integrity failure; the server stops
// cleanly when a handler surfaces one.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
