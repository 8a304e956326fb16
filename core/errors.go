package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// DuplicateKeyError reports a uniqueness violation. Entity names the table that rejected the write.
type DuplicateKeyError struct {
	Entity string
	Err    error
}

func NewDuplicateKeyError(entity string, err error) error {
	return &DuplicateKeyError{Entity: entity, Err: err}
}

func (err DuplicateKeyError) Error() string {
	return err.Err.Error()
}

func (err DuplicateKeyError) Unwrap() error { return err.Err }

// IsDuplicateKey reports whether the cause of err is a DuplicateKeyError.
func IsDuplicateKey(err error) bool {
	_, ok := errors.Cause(err).(*DuplicateKeyError)
	return ok
}

// NotFoundError marks sentinel errors that map to a missing resource.
type NotFoundError struct {
	Message string
}

func NewNotFoundError(msg string) error {
	return &NotFoundError{Message: msg}
}

func (err NotFoundError) Error() string {
	return err.Message
}

// IsNotFound reports whether the cause of err is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

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
