// Package outposterr is the error types of Outpost.
package outposterr

import (
	"fmt"
)

// Error is an error of a kind like outpost.ErrIO, with an optional cause.
//
// Both of the kind and the cause can be checked via errors.Is.
type Error struct {
	Kind    error
	Cause   error
	Message string
}

// New creates a new Error that has the formatted message.
func New(kind error, cause error, format string, args ...interface{}) Error {
	return Error{
		Kind:    kind,
		Cause:   cause,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements error interface.
// The message of the cause follows the message after a colon.
func (e Error) Error() string {
	switch {
	case e.Cause == nil:
		return e.Message
	case e.Message == "":
		return e.Cause.Error()
	default:
		return e.Message + ": " + e.Cause.Error()
	}
}

// Unwrap returns the kind and the cause for errors.Is and errors.As.
func (e Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
