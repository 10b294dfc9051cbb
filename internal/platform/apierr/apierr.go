package apierr

import (
	"errors"
	"fmt"
)

// Error is an error that already knows how it should surface over HTTP.
type Error struct {
	Status int
	Code   string
	Err    error
	// Public replaces Err's message in responses when set.
	Public string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

// Message is what a client is allowed to see.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	if e.Public != "" {
		return e.Public
	}
	return e.Error()
}

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Opaque hides err behind a fixed public message.
func Opaque(status int, code, public string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err, Public: public}
}

func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
