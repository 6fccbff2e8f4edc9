package errors

import (
	"errors"
)

type Code string

// Token codec failures.
const (
	CodeMalformedToken Code = "malformed_token"
	CodeBadSignature   Code = "bad_signature"
	CodeTokenExpired   Code = "token_expired"
)

// Credential verification failures.
const (
	CodeUserNotFound   Code = "user_not_found"
	CodeBadCredentials Code = "bad_credentials"
)

// Access guard denials.
const (
	CodeUnauthenticated  Code = "unauthenticated"
	CodeInsufficientRole Code = "insufficient_role"
)

const (
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInvalidInput Code = "invalid_input"
)

const (
	CodeUnknown            Code = "unknown"
	CodeStorageUnavailable Code = "storage_unavailable"
)

var ErrMissingUserStore = errors.New("memberdir: user store is required")

type Error struct {
	Code    Code
	Message string
	Err     error
	// Fields carries per-field messages for CodeInvalidInput.
	Fields map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	if e.Message != "" {
		return e.Message
	}

	if e.Err != nil {
		return e.Err.Error()
	}

	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func Invalid(message string, fields map[string]string) *Error {
	return &Error{
		Code:    CodeInvalidInput,
		Message: message,
		Fields:  fields,
	}
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost typed error in the chain, or CodeUnknown.
func CodeOf(err error) Code {
	var typed *Error
	if !errors.As(err, &typed) || typed == nil {
		return CodeUnknown
	}
	return typed.Code
}

func IsInternalCode(err error) bool {
	switch CodeOf(err) {
	case CodeUnknown, CodeStorageUnavailable:
		return true
	}
	return false
}

func IsTokenCode(err error) bool {
	switch CodeOf(err) {
	case CodeMalformedToken, CodeBadSignature, CodeTokenExpired:
		return true
	}
	return false
}
