package entities

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies an error for every transport layer.
type ErrorCode string

const (
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeValidation      ErrorCode = "VALIDATION"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE"
	ErrCodeStorage         ErrorCode = "STORAGE"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
)

// Error is the domain error. Fields names the offending input fields of a
// validation failure.
type Error struct {
	Code    ErrorCode
	Message string
	Fields  []FieldError
	Err     error
}

// FieldError locates a single constraint violation.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(parts, "; "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NewValidationError reports one or more field violations.
func NewValidationError(fields ...FieldError) *Error {
	return &Error{Code: ErrCodeValidation, Message: "validation failed", Fields: fields}
}

// StorageError wraps a persistence failure.
func StorageError(op string, err error) *Error {
	return WrapError(ErrCodeStorage, op, err)
}

// Common errors
var (
	ErrTaskNotFound       = NewError(ErrCodeNotFound, "task not found")
	ErrUserNotFound       = NewError(ErrCodeNotFound, "user not found")
	ErrTokenNotFound      = NewError(ErrCodeNotFound, "refresh token not found")
	ErrEmailTaken         = NewError(ErrCodeConflict, "email already registered")
	ErrUsernameTaken      = NewError(ErrCodeConflict, "username already taken")
	ErrInvalidCredentials = NewError(ErrCodeUnauthorized, "invalid credentials")
	ErrAccountInactive    = NewError(ErrCodeUnauthorized, "account is inactive")
	ErrInvalidToken       = NewError(ErrCodeUnauthorized, "invalid token")
	ErrDeadlineInPast     = NewValidationError(FieldError{Field: "due_date", Rule: "notpast", Message: "due date cannot be in the past"})
)

// IsDomainError reports whether err carries the given code.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// CodeOf returns the code of a domain error, or STORAGE for anything else.
func CodeOf(err error) ErrorCode {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return ErrCodeStorage
}
