// Package errors defines the structured error shared across the
// bridge's pipeline: a category code for logs and metrics, an optional
// cause, and whether the failing operation is worth retrying.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode categorizes an error
type ErrorCode string

const (
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Inbound protocol failures
	ErrCodeSignature ErrorCode = "SIGNATURE"
	ErrCodeDecrypt   ErrorCode = "DECRYPT"
	ErrCodeDecode    ErrorCode = "DECODE"

	// Outbound delivery failures
	ErrCodeTransport ErrorCode = "TRANSPORT"

	ErrCodeDatabaseQuery ErrorCode = "DATABASE_QUERY"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// AppError is the structured application error
type AppError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Retryable   bool                   `json:"retryable"`
	UserMessage string                 `json:"user_message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError without a cause
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err}
}

// WithContext annotates the error with a key/value pair for logging
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets the message safe to surface outside the logs
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// IsRetryable reports whether the error, anywhere in its chain, is a
// retryable AppError.
func IsRetryable(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Retryable
}

// GetCode returns the code of the first AppError in the chain, or
// ErrCodeInternalError for plain errors.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalError
}
