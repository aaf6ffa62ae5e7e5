package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewSignatureError creates a signature verification error
func NewSignatureError(reason string) *AppError {
	return New(ErrCodeSignature, "signature verification failed").
		WithContext("reason", reason).
		WithUserMessage("Invalid signature")
}

// NewDecryptError wraps a message decryption failure
func NewDecryptError(err error) *AppError {
	return Wrap(err, ErrCodeDecrypt, "message decryption failed").
		WithUserMessage("Decryption failed")
}

// NewDecodeError wraps an envelope decoding failure
func NewDecodeError(err error) *AppError {
	return Wrap(err, ErrCodeDecode, "message decoding failed").
		WithUserMessage("Malformed message")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewTransportError creates a delivery transport error for a tier
func NewTransportError(tier string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeTransport, fmt.Sprintf("%s delivery failed", tier)).
		WithContext("tier", tier).
		WithContext("status_code", statusCode)

	if statusCode >= 500 || statusCode == 429 || statusCode == 408 {
		appErr.Retryable = true
	}

	return appErr
}

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeInvalidInput, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}
