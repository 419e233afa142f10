package core

import (
	"fmt"
)

// Error is the canonical error type surfaced to the UI layer.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrInvalidRequest marks precondition violations (no session yet,
	// muting while not connected, empty message). Always synchronous.
	ErrInvalidRequest ErrorType = "invalid_request_error"

	// ErrProvisioning marks a failed or timed-out session-creation call.
	ErrProvisioning ErrorType = "provisioning_error"

	// ErrStream marks a generation stream that died mid-flight.
	ErrStream ErrorType = "stream_error"

	// ErrVoice marks voice channel handshake or transport failures.
	ErrVoice ErrorType = "voice_error"

	// ErrAPI marks a non-2xx response from the backend.
	ErrAPI ErrorType = "api_error"
)

// NewInvalidRequestError creates a precondition-violation error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewProvisioningError creates a session provisioning error.
func NewProvisioningError(message string, cause error) *Error {
	return &Error{
		Type:    ErrProvisioning,
		Message: message,
		Cause:   cause,
	}
}

// NewStreamError creates a generation stream error.
func NewStreamError(message string, cause error) *Error {
	return &Error{
		Type:    ErrStream,
		Message: message,
		Cause:   cause,
	}
}

// NewVoiceError creates a voice channel error.
func NewVoiceError(message string, cause error) *Error {
	return &Error{
		Type:    ErrVoice,
		Message: message,
		Cause:   cause,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// IsRetryable returns true if the caller may reasonably retry the operation.
// Provisioning failures require an explicit reset first, so they are not
// retryable as-is.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrStream, ErrVoice, ErrAPI:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}
