package errors

import (
	"errors"

	"github.com/louisbranch/coursereg/internal/platform/errors/i18n"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs/telemetry)
	Metadata map[string]string // Additional context for templating
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Retryable reports whether the error code allows a blind retry.
func (e *Error) Retryable() bool {
	return e.Code.Retryable()
}

// LocalizedMessage renders the user-facing message for the locale.
// Falls back to the internal message when the catalog has no template.
func (e *Error) LocalizedMessage(locale string) string {
	msg := i18n.GetCatalog(locale).Format(string(e.Code), e.Metadata)
	if msg == string(e.Code) && e.Message != "" {
		return e.Message
	}
	return msg
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates a domain error with metadata for i18n templating.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithMetadata creates a domain error with both metadata and a cause.
func WrapWithMetadata(code Code, message string, metadata map[string]string, cause error) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
		Cause:    cause,
	}
}

// Coded is implemented by typed domain errors that carry their own code and
// template metadata without embedding *Error.
type Coded interface {
	error
	Code() Code
	Metadata() map[string]string
}

// FromError normalises any error into an *Error.
//
// The first *Error or Coded value found in the chain wins. Anything else is
// reported as CodeUnknown with the original error as cause.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var coded Coded
	if errors.As(err, &coded) {
		return WrapWithMetadata(coded.Code(), coded.Error(), coded.Metadata(), err)
	}
	return Wrap(CodeUnknown, err.Error(), err)
}

// CodeOf returns the code of the first coded error in the chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return FromError(err).Code
}
