package sensor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a protocol failure for programmatic handling.
type ErrorCode int

const (
	// Structural errors (100-199) abort the enclosing scan or poll.
	ErrCodeInvalidIdentifier ErrorCode = iota + 100
	ErrCodeTransportFailure
	ErrCodeMalformedCiphertext
	ErrCodeInvalidKey
	ErrCodeKeysUnavailable
)

const (
	// Decode anomalies (200-299) are recovered locally and only reported.
	ErrCodeBufferTooShort ErrorCode = iota + 200
	ErrCodeUnexpectedDataType
)

// Sentinels for errors.Is. Matching is by code, so a wrapped *Error with a
// different Op or Cause still matches its sentinel.
var (
	ErrInvalidIdentifier   = &Error{Code: ErrCodeInvalidIdentifier, Message: "invalid device identifier"}
	ErrTransportFailure    = &Error{Code: ErrCodeTransportFailure, Message: "transport failure"}
	ErrMalformedCiphertext = &Error{Code: ErrCodeMalformedCiphertext, Message: "malformed ciphertext"}
	ErrInvalidKey          = &Error{Code: ErrCodeInvalidKey, Message: "invalid key"}
	ErrKeysUnavailable     = &Error{Code: ErrCodeKeysUnavailable, Message: "keys unavailable"}
	ErrBufferTooShort      = &Error{Code: ErrCodeBufferTooShort, Message: "buffer too short"}
	ErrUnexpectedDataType  = &Error{Code: ErrCodeUnexpectedDataType, Message: "unexpected data type"}
)

// Error carries structured information about a protocol failure.
type Error struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "DeriveKeys", "Decrypt")
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Errorf creates an Error with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewTransportError wraps a failure reported by a tag or radio transport.
// The cause is kept as-is; this layer does not interpret it.
func NewTransportError(op string, cause error) *Error {
	return &Error{
		Code:    ErrCodeTransportFailure,
		Op:      op,
		Message: "transport failure",
		Cause:   cause,
	}
}

// GetErrorCode extracts the ErrorCode from err, or 0 if err is not an *Error.
func GetErrorCode(err error) ErrorCode {
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr.Code
	}
	return 0
}
