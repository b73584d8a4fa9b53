package nfc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific type of NFC error for programmatic handling.
type ErrorCode int

const (
	// Device errors (100-199)
	ErrCodeNoDevice ErrorCode = iota + 100
	ErrCodeDeviceIO
	ErrCodeDeviceClosed
)

const (
	// Tag exchange errors (200-299)
	ErrCodeTransceiveFailed ErrorCode = iota + 200
	ErrCodeTimeout
	ErrCodeTagNotPresent
	ErrCodeCancelled
)

// Sentinels for errors.Is; matching is by code.
var (
	ErrNoDevice         = &NFCError{Code: ErrCodeNoDevice, Message: "no NFC device"}
	ErrDeviceIO         = &NFCError{Code: ErrCodeDeviceIO, Message: "device I/O error"}
	ErrDeviceClosed     = &NFCError{Code: ErrCodeDeviceClosed, Message: "device closed"}
	ErrTransceiveFailed = &NFCError{Code: ErrCodeTransceiveFailed, Message: "transceive failed"}
	ErrTimeout          = &NFCError{Code: ErrCodeTimeout, Message: "operation timed out"}
	ErrTagNotPresent    = &NFCError{Code: ErrCodeTagNotPresent, Message: "tag not present"}
	ErrCancelled        = &NFCError{Code: ErrCodeCancelled, Message: "operation cancelled"}
)

// NFCError provides structured error information for programmatic handling.
type NFCError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "Transceive")
	Device  string // Optional: connection string of the device involved
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Device != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Device)
		sb.WriteString(")")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError wraps an existing error with NFC context.
func WrapError(code ErrorCode, op, message string, cause error) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// Errorf creates an NFCError with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...interface{}) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

// IsTimeoutError checks for a typed timeout or a libnfc timeout message.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Operation timed out") ||
		strings.Contains(errStr, "operation timed out") ||
		strings.Contains(errStr, "timeout")
}

// IsIOError reports errors after which the device handle is unusable.
func IsIOError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDeviceIO) || errors.Is(err, ErrDeviceClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "input / output error") ||
		strings.Contains(errStr, "Input/output error") ||
		strings.Contains(errStr, "i/o error") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "Operation not permitted") ||
		strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "Device not configured")
}

// IsTagNotPresentError reports that no tag answered the frame.
func IsTagNotPresentError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTagNotPresent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Target Released") ||
		strings.Contains(errStr, "RF Transmission Error") ||
		strings.Contains(errStr, "tag not present")
}
