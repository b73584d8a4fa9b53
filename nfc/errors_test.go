package nfc

import (
	"errors"
	"fmt"
	"testing"
)

func TestNFCError_Error(t *testing.T) {
	err := &NFCError{
		Code:    ErrCodeTransceiveFailed,
		Op:      "Transceive",
		Device:  "pn532_uart:/dev/ttyUSB0",
		Message: "transceive failed",
		Cause:   fmt.Errorf("boom"),
	}
	want := "Transceive: transceive failed (pn532_uart:/dev/ttyUSB0): boom"
	if got := err.Error(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestNFCError_IsMatchesCode(t *testing.T) {
	wrapped := fmt.Errorf("scan: %w", Errorf(ErrCodeTimeout, "Transceive", "no response"))
	if !errors.Is(wrapped, ErrTimeout) {
		t.Error("Expected wrapped timeout to match ErrTimeout")
	}
	if errors.Is(wrapped, ErrDeviceIO) {
		t.Error("Timeout must not match ErrDeviceIO")
	}
	if GetErrorCode(wrapped) != ErrCodeTimeout {
		t.Errorf("Unexpected code %d", GetErrorCode(wrapped))
	}
	if GetErrorCode(fmt.Errorf("plain")) != 0 {
		t.Error("Expected code 0 for plain errors")
	}
}

func TestNFCError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := WrapError(ErrCodeDeviceIO, "TryConnect", "failed", cause)
	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to reach the cause")
	}
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		err        error
		timeout    bool
		io         bool
		notPresent bool
	}{
		{nil, false, false, false},
		{fmt.Errorf("Operation timed out"), true, false, false},
		{fmt.Errorf("libnfc: Input/output error"), false, true, false},
		{fmt.Errorf("broken pipe"), false, true, false},
		{ErrDeviceClosed, false, true, false},
		{fmt.Errorf("Target Released"), false, false, true},
		{ErrTagNotPresent, false, false, true},
	}
	for _, tt := range tests {
		if got := IsTimeoutError(tt.err); got != tt.timeout {
			t.Errorf("IsTimeoutError(%v) = %v", tt.err, got)
		}
		if got := IsIOError(tt.err); got != tt.io {
			t.Errorf("IsIOError(%v) = %v", tt.err, got)
		}
		if got := IsTagNotPresentError(tt.err); got != tt.notPresent {
			t.Errorf("IsTagNotPresentError(%v) = %v", tt.err, got)
		}
	}
}
