package nfc

import (
	"fmt"
	"sync"
	"time"
)

// MockDevice is a test implementation of Device that simulates NFC hardware.
//
// Example:
//
//	mock := NewMockDevice()
//	mock.TransceiveFunc = func(tx []byte) ([]byte, error) {
//	    return []byte{0x00, 0x00, 1, 2, 3, 4, 5, 6, 7, 8}, nil
//	}
type MockDevice struct {
	// DeviceName is the simulated device name returned by String()
	DeviceName string

	// DeviceConnection is the simulated connection string returned by Connection()
	DeviceConnection string

	// IsOpen tracks whether the device is currently open
	IsOpen bool

	// InitError, if set, will be returned by InitiatorInit()
	InitError error

	// CloseError, if set, will be returned by Close()
	CloseError error

	// TransceiveFunc allows custom transceive behavior for testing
	// If nil, returns TransceiveResponse or TransceiveError
	TransceiveFunc func([]byte) ([]byte, error)

	// TransceiveResponse is the default response for Transceive calls
	TransceiveResponse []byte

	// TransceiveError, if set, will be returned by Transceive()
	TransceiveError error

	// Frames records every frame passed to Transceive
	Frames [][]byte

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

// NewMockDevice creates a new MockDevice with default values.
func NewMockDevice() *MockDevice {
	return &MockDevice{
		DeviceName:       "Mock NFC Reader",
		DeviceConnection: "mock:usb:001",
		IsOpen:           true,
		CallLog:          make([]string, 0),
	}
}

// Close simulates closing the device.
func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Close")

	if !m.IsOpen {
		return fmt.Errorf("device already closed")
	}

	m.IsOpen = false
	return m.CloseError
}

// InitiatorInit simulates device initialization.
func (m *MockDevice) InitiatorInit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "InitiatorInit")

	if !m.IsOpen {
		return fmt.Errorf("device not open")
	}

	return m.InitError
}

// String returns the simulated device name.
func (m *MockDevice) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DeviceName
}

// Connection returns the simulated connection string.
func (m *MockDevice) Connection() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DeviceConnection
}

// Transceive simulates a frame exchange with the tag.
func (m *MockDevice) Transceive(txData []byte, timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("Transceive(%d bytes)", len(txData)))
	m.Frames = append(m.Frames, append([]byte(nil), txData...))
	open := m.IsOpen
	fn := m.TransceiveFunc
	resp, err := m.TransceiveResponse, m.TransceiveError
	m.mu.Unlock()

	if !open {
		return nil, fmt.Errorf("device closed")
	}
	if fn != nil {
		return fn(txData)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Reopen marks the device open again so a DeviceManager can reuse it.
func (m *MockDevice) Reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IsOpen = true
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockDevice) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}

// GetFrames returns a copy of the frames sent so far.
func (m *MockDevice) GetFrames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	frames := make([][]byte, len(m.Frames))
	copy(frames, m.Frames)
	return frames
}

// ClearCallLog clears the call log.
func (m *MockDevice) ClearCallLog() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = make([]string, 0)
	m.Frames = nil
}
