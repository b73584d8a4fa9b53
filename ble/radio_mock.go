package ble

import (
	"context"
	"fmt"
	"sync"

	"github.com/dotside-studios/cgm-agent/session"
)

// MockHandle is the handle returned by MockRadio.
type MockHandle struct {
	Peer string
}

func (h *MockHandle) Address() string {
	return h.Peer
}

// MockRadio is a test implementation of session.RadioTransport.
//
// Example:
//
//	radio := NewMockRadio()
//	radio.Value = ciphertext
//	sess := session.New(tag, radio, session.Options{})
type MockRadio struct {
	// Peer is the address reported by connected handles
	Peer string

	// ConnectError, if set, will be returned by Connect()
	ConnectError error

	// ReadFunc allows custom read behavior for testing
	// If nil, returns Value or ReadError
	ReadFunc func(ctx context.Context) ([]byte, error)

	// Value is the default characteristic value
	Value []byte

	// ReadError, if set, will be returned by ReadCharacteristic()
	ReadError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

// NewMockRadio creates a new MockRadio with default values.
func NewMockRadio() *MockRadio {
	return &MockRadio{
		Peer:    "C4:7C:8D:6A:00:01",
		CallLog: make([]string, 0),
	}
}

func (m *MockRadio) Connect(ctx context.Context, serviceID, characteristicID string) (session.RadioHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("Connect(%s, %s)", serviceID, characteristicID))
	if m.ConnectError != nil {
		return nil, m.ConnectError
	}
	return &MockHandle{Peer: m.Peer}, nil
}

func (m *MockRadio) ReadCharacteristic(ctx context.Context, h session.RadioHandle) ([]byte, error) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, "ReadCharacteristic")
	fn, value, err := m.ReadFunc, m.Value, m.ReadError
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), value...), nil
}

func (m *MockRadio) Disconnect(h session.RadioHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, "Disconnect")
	return nil
}

// SetValue replaces the characteristic value.
func (m *MockRadio) SetValue(v []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Value = append([]byte(nil), v...)
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockRadio) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}
