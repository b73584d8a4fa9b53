package nfc

import (
	"fmt"
	"time"

	"github.com/clausecker/nfc/v2"
)

// DeviceEnumRetries is how many times ListDevices retries libnfc enumeration.
const DeviceEnumRetries = 3

// Manager handles NFC device discovery.
//
// Example:
//
//	manager := nfc.NewManager()
//	devices, _ := manager.ListDevices()
//	device, _ := manager.OpenDevice(devices[0])
type Manager interface {
	OpenDevice(deviceStr string) (Device, error)
	ListDevices() ([]string, error)
}

// NewManager creates a new Manager backed by libnfc.
func NewManager() Manager {
	return &defaultManager{}
}

// defaultManager implements Manager using libnfc.
type defaultManager struct{}

func (m *defaultManager) OpenDevice(deviceStr string) (Device, error) {
	dev, err := nfc.Open(deviceStr)
	if err != nil {
		return nil, err
	}
	return NewDevice(dev), nil
}

func (m *defaultManager) ListDevices() ([]string, error) {
	var devices []string
	var err error
	for i := 0; i < DeviceEnumRetries; i++ {
		devices, err = nfc.ListDevices()
		if err == nil {
			return devices, nil
		}
		time.Sleep(time.Millisecond * 100)
	}
	return nil, fmt.Errorf("failed to list NFC devices after %d retries: %w", DeviceEnumRetries, err)
}
