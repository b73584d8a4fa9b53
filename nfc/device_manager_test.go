package nfc

import (
	"errors"
	"fmt"
	"testing"
)

func TestDeviceManager_TryConnectFirstDevice(t *testing.T) {
	manager := NewMockManager()
	manager.DevicesList = []string{"mock:usb:003", "mock:usb:004"}
	dm := NewDeviceManager(manager, "", discardLogger())

	dev, err := dm.TryConnect()
	if err != nil {
		t.Fatalf("TryConnect() failed: %v", err)
	}
	if dev.Connection() != "mock:usb:003" {
		t.Errorf("Expected first listed device, got %s", dev.Connection())
	}
	if dm.DevicePath() != "mock:usb:003" {
		t.Errorf("Expected device path to be remembered, got %s", dm.DevicePath())
	}

	// A second call reuses the open device.
	if _, err := dm.TryConnect(); err != nil {
		t.Fatalf("TryConnect() failed: %v", err)
	}
	opens := 0
	for _, call := range manager.GetCallLog() {
		if call == "OpenDevice(mock:usb:003)" {
			opens++
		}
	}
	if opens != 1 {
		t.Errorf("Expected 1 OpenDevice call, got %d", opens)
	}
}

func TestDeviceManager_ExplicitPath(t *testing.T) {
	manager := NewMockManager()
	dm := NewDeviceManager(manager, "pn532_uart:/dev/ttyUSB0", discardLogger())

	if _, err := dm.TryConnect(); err != nil {
		t.Fatalf("TryConnect() failed: %v", err)
	}
	for _, call := range manager.GetCallLog() {
		if call == "ListDevices" {
			t.Error("ListDevices must not be called when a path is configured")
		}
	}
}

func TestDeviceManager_OpenError(t *testing.T) {
	manager := NewMockManager()
	manager.OpenDeviceError = fmt.Errorf("device busy")
	dm := NewDeviceManager(manager, "", discardLogger())

	_, err := dm.TryConnect()
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("Expected ErrNoDevice, got %v", err)
	}
	if dm.HasDevice() {
		t.Error("Expected no device after failed open")
	}
}

func TestDeviceManager_InitError(t *testing.T) {
	manager := NewMockManager()
	manager.MockDevice.InitError = fmt.Errorf("init failed")
	dm := NewDeviceManager(manager, "", discardLogger())

	_, err := dm.TryConnect()
	if !errors.Is(err, ErrDeviceIO) {
		t.Errorf("Expected ErrDeviceIO, got %v", err)
	}
	if manager.MockDevice.IsOpen {
		t.Error("Expected device to be closed after init failure")
	}
}

func TestDeviceManager_HandleError(t *testing.T) {
	manager := NewMockManager()
	dm := NewDeviceManager(manager, "", discardLogger())
	if _, err := dm.TryConnect(); err != nil {
		t.Fatalf("TryConnect() failed: %v", err)
	}

	if dm.HandleError(fmt.Errorf("Target Released")) {
		t.Error("Tag errors must not drop the device")
	}
	if !dm.HasDevice() {
		t.Fatal("Expected device to stay connected")
	}

	if !dm.HandleError(fmt.Errorf("broken pipe")) {
		t.Error("Expected I/O error to drop the device")
	}
	if dm.HasDevice() {
		t.Error("Expected no device after I/O error")
	}
}
