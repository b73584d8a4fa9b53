package nfc

import (
	"fmt"
	"log/slog"
	"sync"
)

// DeviceManager maintains the connection to a single NFC device and drops it
// after I/O errors so the next operation reconnects.
type DeviceManager struct {
	manager    Manager
	device     Device
	devicePath string
	logger     *slog.Logger

	mu sync.RWMutex
}

// NewDeviceManager creates a new DeviceManager. An empty devicePath picks the
// first device the manager lists.
func NewDeviceManager(manager Manager, devicePath string, logger *slog.Logger) *DeviceManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceManager{
		manager:    manager,
		devicePath: devicePath,
		logger:     logger,
	}
}

// Device returns the current active device, or nil if not connected.
func (dm *DeviceManager) Device() Device {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.device
}

// HasDevice returns true if a device is currently connected.
func (dm *DeviceManager) HasDevice() bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.device != nil
}

// DevicePath returns the path of the device being managed.
func (dm *DeviceManager) DevicePath() string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.devicePath
}

// TryConnect returns the connected device, opening and initialising one if
// needed.
func (dm *DeviceManager) TryConnect() (Device, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.device != nil {
		return dm.device, nil
	}

	path := dm.devicePath
	if path == "" {
		devices, err := dm.manager.ListDevices()
		if err != nil {
			return nil, WrapError(ErrCodeNoDevice, "TryConnect", "error listing NFC devices", err)
		}
		if len(devices) == 0 {
			return nil, Errorf(ErrCodeNoDevice, "TryConnect", "no NFC devices found by manager")
		}
		path = devices[0]
		dm.logger.Info("no device path configured, using first available", "device", path)
	}

	dev, err := dm.manager.OpenDevice(path)
	if err != nil {
		return nil, WrapError(ErrCodeNoDevice, "TryConnect", fmt.Sprintf("failed to open device %s", path), err)
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return nil, WrapError(ErrCodeDeviceIO, "TryConnect", fmt.Sprintf("failed to initialize device %s", path), err)
	}

	dm.device = dev
	dm.devicePath = path
	dm.logger.Info("connected to NFC device", "device", dev.String(), "connection", dev.Connection())
	return dev, nil
}

// HandleError closes the device if err leaves it unusable. It returns true
// when the device was dropped.
func (dm *DeviceManager) HandleError(err error) bool {
	if !IsIOError(err) {
		return false
	}
	dm.logger.Warn("device I/O error, closing device", "error", err)
	dm.Close()
	return true
}

// Close closes the current device connection.
func (dm *DeviceManager) Close() {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.device != nil {
		if err := dm.device.Close(); err != nil {
			dm.logger.Warn("error closing device", "error", err)
		}
		dm.device = nil
	}
}
