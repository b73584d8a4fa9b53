package nfc

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultOperationTimeout bounds a single frame exchange.
const DefaultOperationTimeout = 2 * time.Second

// DeviceStatus represents the status of the NFC device.
type DeviceStatus struct {
	Connected bool   `json:"connected"`
	Device    string `json:"device,omitempty"`
	Message   string `json:"message"`
}

// TagReader serialises frame exchanges with the tag over one device.
//
// Only one exchange is in flight at a time. A caller whose context ends
// while waiting gets ErrCancelled; an exchange already handed to libnfc
// runs to completion before the next one starts, but its result is
// discarded.
type TagReader struct {
	devices *DeviceManager
	timeout time.Duration
	logger  *slog.Logger
	sem     chan struct{}
}

// NewTagReader creates a TagReader over manager. deviceStr may be empty to
// use the first available device.
func NewTagReader(manager Manager, deviceStr string, opTimeout time.Duration, logger *slog.Logger) (*TagReader, error) {
	if manager == nil {
		return nil, fmt.Errorf("NFC manager cannot be nil")
	}
	if opTimeout <= 0 {
		opTimeout = DefaultOperationTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "nfc")
	return &TagReader{
		devices: NewDeviceManager(manager, deviceStr, logger),
		timeout: opTimeout,
		logger:  logger,
		sem:     make(chan struct{}, 1),
	}, nil
}

type transceiveResult struct {
	resp []byte
	err  error
}

// Transceive sends frame to the tag and waits for its response.
func (r *TagReader) Transceive(ctx context.Context, frame []byte) ([]byte, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, WrapError(ErrCodeCancelled, "Transceive", "waiting for channel", ctx.Err())
	}

	dev, err := r.devices.TryConnect()
	if err != nil {
		<-r.sem
		return nil, err
	}

	tx := append([]byte(nil), frame...)
	done := make(chan transceiveResult, 1)
	go func() {
		defer func() { <-r.sem }()
		resp, err := dev.Transceive(tx, r.timeout)
		done <- transceiveResult{resp: resp, err: err}
	}()

	timer := time.NewTimer(r.timeout + r.timeout/2)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, r.classify(dev, res.err)
		}
		r.logger.Debug("transceive", "tx", fmt.Sprintf("% X", tx), "rx", fmt.Sprintf("% X", res.resp))
		return res.resp, nil
	case <-timer.C:
		return nil, &NFCError{Code: ErrCodeTimeout, Op: "Transceive", Device: dev.Connection(), Message: "no response from tag"}
	case <-ctx.Done():
		return nil, WrapError(ErrCodeCancelled, "Transceive", "exchange abandoned", ctx.Err())
	}
}

func (r *TagReader) classify(dev Device, err error) error {
	if r.devices.HandleError(err) {
		return &NFCError{Code: ErrCodeDeviceIO, Op: "Transceive", Device: dev.Connection(), Message: "device I/O error", Cause: err}
	}
	if IsTimeoutError(err) {
		return &NFCError{Code: ErrCodeTimeout, Op: "Transceive", Device: dev.Connection(), Message: "no response from tag", Cause: err}
	}
	if IsTagNotPresentError(err) {
		return &NFCError{Code: ErrCodeTagNotPresent, Op: "Transceive", Device: dev.Connection(), Message: "tag not present", Cause: err}
	}
	return &NFCError{Code: ErrCodeTransceiveFailed, Op: "Transceive", Device: dev.Connection(), Message: "transceive failed", Cause: err}
}

// Status returns the current device status.
func (r *TagReader) Status() DeviceStatus {
	dev := r.devices.Device()
	if dev == nil {
		return DeviceStatus{Connected: false, Message: "Not connected"}
	}
	return DeviceStatus{
		Connected: true,
		Device:    dev.String(),
		Message:   fmt.Sprintf("Connected to %s", dev.String()),
	}
}

// Close releases the device. An exchange in flight finishes on its own.
func (r *TagReader) Close() {
	r.devices.Close()
}
