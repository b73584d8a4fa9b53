package nfc

import "time"

// Device represents an NFC reader/writer hardware device.
//
// A Device is obtained from a Manager and exchanges raw frames with the tag
// in its field. The channel is half-duplex: callers must not overlap
// Transceive calls. TagReader enforces that.
//
// Example:
//
//	manager := nfc.NewManager()
//	device, err := manager.OpenDevice("")
//	defer device.Close()
type Device interface {
	Close() error
	InitiatorInit() error
	String() string
	Connection() string
	Transceive(txData []byte, timeout time.Duration) ([]byte, error)
}
