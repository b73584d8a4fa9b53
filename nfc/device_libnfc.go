package nfc

import (
	"fmt"
	"time"

	"github.com/clausecker/nfc/v2"
)

// maxFrameLen is the largest response libnfc hands back in one exchange.
const maxFrameLen = 262

// libnfcDevice implements Device using an actual nfc.Device from libnfc.
type libnfcDevice struct {
	device nfc.Device
}

// NewDevice creates a new Device from an nfc.Device.
func NewDevice(dev nfc.Device) Device {
	return &libnfcDevice{device: dev}
}

func (d *libnfcDevice) Close() error {
	return d.device.Close()
}

func (d *libnfcDevice) InitiatorInit() error {
	return d.device.InitiatorInit()
}

func (d *libnfcDevice) String() string {
	return d.device.String()
}

func (d *libnfcDevice) Connection() string {
	return d.device.Connection()
}

// Transceive sends one frame and returns the tag response. A zero timeout
// lets libnfc pick its default.
func (d *libnfcDevice) Transceive(txData []byte, timeout time.Duration) ([]byte, error) {
	var rxData [maxFrameLen]byte
	count, err := d.device.InitiatorTransceiveBytes(txData, rxData[:], int(timeout/time.Millisecond))
	if err != nil {
		return nil, fmt.Errorf("libnfcDevice.Transceive: %w", err)
	}
	out := make([]byte, count)
	copy(out, rxData[:count])
	return out, nil
}
