package session

import "context"

// TagTransport exchanges frames with the sensor over the contactless tag
// interface. Implementations fail when no tag answers or on timeout.
type TagTransport interface {
	Transceive(ctx context.Context, frame []byte) ([]byte, error)
}

// RadioHandle identifies an open radio-link connection.
type RadioHandle interface {
	Address() string
}

// RadioTransport reads the sensor's glucose characteristic over the radio
// link. ReadCharacteristic may return the value raw or base64 encoded.
type RadioTransport interface {
	Connect(ctx context.Context, serviceID, characteristicID string) (RadioHandle, error)
	ReadCharacteristic(ctx context.Context, h RadioHandle) ([]byte, error)
	Disconnect(h RadioHandle) error
}
