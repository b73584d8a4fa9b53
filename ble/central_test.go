package ble

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotside-studios/cgm-agent/session"
)

func TestFilter_Match(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		peer    string
		address string
		want    bool
	}{
		{"empty filter", Filter{}, "anything", "00:11:22:33:44:55", true},
		{"name prefix", Filter{LocalName: "ABBOTT"}, "ABBOTT3MH00A1B2", "00:11:22:33:44:55", true},
		{"name mismatch", Filter{LocalName: "ABBOTT"}, "Pixel 8", "00:11:22:33:44:55", false},
		{"address case-insensitive", Filter{Address: "c4:7c:8d:6a:00:01"}, "", "C4:7C:8D:6A:00:01", true},
		{"address mismatch", Filter{Address: "C4:7C:8D:6A:00:01"}, "ABBOTT", "C4:7C:8D:6A:00:02", false},
		{"both must match", Filter{LocalName: "ABBOTT", Address: "C4:7C:8D:6A:00:01"}, "Other", "C4:7C:8D:6A:00:01", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.peer, tt.address))
		})
	}
}

func TestMockRadio_ImplementsTransport(t *testing.T) {
	var radio session.RadioTransport = NewMockRadio()

	h, err := radio.Connect(context.Background(), "svc", "chr")
	require.NoError(t, err)
	assert.Equal(t, "C4:7C:8D:6A:00:01", h.Address())

	mock := radio.(*MockRadio)
	mock.SetValue([]byte{1, 2, 3})
	v, err := radio.ReadCharacteristic(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, v)

	require.NoError(t, radio.Disconnect(h))
	assert.Equal(t, []string{"Connect(svc, chr)", "ReadCharacteristic", "Disconnect"}, mock.GetCallLog())
}

func TestCentral_RejectsForeignHandle(t *testing.T) {
	c := &Central{logger: discard()}
	_, err := c.ReadCharacteristic(context.Background(), &MockHandle{Peer: "x"})
	assert.Error(t, err)
	assert.Error(t, c.Disconnect(&MockHandle{Peer: "x"}))
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
