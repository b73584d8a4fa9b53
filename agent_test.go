package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotside-studios/cgm-agent/ble"
	"github.com/dotside-studios/cgm-agent/config"
	"github.com/dotside-studios/cgm-agent/logging"
	"github.com/dotside-studios/cgm-agent/nfc"
	"github.com/dotside-studios/cgm-agent/sensor"
	"github.com/dotside-studios/cgm-agent/session"
)

var (
	pairTime   = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	identifier = sensor.DeviceIdentifier{0xE0, 0x07, 0xA0, 0x00, 0x12, 0x34, 0x56, 0x78}
)

// sensorTag answers tag frames from a minimal active sensor image.
func sensorTag() func([]byte) ([]byte, error) {
	mem := make([]byte, sensor.ScanBlockCount*sensor.BlockPayloadLen)
	mem[4] = byte(sensor.StateActive)
	copy(mem[24:32], []byte{0x0A, 0x1B, 0xD2, 0x04, 0x02, 0x5F, 0x60, 0x71})

	return func(frame []byte) ([]byte, error) {
		switch frame[0] {
		case sensor.ActivateCommand().Opcode():
			return []byte{0x00}, nil
		case sensor.GetIdentifierCommand().Opcode():
			return identifier[:], nil
		case sensor.ReadBlockCommand(0).Opcode():
			off := int(frame[1]) * sensor.BlockPayloadLen
			return append([]byte{0x00, 0x00}, mem[off:off+sensor.BlockPayloadLen]...), nil
		}
		return nil, fmt.Errorf("unexpected frame % X", frame)
	}
}

func radioPayload(t *testing.T, values ...float64) []byte {
	t.Helper()
	plain := make([]byte, 32)
	plain[0] = sensor.RadioDataTypeGlucose
	plain[2] = byte(len(values))
	for i, v := range values {
		off := 10 + i*6
		ts := pairTime.Add(time.Duration(i-len(values)) * time.Minute)
		binary.LittleEndian.PutUint32(plain[off:], uint32(ts.Unix()))
		binary.LittleEndian.PutUint16(plain[off+4:], uint16(v*10))
	}
	keys, err := sensor.DeriveKeys(identifier[:])
	require.NoError(t, err)
	ct, err := sensor.Encrypt(plain, keys.Decryption[:])
	require.NoError(t, err)
	return ct
}

type recordingSink struct {
	mu    sync.Mutex
	kinds []session.UpdateKind
}

func (r *recordingSink) HandleUpdate(u session.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, u.Kind)
	return nil
}

func (r *recordingSink) Kinds() []session.UpdateKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.UpdateKind(nil), r.kinds...)
}

type failingSink struct{}

func (failingSink) HandleUpdate(session.Update) error {
	return errors.New("display unavailable")
}

func newTestAgent(t *testing.T) (*Agent, *nfc.MockManager, *ble.MockRadio) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Server.MDNS = false
	cfg.MQTT.Enabled = false

	manager := nfc.NewMockManager()
	manager.MockDevice.TransceiveFunc = sensorTag()
	radio := ble.NewMockRadio()

	a := NewAgent(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, manager)
	a.Radio = radio
	a.Clock = session.NewFakeClock(pairTime)
	return a, manager, radio
}

func TestAgent_StartStop(t *testing.T) {
	a, _, _ := newTestAgent(t)

	require.NoError(t, a.Start(context.Background()))
	assert.True(t, a.Running())
	assert.Error(t, a.Start(context.Background()), "second start")

	a.Stop()
	assert.False(t, a.Running())
	assert.Nil(t, a.Session)

	// Stopping twice is harmless.
	a.Stop()
}

func TestAgent_PairBeforeStart(t *testing.T) {
	a, _, _ := newTestAgent(t)
	assert.Error(t, a.Pair(context.Background()))
	assert.NoError(t, a.Unpair())
}

func TestAgent_PairStartsPolling(t *testing.T) {
	a, _, radio := newTestAgent(t)
	radio.SetValue(radioPayload(t, 101, 102))
	sink := &recordingSink{}
	a.AddSink(sink)

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)

	require.NoError(t, a.Pair(context.Background()))

	require.Eventually(t, func() bool {
		return len(a.Session.Window()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	st := a.Session.Status()
	assert.Equal(t, "0A1BD204025F6071", st.Serial)
	assert.Equal(t, session.StatePolling, st.State)
	assert.Equal(t, ble.NewMockRadio().Peer, st.Peer)

	require.Eventually(t, func() bool {
		kinds := sink.Kinds()
		return len(kinds) >= 3 && kinds[len(kinds)-1] == session.UpdateReadings
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, session.UpdateSensorInfo, sink.Kinds()[0])

	require.NoError(t, a.Unpair())
	assert.False(t, a.Session.Context().HasKeys())
	assert.Contains(t, radio.GetCallLog(), "Disconnect")
}

func TestAgent_LogsSinkErrors(t *testing.T) {
	a, _, radio := newTestAgent(t)
	radio.SetValue(radioPayload(t, 101))
	history := logging.NewHistory(slog.NewTextHandler(io.Discard, nil), logging.HistoryPolicy{Capacity: 256})
	a.Logger = slog.New(history)
	a.log = a.Logger.With("component", "agent")
	a.AddSink(failingSink{})

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)
	require.NoError(t, a.Pair(context.Background()))

	require.Eventually(t, func() bool {
		for _, e := range history.Entries() {
			if e.Message == "update sink failed" &&
				fmt.Sprint(e.Attrs["sink"]) == "main.failingSink" &&
				fmt.Sprint(e.Attrs["error"]) == "display unavailable" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
