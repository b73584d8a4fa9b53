package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotside-studios/cgm-agent/sensor"
)

var (
	testStart      = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	testIdentifier = sensor.DeviceIdentifier{0xE0, 0x07, 0xA0, 0x00, 0x12, 0x34, 0x56, 0x78}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTag answers tag frames from an in-memory sensor image.
type fakeTag struct {
	mu         sync.Mutex
	memory     []byte
	idResponse []byte
	failBlock  int
	frames     [][]byte
}

func newFakeTag() *fakeTag {
	mem := make([]byte, sensor.ScanBlockCount*sensor.BlockPayloadLen)
	mem[4] = byte(sensor.StateActive)
	copy(mem[24:32], []byte{0x0A, 0x1B, 0xD2, 0x04, 0x02, 0x5F, 0x60, 0x71})
	putSlot(mem, 0, testStart.Add(-time.Hour), 1234)

	id := append([]byte{0x00, 0x00}, testIdentifier[:]...)
	return &fakeTag{memory: mem, idResponse: id, failBlock: -1}
}

func putSlot(mem []byte, slot int, ts time.Time, raw uint16) {
	off := 124 + slot*6
	binary.LittleEndian.PutUint32(mem[off:], uint32(ts.Unix()))
	binary.LittleEndian.PutUint16(mem[off+4:], raw)
}

func (f *fakeTag) Transceive(ctx context.Context, frame []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), frame...))

	switch frame[0] {
	case sensor.ActivateCommand().Opcode():
		return []byte{0x00}, nil
	case sensor.GetIdentifierCommand().Opcode():
		return f.idResponse, nil
	case sensor.ReadBlockCommand(0).Opcode():
		block := int(frame[1])
		if block == f.failBlock {
			return nil, fmt.Errorf("Target Released")
		}
		off := block * sensor.BlockPayloadLen
		return append([]byte{0x00, 0x00}, f.memory[off:off+sensor.BlockPayloadLen]...), nil
	}
	return nil, fmt.Errorf("unexpected frame % X", frame)
}

// SetIdentifier makes the tag answer as a different sensor.
func (f *fakeTag) SetIdentifier(id sensor.DeviceIdentifier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idResponse = append([]byte{0x00, 0x00}, id[:]...)
}

func (f *fakeTag) Frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

type fakeHandle string

func (h fakeHandle) Address() string { return string(h) }

// fakeRadio serves a fixed characteristic value, or defers to ReadFunc.
// ConnectFunc, when set, runs inside Connect before the handle is returned.
type fakeRadio struct {
	Value       []byte
	ReadFunc    func(ctx context.Context) ([]byte, error)
	ConnectFunc func(ctx context.Context) error
	ConnectErr  error
	connects    atomic.Int32
	reads       atomic.Int32
	disconnects atomic.Int32
}

func (r *fakeRadio) Connect(ctx context.Context, serviceID, characteristicID string) (RadioHandle, error) {
	r.connects.Add(1)
	if r.ConnectErr != nil {
		return nil, r.ConnectErr
	}
	if r.ConnectFunc != nil {
		if err := r.ConnectFunc(ctx); err != nil {
			return nil, err
		}
	}
	return fakeHandle("C4:7C:8D:6A:01:02"), nil
}

func (r *fakeRadio) ReadCharacteristic(ctx context.Context, h RadioHandle) ([]byte, error) {
	r.reads.Add(1)
	if r.ReadFunc != nil {
		return r.ReadFunc(ctx)
	}
	return r.Value, nil
}

func (r *fakeRadio) Disconnect(h RadioHandle) error {
	r.disconnects.Add(1)
	return nil
}

// radioCiphertext builds an encrypted radio payload carrying readings.
func radioCiphertext(t *testing.T, readings ...sensor.GlucoseReading) []byte {
	t.Helper()
	plain := make([]byte, 32)
	plain[0] = sensor.RadioDataTypeGlucose
	plain[2] = byte(len(readings))
	for i, r := range readings {
		off := 10 + i*6
		binary.LittleEndian.PutUint32(plain[off:], uint32(r.Timestamp.Unix()))
		binary.LittleEndian.PutUint16(plain[off+4:], uint16(math.Round(r.Value*10)))
	}
	keys, err := sensor.DeriveKeys(testIdentifier[:])
	require.NoError(t, err)
	ct, err := sensor.Encrypt(plain, keys.Decryption[:])
	require.NoError(t, err)
	return ct
}

func reading(ts time.Time, value float64) sensor.GlucoseReading {
	return sensor.GlucoseReading{Timestamp: ts.UTC(), Value: value, Unit: sensor.UnitMgDL}
}

func newTestSession(tag TagTransport, radio RadioTransport, clock *FakeClock, mutate ...func(*Options)) *Session {
	opts := Options{
		ServiceID:        "0000fde3-0000-1000-8000-00805f9b34fb",
		CharacteristicID: "0000f001-0000-1000-8000-00805f9b34fb",
		Clock:            clock,
		Logger:           discardLogger(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	return New(tag, radio, opts)
}
