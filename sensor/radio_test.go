package sensor

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func radioPayload(dataType byte, declared int, readings ...[2]uint32) []byte {
	buf := make([]byte, radioOffsetReadings+len(readings)*slotLen)
	buf[radioOffsetType] = dataType
	buf[radioOffsetCount] = byte(declared)
	for i, r := range readings {
		off := radioOffsetReadings + i*slotLen
		binary.LittleEndian.PutUint32(buf[off:], r[0])
		binary.LittleEndian.PutUint16(buf[off+4:], uint16(r[1]))
	}
	return buf
}

func TestDecodeRadioPayload_Readings(t *testing.T) {
	buf := radioPayload(RadioDataTypeGlucose, 2,
		[2]uint32{1700000000, 1055},
		[2]uint32{1700000060, 1062},
	)
	got := testDecoder().DecodeRadioPayload(buf)
	require.Len(t, got, 2)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), got[0].Timestamp)
	assert.InDelta(t, 105.5, got[0].Value, 1e-9)
	assert.Equal(t, UnitMgDL, got[1].Unit)
	assert.InDelta(t, 106.2, got[1].Value, 1e-9)
}

func TestDecodeRadioPayload_TooShort(t *testing.T) {
	for _, n := range []int{0, 1, 9, 15} {
		got := testDecoder().DecodeRadioPayload(make([]byte, n))
		assert.NotNil(t, got)
		assert.Empty(t, got, "len %d", n)
	}
}

func TestDecodeRadioPayload_StopsAtBufferEnd(t *testing.T) {
	buf := radioPayload(RadioDataTypeGlucose, 5,
		[2]uint32{1700000000, 1000},
		[2]uint32{1700000060, 1010},
	)
	buf = append(buf, 0x01, 0x02, 0x03) // partial third slot
	got := testDecoder().DecodeRadioPayload(buf)
	assert.Len(t, got, 2)
}

func TestDecodeRadioPayload_DeclaredCountBelowAvailable(t *testing.T) {
	buf := radioPayload(RadioDataTypeGlucose, 1,
		[2]uint32{1700000000, 1000},
		[2]uint32{1700000060, 1010},
	)
	got := testDecoder().DecodeRadioPayload(buf)
	assert.Len(t, got, 1)
}

func TestDecodeRadioPayload_UnexpectedTypeProceeds(t *testing.T) {
	var logs bytes.Buffer
	d := NewDecoder(slog.New(slog.NewTextHandler(&logs, nil)))

	buf := radioPayload(0x7F, 1, [2]uint32{1700000000, 900})
	got := d.DecodeRadioPayload(buf)
	require.Len(t, got, 1)
	assert.InDelta(t, 90.0, got[0].Value, 1e-9)
	assert.Contains(t, logs.String(), "unexpected radio data type")
}
