package sensor

import (
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"
)

// Tag memory geometry.
const (
	BlockStatusLen  = 2
	BlockPayloadLen = 8
	RawBlockLen     = BlockStatusLen + BlockPayloadLen

	// ScanBlockCount is the number of blocks read by a full scan.
	ScanBlockCount = 43
)

// Tag memory field offsets within the assembled buffer.
const (
	offsetState          = 4
	offsetSerial         = 24
	serialLen            = 8
	offsetCurrentGlucose = 26
	offsetTrend          = 28
	offsetHistory        = 124
	historySlots         = 32
	slotLen              = 6
	offsetSensorAge      = 316
	offsetStartTime      = 317

	// TagMemoryLen is the smallest buffer that holds every field.
	TagMemoryLen = offsetStartTime + 4
)

// minValidEpoch rejects slot timestamps before 2014-01-01, earlier than any
// sensor could have been written.
const minValidEpoch = 1388534400

// rawGlucoseUnset marks an erased glucose field.
const rawGlucoseUnset = 0xFFFF

// RawBlock is one transport response for a block read: two status bytes
// followed by the 8-byte payload.
type RawBlock []byte

// Payload returns the 8 payload bytes, zero-filled if the block is short.
func (b RawBlock) Payload() [BlockPayloadLen]byte {
	var p [BlockPayloadLen]byte
	if len(b) > BlockStatusLen {
		copy(p[:], b[BlockStatusLen:])
	}
	return p
}

// AssembleBlocks concatenates block payloads in block-number order.
func AssembleBlocks(blocks []RawBlock) []byte {
	buf := make([]byte, 0, len(blocks)*BlockPayloadLen)
	for _, b := range blocks {
		p := b.Payload()
		buf = append(buf, p[:]...)
	}
	return buf
}

// Decoder turns raw sensor buffers into typed values. Anomalies are logged
// and recovered from; decoding never fails.
type Decoder struct {
	logger *slog.Logger
}

// NewDecoder returns a decoder that reports anomalies to logger.
// A nil logger uses slog.Default().
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger.With("component", "decoder")}
}

// fieldReader reads fixed-offset little-endian fields and records whether any
// read fell outside the buffer.
type fieldReader struct {
	buf     []byte
	missing []int
}

func (r *fieldReader) has(off, n int) bool {
	if off+n > len(r.buf) {
		r.missing = append(r.missing, off)
		return false
	}
	return true
}

func (r *fieldReader) u8(off int) byte {
	if !r.has(off, 1) {
		return 0
	}
	return r.buf[off]
}

func (r *fieldReader) u16(off int) uint16 {
	if !r.has(off, 2) {
		return 0
	}
	return binary.LittleEndian.Uint16(r.buf[off:])
}

func (r *fieldReader) u32(off int) uint32 {
	if !r.has(off, 4) {
		return 0
	}
	return binary.LittleEndian.Uint32(r.buf[off:])
}

func (r *fieldReader) hex(off, n int) string {
	if !r.has(off, n) {
		return ""
	}
	return strings.ToUpper(hex.EncodeToString(r.buf[off : off+n]))
}

// DecodeTagMemory extracts SensorInfo from an assembled tag memory buffer.
func (d *Decoder) DecodeTagMemory(buf []byte) SensorInfo {
	r := &fieldReader{buf: buf}

	info := SensorInfo{
		SerialNumber:   r.hex(offsetSerial, serialLen),
		State:          stateFromByte(r.u8(offsetState)),
		CurrentGlucose: float64(r.u16(offsetCurrentGlucose)) / 10,
		Trend:          trendFromByte(r.u8(offsetTrend)),
		Age:            SensorAge{Minutes: r.u16(offsetSensorAge)},
	}
	if start := r.u32(offsetStartTime); start != 0 {
		info.StartTime = time.Unix(int64(start), 0).UTC()
	}

	info.HistoricalReadings = make([]GlucoseReading, 0, historySlots)
	skipped := 0
	for slot := 0; slot < historySlots; slot++ {
		off := offsetHistory + slot*slotLen
		if off+slotLen > len(buf) {
			break
		}
		ts := binary.LittleEndian.Uint32(buf[off:])
		raw := binary.LittleEndian.Uint16(buf[off+4:])
		if !validSlot(ts, raw) {
			skipped++
			continue
		}
		info.HistoricalReadings = append(info.HistoricalReadings, newReading(ts, raw))
	}

	if len(r.missing) > 0 || len(buf) < TagMemoryLen {
		d.logger.Warn("tag memory shorter than layout",
			"error", ErrBufferTooShort,
			"len", len(buf),
			"want", TagMemoryLen,
			"missing_offsets", r.missing,
		)
	}
	d.logger.Debug("decoded tag memory",
		"serial", info.SerialNumber,
		"state", info.State,
		"glucose", info.CurrentGlucose,
		"trend", info.Trend,
		"history", len(info.HistoricalReadings),
		"skipped_slots", skipped,
	)
	return info
}

// validSlot reports whether a history slot was ever written.
func validSlot(ts uint32, raw uint16) bool {
	if ts == 0 || ts == 0xFFFFFFFF || ts < minValidEpoch {
		return false
	}
	return raw != 0 && raw != rawGlucoseUnset
}
