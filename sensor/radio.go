package sensor

import "encoding/binary"

// Radio payload layout. The header was reverse engineered; treat these
// offsets as provisional until checked against device captures.
const (
	radioOffsetType     = 0
	radioOffsetCount    = 2
	radioOffsetReadings = 10
	radioMinLen         = 16

	// RadioDataTypeGlucose tags a payload carrying glucose readings.
	RadioDataTypeGlucose byte = 0x01
)

// DecodeRadioPayload decodes a decrypted radio payload into readings.
// Short buffers yield an empty result; truncated trailing slots are dropped.
func (d *Decoder) DecodeRadioPayload(buf []byte) []GlucoseReading {
	if len(buf) < radioMinLen {
		d.logger.Warn("radio payload too short",
			"error", ErrBufferTooShort,
			"len", len(buf),
			"min", radioMinLen,
		)
		return []GlucoseReading{}
	}

	if t := buf[radioOffsetType]; t != RadioDataTypeGlucose {
		d.logger.Warn("unexpected radio data type",
			"error", ErrUnexpectedDataType,
			"got", t,
			"want", RadioDataTypeGlucose,
		)
	}

	count := int(buf[radioOffsetCount])
	readings := make([]GlucoseReading, 0, count)
	for i := 0; i < count; i++ {
		off := radioOffsetReadings + i*slotLen
		if off+slotLen > len(buf) {
			d.logger.Debug("radio payload truncated",
				"declared", count,
				"decoded", i,
				"len", len(buf),
			)
			break
		}
		ts := binary.LittleEndian.Uint32(buf[off:])
		raw := binary.LittleEndian.Uint16(buf[off+4:])
		readings = append(readings, newReading(ts, raw))
	}
	return readings
}
