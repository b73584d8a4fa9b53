package sensor

// Command is a fixed 8-byte tag interface frame. Byte 0 is the opcode.
type Command [8]byte

// Opcodes and constants for the tag interface.
const (
	opGetIdentifier  byte = 0x26
	opReadBlock      byte = 0x23
	opActivate       byte = 0xA0
	opSensorInfo     byte = 0xA1
	opCurrentGlucose byte = 0xA2

	// vendorCode follows the vendor-specific opcodes.
	vendorCode byte = 0x07

	// MaxBlocksPerRead is the largest block count the sensor accepts in one
	// multiple-block read.
	MaxBlocksPerRead = 3
)

// Bytes returns the frame as a slice for transports that take []byte.
func (c Command) Bytes() []byte {
	b := make([]byte, len(c))
	copy(b, c[:])
	return b
}

// Opcode returns the first byte of the frame.
func (c Command) Opcode() byte {
	return c[0]
}

// GetIdentifierCommand requests the 8-byte device identifier.
func GetIdentifierCommand() Command {
	return Command{opGetIdentifier, 0x01}
}

// ReadBlockCommand reads a single 8-byte memory block.
func ReadBlockCommand(block uint8) Command {
	return Command{opReadBlock, block}
}

// ReadMultipleBlocksCommand reads count consecutive blocks starting at start.
// The count is clamped to [1, MaxBlocksPerRead]; the frame encodes count-1.
func ReadMultipleBlocksCommand(start, count uint8) Command {
	if count > MaxBlocksPerRead {
		count = MaxBlocksPerRead
	}
	if count == 0 {
		count = 1
	}
	return Command{opReadBlock, start, count - 1}
}

// ActivateCommand wakes the sensor before the scan sequence.
func ActivateCommand() Command {
	return Command{opActivate, vendorCode}
}

// SensorInfoCommand requests the sensor information record.
func SensorInfoCommand() Command {
	return Command{opSensorInfo, vendorCode}
}

// CurrentGlucoseCommand requests the most recent glucose record.
func CurrentGlucoseCommand() Command {
	return Command{opCurrentGlucose, vendorCode}
}
