package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/moffa90/go-otsota/ots"
)

// BuildFrame wraps data in a frame with the given opcode or status byte.
//
// Frame structure:
//
//	[SOP][CODE][LEN_L][LEN_H][DATA...][CHECKSUM_L][CHECKSUM_H][EOP]
//
// Returns the complete frame ready to send, or an error if data is too large.
func BuildFrame(code byte, data []byte) ([]byte, error) {
	if len(data) > MaxDataSize {
		return nil, fmt.Errorf("data length %d exceeds maximum %d bytes", len(data), MaxDataSize)
	}

	frame := make([]byte, 0, MinFrameSize+len(data))

	// Start of packet
	frame = append(frame, StartOfPacket)

	// Opcode or status
	frame = append(frame, code)

	// Data length (little-endian)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(data)))

	frame = append(frame, data...)

	// Checksum covers everything after SOP
	frame = binary.LittleEndian.AppendUint16(frame, calculatePacketChecksum(frame[1:]))

	// End of packet
	frame = append(frame, EndOfPacket)

	return frame, nil
}

// BuildCreateCmd constructs a Create command frame.
//
// Frame structure:
//
//	[SOP][CMD][LEN_L][LEN_H][SIZE(4)][TYPE(2)][CHECKSUM_L][CHECKSUM_H][EOP]
func BuildCreateCmd(size uint32, objType ots.ObjectType) ([]byte, error) {
	data := make([]byte, 0, CreateCmdSize)
	data = binary.LittleEndian.AppendUint32(data, size)
	data = binary.LittleEndian.AppendUint16(data, uint16(objType))

	return BuildFrame(OpCreate, data)
}

// BuildWriteCmd constructs a Write command frame carrying one chunk.
// remaining is the number of bytes that will follow this chunk; zero marks
// the last chunk.
//
// Frame structure:
//
//	[SOP][CMD][LEN_L][LEN_H][OBJECT_ID(8)][OFFSET(4)][REMAINING(4)][DATA...][CHECKSUM_L][CHECKSUM_H][EOP]
func BuildWriteCmd(id ots.ObjectID, offset, remaining uint32, chunk []byte) ([]byte, error) {
	if len(chunk) > MaxChunkSize {
		return nil, fmt.Errorf("chunk length %d exceeds maximum %d bytes", len(chunk), MaxChunkSize)
	}

	data := make([]byte, 0, WriteHeaderSize+len(chunk))
	data = binary.LittleEndian.AppendUint64(data, uint64(id))
	data = binary.LittleEndian.AppendUint32(data, offset)
	data = binary.LittleEndian.AppendUint32(data, remaining)
	data = append(data, chunk...)

	return BuildFrame(OpWrite, data)
}

// ParseCommand extracts the opcode and data from a command frame.
// Validates frame structure, length, and checksum.
func ParseCommand(frame []byte) (opcode byte, data []byte, err error) {
	return parseFrame(frame)
}

// ParseCreateCmd parses the data of a Create command.
//
// Data format (CreateCmdSize bytes):
//
//	[SIZE(4)][TYPE(2)]
func ParseCreateCmd(data []byte) (*CreateRequest, error) {
	if len(data) != CreateCmdSize {
		return nil, fmt.Errorf("invalid data length for Create command: got %d bytes, expected %d", len(data), CreateCmdSize)
	}

	return &CreateRequest{
		Size: binary.LittleEndian.Uint32(data[0:4]),
		Type: ots.ObjectType(binary.LittleEndian.Uint16(data[4:6])),
	}, nil
}

// ParseWriteCmd parses the data of a Write command. The returned chunk
// aliases data.
//
// Data format (WriteHeaderSize bytes followed by the chunk):
//
//	[OBJECT_ID(8)][OFFSET(4)][REMAINING(4)][DATA...]
func ParseWriteCmd(data []byte) (*WriteRequest, error) {
	if len(data) < WriteHeaderSize {
		return nil, fmt.Errorf("invalid data length for Write command: got %d bytes, minimum is %d", len(data), WriteHeaderSize)
	}

	return &WriteRequest{
		ObjectID:  ots.ObjectID(binary.LittleEndian.Uint64(data[0:8])),
		Offset:    binary.LittleEndian.Uint32(data[8:12]),
		Remaining: binary.LittleEndian.Uint32(data[12:16]),
		Data:      data[WriteHeaderSize:],
	}, nil
}

// parseFrame validates a frame and returns its code byte and data.
func parseFrame(frame []byte) (code byte, data []byte, err error) {
	if len(frame) < MinFrameSize {
		return 0, nil, fmt.Errorf("frame too short: got %d bytes, minimum is %d", len(frame), MinFrameSize)
	}

	if frame[0] != StartOfPacket {
		return 0, nil, fmt.Errorf("invalid start of packet: got 0x%02X, expected 0x%02X", frame[0], StartOfPacket)
	}

	if frame[len(frame)-1] != EndOfPacket {
		return 0, nil, fmt.Errorf("invalid end of packet: got 0x%02X, expected 0x%02X", frame[len(frame)-1], EndOfPacket)
	}

	code = frame[1]
	dataLen := int(binary.LittleEndian.Uint16(frame[2:4]))

	expectedLen := MinFrameSize + dataLen
	if len(frame) != expectedLen {
		return 0, nil, fmt.Errorf("frame length mismatch: got %d bytes, expected %d (MinFrameSize=%d + dataLen=%d)",
			len(frame), expectedLen, MinFrameSize, dataLen)
	}

	// Verify checksum
	checksumExpected := binary.LittleEndian.Uint16(frame[len(frame)-3 : len(frame)-1])
	checksumActual := calculatePacketChecksum(frame[1 : len(frame)-3])

	if checksumExpected != checksumActual {
		return 0, nil, fmt.Errorf("checksum mismatch: got 0x%04X, expected 0x%04X",
			checksumActual, checksumExpected)
	}

	if dataLen > 0 {
		data = frame[4 : 4+dataLen]
	}

	return code, data, nil
}
