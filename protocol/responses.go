package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/moffa90/go-otsota/ots"
)

// ParseResponse extracts the result code and data from a response frame.
// Validates frame structure, length, and checksum.
//
// Response frame structure:
//
//	[SOP][RESULT][LEN_L][LEN_H][DATA...][CHECKSUM_L][CHECKSUM_H][EOP]
//
// Returns the result code, data payload, and any validation error.
func ParseResponse(frame []byte) (resultCode byte, data []byte, err error) {
	return parseFrame(frame)
}

// BuildCreateResponse constructs a successful Create response frame from the
// descriptor the server accepted.
//
// Data format:
//
//	[OBJECT_ID(8)][ALLOCATED(4)][CURRENT(4)][PROPERTIES(1)][NAME_LEN(1)][NAME...]
func BuildCreateResponse(desc *ots.ObjectDescriptor) ([]byte, error) {
	if desc == nil {
		return nil, fmt.Errorf("descriptor cannot be nil")
	}
	if len(desc.Name) > MaxNameLength {
		return nil, fmt.Errorf("object name length %d exceeds maximum %d bytes", len(desc.Name), MaxNameLength)
	}

	data := make([]byte, 0, CreateResponseHeaderSize+len(desc.Name))
	data = binary.LittleEndian.AppendUint64(data, uint64(desc.ID))
	data = binary.LittleEndian.AppendUint32(data, desc.Size.Allocated)
	data = binary.LittleEndian.AppendUint32(data, desc.Size.Current)
	data = append(data, encodeProperties(desc.Properties))
	data = append(data, byte(len(desc.Name)))
	data = append(data, desc.Name...)

	return BuildFrame(ResultSuccess, data)
}

// BuildWriteResponse constructs a successful Write response frame.
//
// Data format (WriteResponseSize bytes):
//
//	[ACCEPTED(4)]
func BuildWriteResponse(accepted uint32) ([]byte, error) {
	data := binary.LittleEndian.AppendUint32(make([]byte, 0, WriteResponseSize), accepted)
	return BuildFrame(ResultSuccess, data)
}

// BuildErrorResponse constructs a failure response frame whose data is the
// message text, truncated to fit a frame.
func BuildErrorResponse(resultCode byte, message string) ([]byte, error) {
	if resultCode == ResultSuccess {
		return nil, fmt.Errorf("error response cannot carry result code 0x%02X", resultCode)
	}
	if len(message) > MaxDataSize {
		message = message[:MaxDataSize]
	}
	return BuildFrame(resultCode, []byte(message))
}

// ParseCreateResponse parses the data of a successful Create response.
// Returns the descriptor of the created object.
func ParseCreateResponse(data []byte) (*ots.ObjectDescriptor, error) {
	if len(data) < CreateResponseHeaderSize {
		return nil, fmt.Errorf("invalid data length for Create response: got %d bytes, minimum is %d", len(data), CreateResponseHeaderSize)
	}

	nameLen := int(data[17])
	if len(data) != CreateResponseHeaderSize+nameLen {
		return nil, fmt.Errorf("invalid data length for Create response: got %d bytes, expected %d", len(data), CreateResponseHeaderSize+nameLen)
	}

	desc := &ots.ObjectDescriptor{
		ID:   ots.ObjectID(binary.LittleEndian.Uint64(data[0:8])),
		Name: string(data[CreateResponseHeaderSize:]),
		Type: ots.TypeUnspecified,
		Size: ots.Size{
			Allocated: binary.LittleEndian.Uint32(data[8:12]),
			Current:   binary.LittleEndian.Uint32(data[12:16]),
		},
		Properties: decodeProperties(data[16]),
	}

	return desc, nil
}

// ParseWriteResponse parses the data of a successful Write response.
// Returns the number of bytes the server accepted.
func ParseWriteResponse(data []byte) (uint32, error) {
	if len(data) != WriteResponseSize {
		return 0, fmt.Errorf("invalid data length for Write response: got %d bytes, expected %d", len(data), WriteResponseSize)
	}

	return binary.LittleEndian.Uint32(data), nil
}

// encodeProperties packs a property set into a bitmask, one bit per property.
func encodeProperties(props ots.Properties) byte {
	var mask byte
	for _, p := range props.List() {
		if p <= ots.PropMark {
			mask |= 1 << p
		}
	}
	return mask
}

func decodeProperties(mask byte) ots.Properties {
	var props []ots.Property
	for p := ots.PropDelete; p <= ots.PropMark; p++ {
		if mask&(1<<p) != 0 {
			props = append(props, p)
		}
	}
	return ots.NewProperties(props...)
}
