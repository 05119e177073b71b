// Package protocol implements the binary framing used by the reference
// object transfer transport.
//
// This package provides functions to build command frames and parse response
// frames for the two procedures an uploader needs: creating an object and
// writing it chunk by chunk.
//
// # Protocol Overview
//
// Every message is a single frame:
//
//	Command:  [SOP][OPCODE][LEN_L][LEN_H][DATA...][CHECKSUM_L][CHECKSUM_H][EOP]
//	Response: [SOP][RESULT][LEN_L][LEN_H][DATA...][CHECKSUM_L][CHECKSUM_H][EOP]
//
// Where:
//   - SOP = Start of Packet (0x01)
//   - EOP = End of Packet (0x17)
//   - LEN = 16-bit data length (little-endian)
//   - CHECKSUM = 16-bit checksum (little-endian, 2's complement)
//
// Opcodes and result codes are numbered after the object action control point.
//
// # Command Builders
//
//	frame, err := protocol.BuildCreateCmd(uint32(len(image)), ots.TypeUnspecified)
//	frame, err := protocol.BuildWriteCmd(id, offset, remaining, chunk)
//
// # Response Parsers
//
// Use ParseResponse to validate and extract data from response frames:
//
//	result, data, err := protocol.ParseResponse(frame)
//	if result != protocol.ResultSuccess {
//	    return &protocol.ProtocolError{Operation: "write", StatusCode: result, Message: string(data)}
//	}
//
// Then use the Parse* functions for command-specific data:
//
//	desc, err := protocol.ParseCreateResponse(data)
//	accepted, err := protocol.ParseWriteResponse(data)
//
// # Error Handling
//
// Result codes other than ResultSuccess carry the server's error text as data.
// ProtocolError.Error() renders both:
//
//	create failed: insufficient resources (0x04): reboot pending
package protocol
