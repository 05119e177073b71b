package protocol

// ProtocolVersion is the version of the object transfer framing implemented by this package.
const ProtocolVersion = "1.0"

// Frame structure constants.
const (
	// StartOfPacket is the frame start marker (0x01)
	StartOfPacket = 0x01

	// EndOfPacket is the frame end marker (0x17)
	EndOfPacket = 0x17

	// MinFrameSize is the minimum frame size in bytes:
	// SOP(1) + OPCODE/STATUS(1) + LEN(2) + CHECKSUM(2) + EOP(1)
	MinFrameSize = 7

	// MaxDataSize is the largest payload the 16-bit length field can describe
	MaxDataSize = 0xFFFF
)

// Opcodes, numbered after the object action control point procedures.
const (
	// OpCreate creates an object of the requested size
	OpCreate = 0x01

	// OpWrite writes one chunk of the current object
	OpWrite = 0x06
)

// Result codes returned in the status byte of a response frame.
const (
	// ResultSuccess indicates the procedure completed
	ResultSuccess = 0x01

	// ResultOpcodeNotSupported indicates the opcode is not recognized
	ResultOpcodeNotSupported = 0x02

	// ResultInvalidParameter indicates malformed command data
	ResultInvalidParameter = 0x03

	// ResultInsufficientResources indicates no object slot is available
	ResultInsufficientResources = 0x04

	// ResultInvalidObject indicates the target object does not exist
	ResultInvalidObject = 0x05

	// ResultChannelUnavailable indicates the transfer channel is busy or closed
	ResultChannelUnavailable = 0x06

	// ResultUnsupportedType indicates the object type is not accepted
	ResultUnsupportedType = 0x07

	// ResultProcedureNotPermitted indicates the procedure is not allowed in the current state
	ResultProcedureNotPermitted = 0x08

	// ResultObjectLocked indicates the object is in use
	ResultObjectLocked = 0x09

	// ResultOperationFailed indicates the procedure failed on the server
	ResultOperationFailed = 0x0A
)

// Command and response data sizes.
const (
	// CreateCmdSize is the data size of a Create command: [SIZE(4)][TYPE(2)]
	CreateCmdSize = 6

	// WriteHeaderSize is the fixed part of a Write command:
	// [OBJECT_ID(8)][OFFSET(4)][REMAINING(4)]
	WriteHeaderSize = 16

	// CreateResponseHeaderSize is the fixed part of a Create response:
	// [OBJECT_ID(8)][ALLOCATED(4)][CURRENT(4)][PROPERTIES(1)][NAME_LEN(1)]
	CreateResponseHeaderSize = 18

	// WriteResponseSize is the data size of a Write response: [ACCEPTED(4)]
	WriteResponseSize = 4

	// MaxNameLength is the longest object name a Create response can carry
	MaxNameLength = 0xFF

	// MaxChunkSize is the largest chunk a single Write command can carry
	MaxChunkSize = MaxDataSize - WriteHeaderSize
)

// DefaultChunkSize is the recommended chunk size for Write commands.
// Matches the size used by mobile uploaders over a BLE L2CAP channel.
const DefaultChunkSize = 512
