package protocol

import (
	"errors"
	"fmt"
)

// ProtocolError represents a failure reported by the server.
// Contains the result code and message from the response frame.
type ProtocolError struct {
	// Operation is the command that failed
	Operation string

	// StatusCode is the result code from the server
	StatusCode byte

	// Message is the failure text sent by the server (may be empty)
	Message string
}

func (e *ProtocolError) Error() string {
	statusName := getStatusName(e.StatusCode)
	if e.Message != "" {
		return fmt.Sprintf("%s failed: %s (0x%02X): %s", e.Operation, statusName, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s (0x%02X)", e.Operation, statusName, e.StatusCode)
}

// IsProtocolError returns true if err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

// getStatusName returns a human-readable name for a result code.
func getStatusName(code byte) string {
	switch code {
	case ResultSuccess:
		return "success"
	case ResultOpcodeNotSupported:
		return "opcode not supported"
	case ResultInvalidParameter:
		return "invalid parameter"
	case ResultInsufficientResources:
		return "insufficient resources"
	case ResultInvalidObject:
		return "invalid object"
	case ResultChannelUnavailable:
		return "channel unavailable"
	case ResultUnsupportedType:
		return "unsupported type"
	case ResultProcedureNotPermitted:
		return "procedure not permitted"
	case ResultObjectLocked:
		return "object locked"
	case ResultOperationFailed:
		return "operation failed"
	default:
		return fmt.Sprintf("unknown result code 0x%02X", code)
	}
}
