package ota

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/moffa90/go-otsota/ots"
)

// State is the transfer state.
type State int

const (
	// StateIdle means no object has been created
	StateIdle State = iota

	// StateAwaitingFirstByte means an object was created and no chunk has
	// been accepted yet
	StateAwaitingFirstByte

	// StateStreaming means chunks are being written to the staging region
	StateStreaming

	// StateFinalizing means the last chunk was written and the image is being
	// handed to the bootloader
	StateFinalizing

	// StateSuccess means the transfer completed and a reboot is armed
	StateSuccess

	// StateFailed means the transfer hit a fatal error; a new create is needed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFirstByte:
		return "awaiting-first-byte"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// active reports whether a transfer is underway in s.
func (s State) active() bool {
	return s == StateAwaitingFirstByte || s == StateStreaming
}

// terminal reports whether a completed transfer is waiting for the reboot.
func (s State) terminal() bool {
	return s == StateFinalizing || s == StateSuccess
}

// Status is a snapshot of the machine.
type Status struct {
	State State

	// SessionID identifies the current (or last) transfer; zero when none
	SessionID uuid.UUID

	ObjectID     ots.ObjectID
	ObjectName   string
	DeclaredSize uint32

	// BytesAccepted is the number of payload bytes accepted
	BytesAccepted uint32

	// BytesFlushed is the number of bytes programmed to flash
	BytesFlushed int64

	// UpgradeRequested is set once the bootloader accepted the image
	UpgradeRequested bool

	// LastError is the error that failed the transfer, or a tolerated
	// UpgradeRequestError
	LastError error
}
