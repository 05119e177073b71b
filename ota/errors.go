package ota

import (
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-otsota/ots"
)

// ResourceUnavailableError indicates that no object slot is available to
// accept a create.
type ResourceUnavailableError struct {
	Reason string
	Err    error
}

func (e *ResourceUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("object slot unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("object slot unavailable: %s", e.Reason)
}

func (e *ResourceUnavailableError) Unwrap() error {
	return e.Err
}

// DestinationNotReadyError indicates that the staging region could not be
// prepared for the first chunk of a transfer.
type DestinationNotReadyError struct {
	Partition string
	Err       error
}

func (e *DestinationNotReadyError) Error() string {
	return fmt.Sprintf("staging region %s not ready: %v", e.Partition, e.Err)
}

func (e *DestinationNotReadyError) Unwrap() error {
	return e.Err
}

// StreamWriteError indicates that writing a chunk to flash failed.
type StreamWriteError struct {
	Offset uint32
	Length int
	Err    error
}

func (e *StreamWriteError) Error() string {
	return fmt.Sprintf("stream write of %d bytes at offset %d failed: %v", e.Length, e.Offset, e.Err)
}

func (e *StreamWriteError) Unwrap() error {
	return e.Err
}

// UpgradeRequestError indicates that the bootloader did not accept the
// upgrade request. The device still reboots, into the current image.
type UpgradeRequestError struct {
	Err error
}

func (e *UpgradeRequestError) Error() string {
	return fmt.Sprintf("upgrade request failed: %v", e.Err)
}

func (e *UpgradeRequestError) Unwrap() error {
	return e.Err
}

// SessionStateError indicates a chunk arrived when no transfer can accept it.
type SessionStateError struct {
	State State
}

func (e *SessionStateError) Error() string {
	return fmt.Sprintf("no transfer accepting data (state %s)", e.State)
}

// OffsetMismatchError indicates a chunk whose offset does not continue the
// bytes already accepted.
type OffsetMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *OffsetMismatchError) Error() string {
	return fmt.Sprintf("offset mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// SessionExpiredError indicates the session was discarded after being idle.
type SessionExpiredError struct {
	ObjectID ots.ObjectID
	Idle     time.Duration
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("transfer of object %s expired after %s idle", e.ObjectID, e.Idle)
}

// ErrObjectOverflow is wrapped in a StreamWriteError when a chunk would grow
// the object past its declared size.
var ErrObjectOverflow = errors.New("chunk exceeds declared object size")

// IsResourceUnavailable returns true if err is or wraps a ResourceUnavailableError.
func IsResourceUnavailable(err error) bool {
	var target *ResourceUnavailableError
	return errors.As(err, &target)
}

// IsDestinationNotReady returns true if err is or wraps a DestinationNotReadyError.
func IsDestinationNotReady(err error) bool {
	var target *DestinationNotReadyError
	return errors.As(err, &target)
}

// IsStreamWriteFailure returns true if err is or wraps a StreamWriteError.
func IsStreamWriteFailure(err error) bool {
	var target *StreamWriteError
	return errors.As(err, &target)
}
