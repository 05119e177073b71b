package ota

import (
	"time"

	"github.com/moffa90/go-otsota/ots"
)

// Progress contains information about the transfer progress.
// Passed to ProgressCallback as the transfer advances.
type Progress struct {
	// State is the state the machine is in after the event
	State State

	// ObjectID is the object being written
	ObjectID ots.ObjectID

	// BytesWritten is the number of bytes accepted so far
	BytesWritten uint32

	// TotalBytes is the declared object size
	TotalBytes uint32

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time since the object was created
	ElapsedTime time.Duration
}

// ProgressCallback is called when an object is created, for every accepted
// chunk, and when the transfer completes. It runs after the machine has
// released its lock, and should return quickly.
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the machine.
// *slog.Logger satisfies it.
//
// Example:
//
//	logger := slog.New(charmlog.New(os.Stderr))
//	m := ota.New(dev, staging, trigger, ota.WithLogger(logger))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
