package ota

import "time"

// Config holds the state machine configuration.
type Config struct {
	// ProgressCallback is called as the transfer advances (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// BufferSize is the size of the flash page buffer in bytes
	BufferSize int

	// RebootDelay is how long to wait after a completed transfer before the
	// cold reset, so in-flight acknowledgements reach the peer
	RebootDelay time.Duration

	// ObjectName is the name reported for created objects
	ObjectName string

	// StrictOffsets rejects chunks whose offset is not the current object size
	StrictOffsets bool

	// RejectActiveCreate rejects a create while a transfer is in progress
	// instead of discarding the running transfer
	RejectActiveCreate bool

	// IdleTimeout discards a session that has seen no event for this long
	// (zero disables)
	IdleTimeout time.Duration
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		BufferSize:  1024,
		RebootDelay: 2 * time.Second,
		ObjectName:  "firmware.bin",
	}
}

// Option is a functional option for configuring the Machine.
type Option func(*Config)

// WithProgressCallback sets a callback function to track transfer progress.
//
// Example:
//
//	m := ota.New(dev, staging, trigger,
//	    ota.WithProgressCallback(func(p ota.Progress) {
//	        fmt.Printf("%.1f%% received\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the state machine.
//
// Example:
//
//	m := ota.New(dev, staging, trigger, ota.WithLogger(slog.Default()))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithBufferSize sets the flash page buffer size. Default is 1024 bytes.
func WithBufferSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.BufferSize = size
		}
	}
}

// WithRebootDelay sets the delay between a completed transfer and the reset.
// Default is 2 seconds.
func WithRebootDelay(delay time.Duration) Option {
	return func(c *Config) {
		if delay >= 0 {
			c.RebootDelay = delay
		}
	}
}

// WithObjectName sets the name reported for created objects.
// Default is "firmware.bin".
func WithObjectName(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.ObjectName = name
		}
	}
}

// WithStrictOffsets makes a chunk whose offset differs from the number of
// bytes already accepted fail the transfer. By default offsets other than 0
// are trusted.
func WithStrictOffsets(strict bool) Option {
	return func(c *Config) {
		c.StrictOffsets = strict
	}
}

// WithRejectActiveCreate makes a create fail while a transfer is in progress.
// By default the running transfer is discarded and the new one starts clean.
func WithRejectActiveCreate(reject bool) Option {
	return func(c *Config) {
		c.RejectActiveCreate = reject
	}
}

// WithIdleTimeout discards a session that has been idle for longer than
// timeout; the next chunk for it fails with SessionExpiredError.
//
// Example:
//
//	m := ota.New(dev, staging, trigger, ota.WithIdleTimeout(time.Minute))
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout >= 0 {
			c.IdleTimeout = timeout
		}
	}
}
