package flash

import (
	"bytes"
	"fmt"
	"sync"
)

// MemDevice is an in-memory flash device.
//
// It starts erased, can be toggled not-ready, and can be told to fail program
// operations, which makes it suitable for exercising failure paths.
//
// MemDevice is safe for concurrent use.
type MemDevice struct {
	mu       sync.Mutex
	data     []byte
	pageSize int64
	ready    bool

	programErr   error
	programCalls int
	eraseCalls   int
}

// NewMemDevice creates an erased device of size bytes. A pageSize of zero
// disables erase support.
func NewMemDevice(size, pageSize int64) *MemDevice {
	return &MemDevice{
		data:     bytes.Repeat([]byte{ErasedValue}, int(size)),
		pageSize: pageSize,
		ready:    true,
	}
}

// Ready reports whether the device accepts program operations.
func (d *MemDevice) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// SetReady toggles device readiness.
func (d *MemDevice) SetReady(ready bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready = ready
}

// SetProgramError makes every subsequent Program call fail with err.
// Pass nil to clear.
func (d *MemDevice) SetProgramError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.programErr = err
}

// Program copies p to off.
func (d *MemDevice) Program(off int64, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ready {
		return ErrNotReady
	}
	if d.programErr != nil {
		return d.programErr
	}
	if err := checkRange(off, len(p), int64(len(d.data))); err != nil {
		return err
	}

	d.programCalls++
	copy(d.data[off:], p)
	return nil
}

// ReadAt reads from the device.
func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(off, len(p), int64(len(d.data))); err != nil {
		return 0, err
	}
	return copy(p, d.data[off:]), nil
}

// Size returns the device size.
func (d *MemDevice) Size() int64 {
	return int64(len(d.data))
}

// PageSize returns the erase page size.
func (d *MemDevice) PageSize() int64 {
	return d.pageSize
}

// Erase resets size bytes at off to ErasedValue.
func (d *MemDevice) Erase(off, size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pageSize > 0 && off%d.pageSize != 0 {
		return fmt.Errorf("erase offset 0x%x is not page aligned", off)
	}
	if err := checkRange(off, int(size), int64(len(d.data))); err != nil {
		return err
	}

	d.eraseCalls++
	for i := off; i < off+size; i++ {
		d.data[i] = ErasedValue
	}
	return nil
}

// Bytes returns a copy of the device contents.
func (d *MemDevice) Bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return bytes.Clone(d.data)
}

// ProgramCalls returns the number of successful program operations.
func (d *MemDevice) ProgramCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.programCalls
}

// EraseCalls returns the number of successful erase operations.
func (d *MemDevice) EraseCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eraseCalls
}
