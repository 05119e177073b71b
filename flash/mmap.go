package flash

import (
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

const fileModePerm = 0644

// MmapDevice is a flash device backed by a memory-mapped file.
//
// A new backing file is created at the requested size and erased to
// ErasedValue. An existing file keeps its contents, so images written before a
// simulated reboot are still there afterwards.
type MmapDevice struct {
	mu       sync.Mutex
	fd       *os.File
	data     mmap.MMap
	size     int64
	pageSize int64
	syncEach bool
	closed   bool
}

// MmapOption configures an MmapDevice.
type MmapOption func(*MmapDevice)

// WithPageSize sets the erase page size. Zero disables erase support.
func WithPageSize(size int64) MmapOption {
	return func(d *MmapDevice) {
		if size >= 0 {
			d.pageSize = size
		}
	}
}

// WithSyncOnProgram msyncs the mapping after every program operation.
func WithSyncOnProgram(enabled bool) MmapOption {
	return func(d *MmapDevice) {
		d.syncEach = enabled
	}
}

// OpenMmapDevice opens or creates the backing file at path and maps size bytes
// of it.
func OpenMmapDevice(path string, size int64, opts ...MmapOption) (*MmapDevice, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid device size %d", size)
	}

	d := &MmapDevice{
		size:     size,
		pageSize: 4096,
	}
	for _, opt := range opts {
		opt(d)
	}

	isNew, err := isNewFile(path)
	if err != nil {
		return nil, err
	}

	fd, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, fileModePerm)
	if err != nil {
		return nil, errors.Wrap(err, "open flash file")
	}
	if err := fd.Truncate(size); err != nil {
		fd.Close()
		return nil, errors.Wrap(err, "truncate flash file")
	}

	data, err := mmap.Map(fd, mmap.RDWR, 0)
	if err != nil {
		fd.Close()
		return nil, errors.Wrap(err, "mmap flash file")
	}

	d.fd = fd
	d.data = data

	if isNew {
		for i := range d.data {
			d.data[i] = ErasedValue
		}
		if err := d.data.Flush(); err != nil {
			_ = d.Close()
			return nil, errors.Wrap(err, "flush erased flash file")
		}
	}

	return d, nil
}

func isNewFile(path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return true, nil
	} else if err != nil {
		return false, errors.Wrap(err, "stat flash file")
	}
	return false, nil
}

// Ready reports whether the device is open.
func (d *MmapDevice) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Program copies p into the mapping at off.
func (d *MmapDevice) Program(off int64, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if err := checkRange(off, len(p), d.size); err != nil {
		return err
	}

	copy(d.data[off:], p)

	if d.syncEach {
		if err := d.data.Flush(); err != nil {
			return errors.Wrap(err, "msync flash file")
		}
	}
	return nil
}

// ReadAt reads from the mapping.
func (d *MmapDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	if err := checkRange(off, len(p), d.size); err != nil {
		return 0, err
	}
	return copy(p, d.data[off:]), nil
}

// Size returns the mapped size.
func (d *MmapDevice) Size() int64 {
	return d.size
}

// PageSize returns the erase page size.
func (d *MmapDevice) PageSize() int64 {
	return d.pageSize
}

// Erase resets size bytes at off to ErasedValue.
func (d *MmapDevice) Erase(off, size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.pageSize > 0 && off%d.pageSize != 0 {
		return errors.Errorf("erase offset 0x%x is not page aligned", off)
	}
	if err := checkRange(off, int(size), d.size); err != nil {
		return err
	}

	for i := off; i < off+size; i++ {
		d.data[i] = ErasedValue
	}
	return nil
}

// Sync flushes the mapping and fsyncs the backing file.
func (d *MmapDevice) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	return d.syncLocked()
}

func (d *MmapDevice) syncLocked() error {
	if err := d.data.Flush(); err != nil {
		return errors.Wrap(err, "mmap flush")
	}
	if err := d.fd.Sync(); err != nil {
		return errors.Wrap(err, "fsync")
	}
	return nil
}

// Close syncs, unmaps and closes the backing file. Close is idempotent.
func (d *MmapDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if err := d.syncLocked(); err != nil {
		_ = d.data.Unmap()
		_ = d.fd.Close()
		return errors.Wrap(err, "sync during close")
	}
	if err := d.data.Unmap(); err != nil {
		_ = d.fd.Close()
		return errors.Wrap(err, "unmap")
	}
	if err := d.fd.Close(); err != nil {
		return errors.Wrap(err, "close flash file")
	}
	return nil
}
