package flash

import (
	"errors"
	"fmt"
)

// DefaultStagingLabel is the partition that receives an incoming image.
const DefaultStagingLabel = "slot1_partition"

// ErasedValue is the byte value of erased NOR flash.
const ErasedValue = 0xFF

var (
	ErrNotReady          = errors.New("flash device not ready")
	ErrNoSpace           = errors.New("write would exceed the flash region")
	ErrOutOfBounds       = errors.New("access outside device bounds")
	ErrPartitionNotFound = errors.New("partition not found")
	ErrClosed            = errors.New("flash device is closed")
)

// Device is a programmable flash device.
type Device interface {
	// Ready reports whether the device can accept program operations.
	Ready() bool

	// Program writes p at the absolute device offset off.
	Program(off int64, p []byte) error

	// ReadAt reads len(p) bytes starting at off.
	ReadAt(p []byte, off int64) (int, error)

	// Size returns the device size in bytes.
	Size() int64
}

// Eraser is implemented by devices that must be erased before programming.
type Eraser interface {
	// PageSize returns the erase granularity in bytes.
	PageSize() int64

	// Erase erases size bytes starting at the page-aligned offset off.
	Erase(off, size int64) error
}

// Partition is a fixed region of a flash device.
type Partition struct {
	// Label identifies the partition (e.g. "slot1_partition")
	Label string

	// Offset is the absolute start offset on the device
	Offset int64

	// Size is the partition size in bytes
	Size int64
}

// End returns the first offset past the partition.
func (p Partition) End() int64 {
	return p.Offset + p.Size
}

func (p Partition) String() string {
	return fmt.Sprintf("%s@0x%x+0x%x", p.Label, p.Offset, p.Size)
}

// Layout is the set of partitions on a device.
type Layout []Partition

// Lookup returns the partition with the given label.
func (l Layout) Lookup(label string) (Partition, error) {
	for _, p := range l {
		if p.Label == label {
			return p, nil
		}
	}
	return Partition{}, fmt.Errorf("%w: %q", ErrPartitionNotFound, label)
}

// Validate checks that every partition fits on a device of the given size,
// labels are unique, and no two partitions overlap.
func (l Layout) Validate(deviceSize int64) error {
	seen := make(map[string]bool, len(l))
	for i, p := range l {
		if p.Label == "" {
			return fmt.Errorf("partition %d has no label", i)
		}
		if seen[p.Label] {
			return fmt.Errorf("duplicate partition label %q", p.Label)
		}
		seen[p.Label] = true

		if p.Offset < 0 || p.Size <= 0 || p.End() > deviceSize {
			return fmt.Errorf("partition %s: %w (device size 0x%x)", p, ErrOutOfBounds, deviceSize)
		}
		for _, q := range l[:i] {
			if p.Offset < q.End() && q.Offset < p.End() {
				return fmt.Errorf("partition %s overlaps %s", p, q)
			}
		}
	}
	return nil
}

// checkRange validates an access of n bytes at off on a device of the given size.
func checkRange(off int64, n int, size int64) error {
	if off < 0 || off+int64(n) > size {
		return fmt.Errorf("%w: offset 0x%x length %d (device size 0x%x)", ErrOutOfBounds, off, n, size)
	}
	return nil
}
