package flash

import (
	"fmt"
)

// StreamWriter buffers writes into a flash region and programs them one
// buffer at a time.
//
// Everything programmed before the final flush is a whole buffer; only the
// final flush may program a partial buffer. A StreamWriter serves exactly one
// transfer; create a new one to start over.
type StreamWriter struct {
	dev    Device
	eraser Eraser

	buf  []byte
	used int

	base    int64
	size    int64
	written int64

	// first offset (relative to base) that has not been erased yet
	erasedUntil int64
}

// NewStreamWriter binds a stream writer to the region [offset, offset+size) of
// dev, using buf as its page buffer.
//
// The region must lie within the device and buf must not be larger than the
// region.
func NewStreamWriter(dev Device, buf []byte, offset, size int64) (*StreamWriter, error) {
	if dev == nil {
		return nil, fmt.Errorf("device cannot be nil")
	}
	if !dev.Ready() {
		return nil, ErrNotReady
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("buffer cannot be empty")
	}
	if size <= 0 || int64(len(buf)) > size {
		return nil, fmt.Errorf("buffer size %d does not fit region size %d", len(buf), size)
	}
	if err := checkRange(offset, int(size), dev.Size()); err != nil {
		return nil, err
	}

	w := &StreamWriter{
		dev:  dev,
		buf:  buf,
		base: offset,
		size: size,
	}
	if e, ok := dev.(Eraser); ok && e.PageSize() > 0 {
		if offset%e.PageSize() != 0 {
			return nil, fmt.Errorf("region offset 0x%x is not aligned to page size %d", offset, e.PageSize())
		}
		w.eraser = e
	}
	return w, nil
}

// Write appends data to the stream. Full buffers are programmed as they fill.
// When flush is true any remaining buffered bytes are programmed as well.
//
// Write fails with ErrNoSpace, without buffering anything, if the region
// cannot hold the bytes already written plus data.
func (w *StreamWriter) Write(data []byte, flush bool) error {
	if w.written+int64(w.used)+int64(len(data)) > w.size {
		return fmt.Errorf("%w: %d written, %d buffered, %d incoming, region size %d",
			ErrNoSpace, w.written, w.used, len(data), w.size)
	}

	for len(data) > 0 {
		n := copy(w.buf[w.used:], data)
		w.used += n
		data = data[n:]

		if w.used == len(w.buf) {
			if err := w.flushBuffer(); err != nil {
				return err
			}
		}
	}

	if flush && w.used > 0 {
		return w.flushBuffer()
	}
	return nil
}

// Flush programs any buffered bytes.
func (w *StreamWriter) Flush() error {
	if w.used == 0 {
		return nil
	}
	return w.flushBuffer()
}

// BytesWritten returns the number of bytes programmed to flash so far.
func (w *StreamWriter) BytesWritten() int64 {
	return w.written
}

// Buffered returns the number of bytes waiting in the buffer.
func (w *StreamWriter) Buffered() int {
	return w.used
}

// Offset returns the absolute device offset of the region.
func (w *StreamWriter) Offset() int64 {
	return w.base
}

func (w *StreamWriter) flushBuffer() error {
	off := w.base + w.written

	if w.eraser != nil {
		if err := w.eraseThrough(w.written + int64(w.used)); err != nil {
			return err
		}
	}

	if err := w.dev.Program(off, w.buf[:w.used]); err != nil {
		return fmt.Errorf("program %d bytes at 0x%x: %w", w.used, off, err)
	}

	w.written += int64(w.used)
	w.used = 0
	return nil
}

// eraseThrough erases every page that intersects [erasedUntil, end).
func (w *StreamWriter) eraseThrough(end int64) error {
	page := w.eraser.PageSize()
	for w.erasedUntil < end {
		n := page
		if w.erasedUntil+n > w.size {
			n = w.size - w.erasedUntil
		}
		off := w.base + w.erasedUntil
		if err := w.eraser.Erase(off, n); err != nil {
			return fmt.Errorf("erase page at 0x%x: %w", off, err)
		}
		w.erasedUntil += n
	}
	return nil
}
