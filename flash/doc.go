// Package flash provides the flash-side building blocks of an over-the-air update:
// a device contract, named partitions, and a buffered stream writer that batches
// small writes into page-sized programs.
//
// # Devices
//
// A Device is anything that can be programmed at a byte offset and read back.
// Two implementations are provided:
//   - MemDevice: an in-memory device with fault injection, for tests and demos
//   - MmapDevice: a file-backed device mapped into memory, for simulators
//
// Devices that need an erase before programming implement Eraser; the stream
// writer erases each page the first time it programs into it.
//
// # Partitions
//
// Partitions are fixed regions of a device identified by label, in the manner of
// a devicetree fixed-partitions node:
//
//	layout := flash.Layout{
//	    {Label: "slot0_partition", Offset: 0x0000, Size: 0x40000},
//	    {Label: "slot1_partition", Offset: 0x40000, Size: 0x40000},
//	}
//	staging, err := layout.Lookup(flash.DefaultStagingLabel)
//
// # Stream Writing
//
// StreamWriter accumulates bytes and programs whole buffers at a time. The last,
// possibly partial, buffer is only programmed when the caller asks for a flush:
//
//	buf := make([]byte, 1024)
//	w, err := flash.NewStreamWriter(dev, buf, staging.Offset, staging.Size)
//	if err != nil {
//	    return err
//	}
//	err = w.Write(chunk, last)
package flash
