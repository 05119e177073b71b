// Package ota receives a firmware image over an object transfer service and
// stages it for the bootloader.
//
// # Overview
//
// A Machine handles one transfer at a time:
//   - The peer creates an object; the machine accepts it and reports its descriptor
//   - The first chunk (offset 0) prepares the staging partition for writing
//   - Every chunk is streamed into flash through a page-sized buffer
//   - The chunk with nothing remaining flushes the buffer, requests a test
//     upgrade from the bootloader and arms a cold reboot
//
// Any flash failure fails the transfer. The peer recovers by creating a new
// object; the machine never resumes a failed transfer.
//
// # Basic Usage
//
//	dev := flash.NewMemDevice(0x80000, 4096)
//	staging := flash.Partition{Label: "slot1_partition", Offset: 0x40000, Size: 0x40000}
//
//	trigger := boot.NewTrigger(store, boot.RebootFunc(func(boot.RebootType) {
//	    os.Exit(0)
//	}))
//
//	m := ota.New(dev, staging, trigger)
//	if _, err := m.Register(server); err != nil {
//	    log.Fatal(err)
//	}
//
// The transport then delivers object events to the machine through the
// ots.Handler interface.
//
// # Progress Tracking
//
//	m := ota.New(dev, staging, trigger,
//	    ota.WithProgressCallback(func(p ota.Progress) {
//	        fmt.Printf("[%s] %.1f%% - %d/%d bytes\n",
//	            p.State, p.Percentage, p.BytesWritten, p.TotalBytes)
//	    }),
//	)
//
// # Configuration Options
//
//	m := ota.New(dev, staging, trigger,
//	    ota.WithLogger(slog.Default()),
//	    ota.WithBufferSize(4096),
//	    ota.WithRebootDelay(2*time.Second),
//	    ota.WithStrictOffsets(true),
//	    ota.WithRejectActiveCreate(true),
//	    ota.WithIdleTimeout(time.Minute),
//	)
//
// # Error Handling
//
// Errors returned to the transport are typed:
//
//	_, err := m.OnWriteChunk(ctx, id, 0, chunk, remaining)
//	if ota.IsDestinationNotReady(err) {
//	    // staging partition could not be opened
//	}
//
//	var sw *ota.StreamWriteError
//	if errors.As(err, &sw) {
//	    fmt.Printf("flash write failed at offset %d\n", sw.Offset)
//	}
//
// A failed upgrade request is not returned to the peer: the transfer still
// succeeds, the device reboots into the current image, and Status reports the
// UpgradeRequestError.
package ota
