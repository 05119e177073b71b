// Package image reads firmware images for upload.
//
// # Image Format
//
// An image is either a raw binary or an MCUboot image, which starts with a
// fixed 32-byte little-endian header:
//
//	[MAGIC(4)][LOAD_ADDR(4)][HDR_SIZE(2)][PROTECT_TLV_SIZE(2)][IMG_SIZE(4)][FLAGS(4)]
//	[VER_MAJOR(1)][VER_MINOR(1)][VER_REVISION(2)][VER_BUILD(4)][PAD(4)]
//
// The magic is 0x96f3b83d. The header region (HDR_SIZE bytes, padding
// included) is followed by the payload and the TLV trailer. Signatures in the
// trailer are checked by the bootloader, not here.
//
// # Usage
//
// Parse an image from disk:
//
//	img, err := image.Parse("zephyr.signed.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if img.Header != nil {
//	    fmt.Printf("Version: %s\n", img.Header.Version)
//	}
//
// Inspect what a staging slot holds:
//
//	hdr, err := image.ReadHeader(io.NewSectionReader(dev, staging.Offset, staging.Size))
//	if errors.Is(err, image.ErrNoHeader) {
//	    fmt.Println("slot is empty")
//	}
package image
