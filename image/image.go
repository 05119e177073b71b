package image

import "fmt"

// Image is a firmware image ready for upload.
type Image struct {
	// Header is the MCUboot image header, or nil for a raw binary
	Header *Header

	// Data is the complete image as it is written to the staging slot,
	// header and trailing TLVs included
	Data []byte
}

// Size returns the number of bytes to upload.
func (img *Image) Size() int {
	return len(img.Data)
}

// Version returns the header version, or "unknown" for a raw binary.
func (img *Image) Version() string {
	if img.Header == nil {
		return "unknown"
	}
	return img.Header.Version.String()
}

// Header is the fixed MCUboot image header at the start of a signed image.
type Header struct {
	// Magic is always Magic for a valid header
	Magic uint32

	// LoadAddr is the RAM load address (zero for execute-in-place images)
	LoadAddr uint32

	// HeaderSize is the size of the header region, padding included
	HeaderSize uint16

	// ProtectTLVSize is the size of the protected TLV area
	ProtectTLVSize uint16

	// ImageSize is the size of the executable payload following the header
	ImageSize uint32

	// Flags holds IMAGE_F_* flags
	Flags uint32

	// Version is the semantic version of the payload
	Version Version
}

// Version is an MCUboot image version.
type Version struct {
	Major    uint8
	Minor    uint8
	Revision uint16
	Build    uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d+%d", v.Major, v.Minor, v.Revision, v.Build)
}
