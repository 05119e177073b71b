package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Constants for MCUboot image parsing.
const (
	// Magic is the image header magic number
	Magic = 0x96f3b83d

	// HeaderLength is the length of the fixed header in bytes
	HeaderLength = 32

	// MaxImageSize is the largest image an object can describe
	MaxImageSize = 1<<32 - 1
)

// ErrNoHeader is returned by ReadHeader when the data does not start with an
// image header.
var ErrNoHeader = errors.New("no image header")

// Parse reads a firmware image from the given file path.
//
// Example:
//
//	img, err := image.Parse("zephyr.signed.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Version: %s (%d bytes)\n", img.Version(), img.Size())
func Parse(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f)
}

// ParseReader reads a firmware image from any io.Reader.
// Images starting with an MCUboot header are validated against it; anything
// else is treated as a raw binary.
func ParseReader(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if uint64(len(data)) > MaxImageSize {
		return nil, fmt.Errorf("image of %d bytes exceeds maximum %d", len(data), uint64(MaxImageSize))
	}

	img := &Image{Data: data}

	hdr, err := parseHeader(data)
	if errors.Is(err, ErrNoHeader) {
		return img, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	// payload and protected TLVs must be present; unprotected TLVs may follow
	need := uint64(hdr.HeaderSize) + uint64(hdr.ImageSize) + uint64(hdr.ProtectTLVSize)
	if uint64(len(data)) < need {
		return nil, fmt.Errorf("image truncated: got %d bytes, header describes %d", len(data), need)
	}

	img.Header = hdr
	return img, nil
}

// ReadHeader reads the image header at the start of r, typically a staging
// slot. Returns ErrNoHeader if the slot holds no image.
func ReadHeader(r io.ReaderAt) (*Header, error) {
	buf := make([]byte, HeaderLength)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	return parseHeader(buf)
}

// parseHeader decodes the fixed header.
//
// Header format (HeaderLength bytes, little-endian):
//
//	[MAGIC(4)][LOAD_ADDR(4)][HDR_SIZE(2)][PROTECT_TLV_SIZE(2)][IMG_SIZE(4)][FLAGS(4)]
//	[VER_MAJOR(1)][VER_MINOR(1)][VER_REVISION(2)][VER_BUILD(4)][PAD(4)]
func parseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderLength {
		return nil, ErrNoHeader
	}

	le := binary.LittleEndian
	if le.Uint32(data[0:4]) != Magic {
		return nil, ErrNoHeader
	}

	hdr := &Header{
		Magic:          Magic,
		LoadAddr:       le.Uint32(data[4:8]),
		HeaderSize:     le.Uint16(data[8:10]),
		ProtectTLVSize: le.Uint16(data[10:12]),
		ImageSize:      le.Uint32(data[12:16]),
		Flags:          le.Uint32(data[16:20]),
		Version: Version{
			Major:    data[20],
			Minor:    data[21],
			Revision: le.Uint16(data[22:24]),
			Build:    le.Uint32(data[24:28]),
		},
	}

	if hdr.HeaderSize < HeaderLength {
		return nil, fmt.Errorf("invalid header size: got %d bytes, minimum is %d", hdr.HeaderSize, HeaderLength)
	}

	return hdr, nil
}

// MarshalBinary encodes the header in its on-flash form.
func (h *Header) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	fields := []any{
		uint32(Magic),
		h.LoadAddr,
		h.HeaderSize,
		h.ProtectTLVSize,
		h.ImageSize,
		h.Flags,
		h.Version.Major,
		h.Version.Minor,
		h.Version.Revision,
		h.Version.Build,
		uint32(0),
	}
	for _, f := range fields {
		if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
