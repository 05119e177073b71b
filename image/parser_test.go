package image

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moffa90/go-otsota/flash"
)

func buildImage(t *testing.T, hdr Header, payload []byte) []byte {
	t.Helper()

	raw, err := hdr.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error: %v", err)
	}
	if len(raw) != HeaderLength {
		t.Fatalf("header length = %d, want %d", len(raw), HeaderLength)
	}

	out := append([]byte{}, raw...)
	out = append(out, make([]byte, int(hdr.HeaderSize)-HeaderLength)...)
	out = append(out, payload...)
	out = append(out, make([]byte, hdr.ProtectTLVSize)...)
	return out
}

func TestParseReader(t *testing.T) {
	hdr := Header{
		HeaderSize:     0x200,
		ProtectTLVSize: 0,
		ImageSize:      1000,
		Flags:          0,
		Version:        Version{Major: 1, Minor: 2, Revision: 3, Build: 42},
	}
	signed := buildImage(t, hdr, bytes.Repeat([]byte{0xA5}, 1000))

	tests := []struct {
		name        string
		input       []byte
		wantHeader  bool
		wantVersion string
		wantErr     bool
		errMsg      string
	}{
		{
			name:        "signed image",
			input:       signed,
			wantHeader:  true,
			wantVersion: "1.2.3+42",
		},
		{
			name:        "signed image with unprotected trailer",
			input:       append(bytes.Clone(signed), 0x07, 0x69, 0x10, 0x00),
			wantHeader:  true,
			wantVersion: "1.2.3+42",
		},
		{
			name:        "raw binary",
			input:       []byte{0x00, 0x10, 0x00, 0x20, 0x01, 0x02},
			wantVersion: "unknown",
		},
		{
			name:    "empty",
			input:   nil,
			wantErr: true,
			errMsg:  "empty image",
		},
		{
			name:    "truncated payload",
			input:   signed[:len(signed)-1],
			wantErr: true,
			errMsg:  "image truncated",
		},
		{
			name:    "header size too small",
			input:   buildHeaderOnly(t, Header{HeaderSize: 16}),
			wantErr: true,
			errMsg:  "invalid header size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ParseReader(bytes.NewReader(tt.input))

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %v, want substring %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if (img.Header != nil) != tt.wantHeader {
				t.Errorf("Header present = %v, want %v", img.Header != nil, tt.wantHeader)
			}
			if img.Version() != tt.wantVersion {
				t.Errorf("Version() = %q, want %q", img.Version(), tt.wantVersion)
			}
			if img.Size() != len(tt.input) {
				t.Errorf("Size() = %d, want %d", img.Size(), len(tt.input))
			}
		})
	}
}

func buildHeaderOnly(t *testing.T, hdr Header) []byte {
	t.Helper()
	raw, err := hdr.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error: %v", err)
	}
	return raw
}

func TestHeaderLayout(t *testing.T) {
	hdr := Header{
		LoadAddr:       0x20000000,
		HeaderSize:     0x200,
		ProtectTLVSize: 0x30,
		ImageSize:      0x1234,
		Flags:          0x10,
		Version:        Version{Major: 2, Minor: 0, Revision: 0x0102, Build: 7},
	}
	raw := buildHeaderOnly(t, hdr)

	expected := []byte{
		0x3D, 0xB8, 0xF3, 0x96, // magic
		0x00, 0x00, 0x00, 0x20, // load address
		0x00, 0x02, // header size
		0x30, 0x00, // protected TLV size
		0x34, 0x12, 0x00, 0x00, // image size
		0x10, 0x00, 0x00, 0x00, // flags
		0x02, 0x00, 0x02, 0x01, // major, minor, revision
		0x07, 0x00, 0x00, 0x00, // build
		0x00, 0x00, 0x00, 0x00, // pad
	}
	if !bytes.Equal(raw, expected) {
		t.Fatalf("header = % X\nwant   % X", raw, expected)
	}

	got, err := parseHeader(raw)
	if err != nil {
		t.Fatalf("parseHeader() error: %v", err)
	}
	hdr.Magic = Magic
	if *got != hdr {
		t.Errorf("parseHeader() = %+v, want %+v", *got, hdr)
	}
}

func TestParse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.bin")
	payload := []byte("not an mcuboot image")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	img, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if !bytes.Equal(img.Data, payload) {
		t.Errorf("Data = %q, want %q", img.Data, payload)
	}

	if _, err := Parse(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestReadHeaderFromStagingSlot(t *testing.T) {
	dev := flash.NewMemDevice(0x4000, 0)
	staging := flash.Partition{Label: flash.DefaultStagingLabel, Offset: 0x2000, Size: 0x2000}
	slot := io.NewSectionReader(dev, staging.Offset, staging.Size)

	// erased slot
	if _, err := ReadHeader(slot); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("ReadHeader(erased) error = %v, want ErrNoHeader", err)
	}

	hdr := Header{HeaderSize: HeaderLength, ImageSize: 16, Version: Version{Major: 3, Minor: 1}}
	if err := dev.Program(staging.Offset, buildImage(t, hdr, make([]byte, 16))); err != nil {
		t.Fatalf("Program() error: %v", err)
	}

	got, err := ReadHeader(slot)
	if err != nil {
		t.Fatalf("ReadHeader() error: %v", err)
	}
	if got.Version.String() != "3.1.0+0" {
		t.Errorf("Version = %s, want 3.1.0+0", got.Version)
	}
	if got.ImageSize != 16 {
		t.Errorf("ImageSize = %d, want 16", got.ImageSize)
	}
}

func TestReadHeaderShortSource(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader([]byte{0x3D, 0xB8}))
	if err == nil {
		t.Fatal("expected error for short source")
	}
	if errors.Is(err, ErrNoHeader) {
		t.Errorf("short read should be reported as a read failure, got %v", err)
	}
}
