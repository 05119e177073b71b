package protocol

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/moffa90/go-otsota/ots"
)

func TestBuildFrame(t *testing.T) {
	tests := []struct {
		name    string
		code    byte
		data    []byte
		wantErr bool
	}{
		{name: "empty data", code: OpCreate, data: nil},
		{name: "small data", code: OpWrite, data: []byte{0x01, 0x02, 0x03}},
		{name: "maximum data", code: OpWrite, data: make([]byte, MaxDataSize)},
		{name: "oversized data", code: OpWrite, data: make([]byte, MaxDataSize+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildFrame(tt.code, tt.data)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(frame) != MinFrameSize+len(tt.data) {
				t.Errorf("frame length = %d, want %d", len(frame), MinFrameSize+len(tt.data))
			}
			if frame[0] != StartOfPacket {
				t.Errorf("SOP = 0x%02X, want 0x%02X", frame[0], StartOfPacket)
			}
			if frame[1] != tt.code {
				t.Errorf("CODE = 0x%02X, want 0x%02X", frame[1], tt.code)
			}
			if got := binary.LittleEndian.Uint16(frame[2:4]); int(got) != len(tt.data) {
				t.Errorf("LEN = %d, want %d", got, len(tt.data))
			}
			if frame[len(frame)-1] != EndOfPacket {
				t.Errorf("EOP = 0x%02X, want 0x%02X", frame[len(frame)-1], EndOfPacket)
			}

			code, data, err := ParseCommand(frame)
			if err != nil {
				t.Fatalf("ParseCommand() error: %v", err)
			}
			if code != tt.code || !bytes.Equal(data, tt.data) {
				t.Errorf("ParseCommand() = 0x%02X, %d bytes; want 0x%02X, %d bytes", code, len(data), tt.code, len(tt.data))
			}
		})
	}
}

func TestBuildCreateCmd(t *testing.T) {
	frame, err := BuildCreateCmd(0x00012345, ots.TypeUnspecified)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []byte{
		StartOfPacket, OpCreate, 0x06, 0x00,
		0x45, 0x23, 0x01, 0x00, // size
		0xCA, 0x2A, // type
	}
	if !bytes.Equal(frame[:len(expected)], expected) {
		t.Errorf("frame = % X, want prefix % X", frame, expected)
	}

	opcode, data, err := ParseCommand(frame)
	if err != nil {
		t.Fatalf("ParseCommand() error: %v", err)
	}
	if opcode != OpCreate {
		t.Errorf("opcode = 0x%02X, want 0x%02X", opcode, OpCreate)
	}

	req, err := ParseCreateCmd(data)
	if err != nil {
		t.Fatalf("ParseCreateCmd() error: %v", err)
	}
	if req.Size != 0x00012345 {
		t.Errorf("Size = 0x%X, want 0x12345", req.Size)
	}
	if req.Type != ots.TypeUnspecified {
		t.Errorf("Type = 0x%04X, want 0x%04X", req.Type, ots.TypeUnspecified)
	}
}

func TestBuildWriteCmd(t *testing.T) {
	tests := []struct {
		name      string
		id        ots.ObjectID
		offset    uint32
		remaining uint32
		chunk     []byte
		wantErr   bool
	}{
		{
			name:      "first chunk",
			id:        ots.FirstObjectID,
			offset:    0,
			remaining: 3072,
			chunk:     bytes.Repeat([]byte{0xAB}, 1024),
		},
		{
			name:      "last chunk",
			id:        ots.FirstObjectID + 1,
			offset:    1024,
			remaining: 0,
			chunk:     []byte{0x01, 0x02},
		},
		{
			name:    "empty chunk",
			id:      ots.FirstObjectID,
			chunk:   nil,
			wantErr: false,
		},
		{
			name:    "chunk too large",
			id:      ots.FirstObjectID,
			chunk:   make([]byte, MaxChunkSize+1),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildWriteCmd(tt.id, tt.offset, tt.remaining, tt.chunk)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), "exceeds maximum") {
					t.Errorf("error = %v, want 'exceeds maximum'", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			opcode, data, err := ParseCommand(frame)
			if err != nil {
				t.Fatalf("ParseCommand() error: %v", err)
			}
			if opcode != OpWrite {
				t.Errorf("opcode = 0x%02X, want 0x%02X", opcode, OpWrite)
			}

			req, err := ParseWriteCmd(data)
			if err != nil {
				t.Fatalf("ParseWriteCmd() error: %v", err)
			}
			if req.ObjectID != tt.id {
				t.Errorf("ObjectID = %s, want %s", req.ObjectID, tt.id)
			}
			if req.Offset != tt.offset {
				t.Errorf("Offset = %d, want %d", req.Offset, tt.offset)
			}
			if req.Remaining != tt.remaining {
				t.Errorf("Remaining = %d, want %d", req.Remaining, tt.remaining)
			}
			if !bytes.Equal(req.Data, tt.chunk) && len(req.Data)+len(tt.chunk) > 0 {
				t.Errorf("Data length = %d, want %d", len(req.Data), len(tt.chunk))
			}
		})
	}
}

func TestParseCreateCmdInvalid(t *testing.T) {
	for _, n := range []int{0, 5, 7} {
		if _, err := ParseCreateCmd(make([]byte, n)); err == nil {
			t.Errorf("ParseCreateCmd(%d bytes) expected error", n)
		}
	}
}

func TestParseWriteCmdInvalid(t *testing.T) {
	if _, err := ParseWriteCmd(make([]byte, WriteHeaderSize-1)); err == nil {
		t.Error("expected error for short Write command")
	}
}

func TestParseCommandInvalidFrames(t *testing.T) {
	valid, err := BuildCreateCmd(4096, ots.TypeUnspecified)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	corrupt := func(i int, b byte) []byte {
		f := bytes.Clone(valid)
		f[i] = b
		return f
	}

	tests := []struct {
		name   string
		frame  []byte
		errMsg string
	}{
		{name: "too short", frame: valid[:MinFrameSize-1], errMsg: "frame too short"},
		{name: "bad SOP", frame: corrupt(0, 0x02), errMsg: "invalid start of packet"},
		{name: "bad EOP", frame: corrupt(len(valid)-1, 0x00), errMsg: "invalid end of packet"},
		{name: "bad length", frame: corrupt(2, 0x07), errMsg: "frame length mismatch"},
		{name: "bad checksum", frame: corrupt(4, 0xFF), errMsg: "checksum mismatch"},
		{name: "truncated", frame: append(bytes.Clone(valid[:len(valid)-2]), EndOfPacket), errMsg: "frame length mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseCommand(tt.frame)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %v, want substring %q", err, tt.errMsg)
			}
		})
	}
}
