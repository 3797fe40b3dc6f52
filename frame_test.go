package bridge

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"
)

func TestBuildFrameParseFrameRoundTrip(t *testing.T) {
	payload := []byte("hello mcu")
	raw, err := BuildFrame(CmdConsoleWrite, payload, false)
	if err != nil {
		t.Fatal(err)
	}

	frame, err := ParseFrame(raw)
	if err != nil {
		t.Fatal(err)
	}
	if frame.CommandID != CmdConsoleWrite {
		t.Errorf("command id = %d, want %d", frame.CommandID, CmdConsoleWrite)
	}
	if frame.Compressed {
		t.Error("frame reported compressed, want false")
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Errorf("payload = %q, want %q", frame.Payload, payload)
	}
}

func TestBuildFrameParseFrameCompressed(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, 40)
	compressed := EncodeRLE(payload)

	raw, err := BuildFrame(CmdDatastorePut, compressed, true)
	if err != nil {
		t.Fatal(err)
	}

	frame, err := ParseFrame(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !frame.Compressed {
		t.Error("frame reported compressed = false, want true")
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Errorf("decompressed payload = %x, want %x", frame.Payload, payload)
	}
}

func TestParseFrameCRCMismatch(t *testing.T) {
	raw, err := BuildFrame(CmdDigitalWrite, []byte{1, 2}, false)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-1] ^= 0xFF

	if _, err := ParseFrame(raw); !isKind(err, FrameErrCRCMismatch) {
		t.Errorf("ParseFrame with flipped CRC byte = %v, want FrameErrCRCMismatch", err)
	}
}

func TestParseFrameBadVersion(t *testing.T) {
	// Hand-assemble a frame with a CRC that matches its (wrong) version byte,
	// so the version check, not CRC verification, is what gets exercised.
	header := []byte{ProtocolVersion + 1, 0, 0, byte(CmdDigitalWrite >> 8), byte(CmdDigitalWrite)}
	sum := crc32.ChecksumIEEE(header)
	crcBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBuf, sum)
	raw := append(header, crcBuf...)

	if _, err := ParseFrame(raw); !isKind(err, FrameErrBadVersion) {
		t.Errorf("ParseFrame with bad version = %v, want FrameErrBadVersion", err)
	}
}

func TestParseFrameIncomplete(t *testing.T) {
	if _, err := ParseFrame([]byte{1, 2, 3}); !isKind(err, FrameErrIncomplete) {
		t.Errorf("ParseFrame on 3 bytes = %v, want FrameErrIncomplete", err)
	}
}

func TestBuildFramePayloadTooLarge(t *testing.T) {
	big := make([]byte, MaxPayloadSize+1)
	if _, err := BuildFrame(CmdDigitalWrite, big, false); !isKind(err, FrameErrPayloadTooLarge) {
		t.Errorf("BuildFrame with oversized payload = %v, want FrameErrPayloadTooLarge", err)
	}
}

func TestBuildFrameBadCommandID(t *testing.T) {
	if _, err := BuildFrame(0, nil, false); !isKind(err, FrameErrBadCommandID) {
		t.Errorf("BuildFrame with command id 0 = %v, want FrameErrBadCommandID", err)
	}
}

// isKind reports whether err is a *FrameError of the given kind.
func isKind(err error, kind string) bool {
	fe, ok := err.(*FrameError)
	return ok && fe.Kind == kind
}
