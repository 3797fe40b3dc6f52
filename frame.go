package bridge

import (
	"encoding/binary"
	"hash/crc32"
)

const (
	// ProtocolVersion is the current serial wire-frame version.
	ProtocolVersion = 2

	// MaxPayloadSize bounds a single frame's payload. Kept well under the
	// MCU's RAM budget.
	MaxPayloadSize = 512

	// MaxSerialPacketBytes bounds a single COBS-decoded packet read off the
	// wire before the reader enters a discard-until-delimiter state.
	MaxSerialPacketBytes = MaxPayloadSize + headerSize + crcSize + 16

	// StatusCodeMin is the lowest valid command_id (after the compressed
	// flag bit is masked off). 0 is reserved and never a legal command or
	// status code; command and status codes share this one namespace.
	StatusCodeMin = 1

	// CmdFlagCompressed is the top bit of command_id, set when the payload
	// is RLE-compressed on the wire.
	CmdFlagCompressed = 0x8000

	// maxCommandID is the largest representable command/status code once
	// CmdFlagCompressed is masked off (15 bits).
	maxCommandID = CmdFlagCompressed - 1

	headerSize = 5 // version(1) + payload_len(2) + command_id(2)
	crcSize    = 4
	minFrameSize = headerSize + crcSize
)

// Frame is one parsed RPC unit: a command or status code paired with its
// payload, post CRC-verification and decompression.
type Frame struct {
	CommandID  uint16
	Payload    []byte
	Compressed bool
}

// BuildFrame packs version||payload_len||command_id||payload||crc32 into the
// wire representation. It does not COBS-encode; that is the transport's job.
// compressed, if true, sets CmdFlagCompressed on the wire command_id — the
// caller is responsible for having already RLE-compressed payload.
func BuildFrame(commandID uint16, payload []byte, compressed bool) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, newFrameError(FrameErrPayloadTooLarge, "payload of %d bytes exceeds MaxPayloadSize %d", len(payload), MaxPayloadSize)
	}
	if commandID < StatusCodeMin || commandID > maxCommandID {
		return nil, newFrameError(FrameErrBadCommandID, "command id %d outside [%d, %d]", commandID, StatusCodeMin, maxCommandID)
	}

	wireCommand := commandID
	if compressed {
		wireCommand |= CmdFlagCompressed
	}

	out := make([]byte, headerSize, headerSize+len(payload)+crcSize)
	out[0] = ProtocolVersion
	binary.BigEndian.PutUint16(out[1:3], uint16(len(payload)))
	binary.BigEndian.PutUint16(out[3:5], wireCommand)
	out = append(out, payload...)

	sum := crc32.ChecksumIEEE(out)
	crcBuf := make([]byte, crcSize)
	binary.BigEndian.PutUint32(crcBuf, sum)
	out = append(out, crcBuf...)

	return out, nil
}

// ParseFrame validates and decodes raw into a Frame, transparently
// RLE-decompressing the payload when CmdFlagCompressed is set. Errors are
// *FrameError, distinguishing CRC mismatch from other malformation so the
// transport can bump the right counter.
func ParseFrame(raw []byte) (Frame, error) {
	if len(raw) < minFrameSize {
		return Frame{}, newFrameError(FrameErrIncomplete, "frame of %d bytes shorter than minimum %d", len(raw), minFrameSize)
	}

	gotCRC := binary.BigEndian.Uint32(raw[len(raw)-crcSize:])
	wantCRC := crc32.ChecksumIEEE(raw[:len(raw)-crcSize])
	if gotCRC != wantCRC {
		return Frame{}, newFrameError(FrameErrCRCMismatch, "crc32 mismatch: got %#x, want %#x", gotCRC, wantCRC)
	}

	version := raw[0]
	if version != ProtocolVersion {
		return Frame{}, newFrameError(FrameErrBadVersion, "unsupported frame version %d", version)
	}

	declaredLen := int(binary.BigEndian.Uint16(raw[1:3]))
	payload := raw[headerSize : len(raw)-crcSize]
	if declaredLen != len(payload) {
		return Frame{}, newFrameError(FrameErrLengthMismatch, "declared payload_len %d does not match actual %d", declaredLen, len(payload))
	}

	wireCommand := binary.BigEndian.Uint16(raw[3:5])
	commandID := wireCommand &^ CmdFlagCompressed
	if commandID < StatusCodeMin {
		return Frame{}, newFrameError(FrameErrBadCommandID, "command id %d below minimum %d", commandID, StatusCodeMin)
	}

	compressed := wireCommand&CmdFlagCompressed != 0
	if compressed {
		decompressed, err := DecodeRLE(payload)
		if err != nil {
			return Frame{}, newFrameError(FrameErrDecompress, "%s", err.Error())
		}
		payload = decompressed
	}

	return Frame{CommandID: commandID, Payload: payload, Compressed: compressed}, nil
}
