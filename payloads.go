package bridge

import "encoding/binary"

// Packed payload helpers for every command whose frame body is a fixed or
// length-prefixed binary structure, mirroring the MCU's C struct layouts
// field-for-field rather than leaving callers to slice bytes by hand.

// PinWritePayload is CMD_DIGITAL_WRITE/CMD_ANALOG_WRITE's payload: pin,
// value.
type PinWritePayload struct {
	Pin   uint8
	Value uint8
}

func (p PinWritePayload) Pack() []byte { return []byte{p.Pin, p.Value} }

func ParsePinWritePayload(raw []byte) (PinWritePayload, error) {
	if len(raw) != 2 {
		return PinWritePayload{}, newFrameError(FrameErrLengthMismatch, "pin write payload is %d bytes, want 2", len(raw))
	}
	return PinWritePayload{Pin: raw[0], Value: raw[1]}, nil
}

// PinReadPayload is CMD_DIGITAL_READ/CMD_ANALOG_READ's payload: the pin to
// sample.
type PinReadPayload struct {
	Pin uint8
}

func (p PinReadPayload) Pack() []byte { return []byte{p.Pin} }

func ParsePinReadPayload(raw []byte) (PinReadPayload, error) {
	if len(raw) != 1 {
		return PinReadPayload{}, newFrameError(FrameErrLengthMismatch, "pin read payload is %d bytes, want 1", len(raw))
	}
	return PinReadPayload{Pin: raw[0]}, nil
}

// PinReadRespPayload is *_READ_RESP's payload: pin plus the sampled value.
// Digital values are 0/1; analog values use the full byte (or more, for a
// wider ADC) depending on McuCapabilities.
type PinReadRespPayload struct {
	Pin   uint8
	Value []byte
}

func (p PinReadRespPayload) Pack() []byte {
	out := make([]byte, 0, 1+len(p.Value))
	out = append(out, p.Pin)
	return append(out, p.Value...)
}

func ParsePinReadRespPayload(raw []byte) (PinReadRespPayload, error) {
	if len(raw) < 1 {
		return PinReadRespPayload{}, newFrameError(FrameErrLengthMismatch, "pin read response payload is empty")
	}
	return PinReadRespPayload{Pin: raw[0], Value: raw[1:]}, nil
}

// SetPinModePayload is CMD_SET_PIN_MODE's payload: pin plus the mode code
// (implementer-assigned: input/output/input-pullup).
type SetPinModePayload struct {
	Pin  uint8
	Mode uint8
}

func (p SetPinModePayload) Pack() []byte { return []byte{p.Pin, p.Mode} }

func ParseSetPinModePayload(raw []byte) (SetPinModePayload, error) {
	if len(raw) != 2 {
		return SetPinModePayload{}, newFrameError(FrameErrLengthMismatch, "set pin mode payload is %d bytes, want 2", len(raw))
	}
	return SetPinModePayload{Pin: raw[0], Mode: raw[1]}, nil
}

// DatastorePutPayload is CMD_DATASTORE_PUT's payload: u8 key_len, key bytes,
// u8 value_len, value bytes.
type DatastorePutPayload struct {
	Key   string
	Value []byte
}

func (p DatastorePutPayload) Pack() []byte {
	out := make([]byte, 0, 2+len(p.Key)+len(p.Value))
	out = append(out, uint8(len(p.Key)))
	out = append(out, []byte(p.Key)...)
	out = append(out, uint8(len(p.Value)))
	out = append(out, p.Value...)
	return out
}

func ParseDatastorePutPayload(raw []byte) (DatastorePutPayload, error) {
	if len(raw) < 1 {
		return DatastorePutPayload{}, newFrameError(FrameErrLengthMismatch, "datastore put payload too short for key_len")
	}
	keyLen := int(raw[0])
	if len(raw) < 1+keyLen+1 {
		return DatastorePutPayload{}, newFrameError(FrameErrLengthMismatch, "datastore put payload truncated before value_len")
	}
	key := string(raw[1 : 1+keyLen])
	valueLen := int(raw[1+keyLen])
	valueStart := 1 + keyLen + 1
	if len(raw) < valueStart+valueLen {
		return DatastorePutPayload{}, newFrameError(FrameErrLengthMismatch, "datastore put payload truncated before value")
	}
	value := raw[valueStart : valueStart+valueLen]
	return DatastorePutPayload{Key: key, Value: value}, nil
}

// DatastoreGetPayload is CMD_DATASTORE_GET's payload: u8 key_len, key bytes.
type DatastoreGetPayload struct {
	Key string
}

func (p DatastoreGetPayload) Pack() []byte {
	out := make([]byte, 0, 1+len(p.Key))
	out = append(out, uint8(len(p.Key)))
	return append(out, []byte(p.Key)...)
}

func ParseDatastoreGetPayload(raw []byte) (DatastoreGetPayload, error) {
	if len(raw) < 1 {
		return DatastoreGetPayload{}, newFrameError(FrameErrLengthMismatch, "datastore get payload too short for key_len")
	}
	keyLen := int(raw[0])
	if len(raw) < 1+keyLen {
		return DatastoreGetPayload{}, newFrameError(FrameErrLengthMismatch, "datastore get payload truncated before key")
	}
	return DatastoreGetPayload{Key: string(raw[1 : 1+keyLen])}, nil
}

// DatastoreGetRespPayload is CMD_DATASTORE_GET_RESP's payload: u8 value_len,
// value bytes (empty if the key was missing).
type DatastoreGetRespPayload struct {
	Value []byte
}

func (p DatastoreGetRespPayload) Pack() []byte {
	out := make([]byte, 0, 1+len(p.Value))
	out = append(out, uint8(len(p.Value)))
	return append(out, p.Value...)
}

func ParseDatastoreGetRespPayload(raw []byte) (DatastoreGetRespPayload, error) {
	if len(raw) < 1 {
		return DatastoreGetRespPayload{}, newFrameError(FrameErrLengthMismatch, "datastore get response payload too short for value_len")
	}
	valueLen := int(raw[0])
	if len(raw) < 1+valueLen {
		return DatastoreGetRespPayload{}, newFrameError(FrameErrLengthMismatch, "datastore get response payload truncated before value")
	}
	return DatastoreGetRespPayload{Value: raw[1 : 1+valueLen]}, nil
}

// FileWritePayload is CMD_FILE_WRITE's payload: u8 path_len, path bytes, u16
// data_len, data bytes — mirrors the original FileWritePacket construct.
type FileWritePayload struct {
	Path string
	Data []byte
}

func (p FileWritePayload) Pack() []byte {
	out := make([]byte, 0, 1+len(p.Path)+2+len(p.Data))
	out = append(out, uint8(len(p.Path)))
	out = append(out, []byte(p.Path)...)
	dataLen := make([]byte, 2)
	binary.BigEndian.PutUint16(dataLen, uint16(len(p.Data)))
	out = append(out, dataLen...)
	return append(out, p.Data...)
}

func ParseFileWritePayload(raw []byte) (FileWritePayload, error) {
	if len(raw) < 1 {
		return FileWritePayload{}, newFrameError(FrameErrLengthMismatch, "file write payload too short for path_len")
	}
	pathLen := int(raw[0])
	if len(raw) < 1+pathLen+2 {
		return FileWritePayload{}, newFrameError(FrameErrLengthMismatch, "file write payload truncated before data_len")
	}
	path := string(raw[1 : 1+pathLen])
	dataLen := int(binary.BigEndian.Uint16(raw[1+pathLen : 1+pathLen+2]))
	dataStart := 1 + pathLen + 2
	if len(raw) < dataStart+dataLen {
		return FileWritePayload{}, newFrameError(FrameErrLengthMismatch, "file write payload truncated before data")
	}
	return FileWritePayload{Path: path, Data: raw[dataStart : dataStart+dataLen]}, nil
}

// FileReadPayload and FileRemovePayload are CMD_FILE_READ/CMD_FILE_REMOVE's
// payload: u8 path_len, path bytes.
type FileReadPayload struct {
	Path string
}

func (p FileReadPayload) Pack() []byte {
	out := make([]byte, 0, 1+len(p.Path))
	out = append(out, uint8(len(p.Path)))
	return append(out, []byte(p.Path)...)
}

func ParseFileReadPayload(raw []byte) (FileReadPayload, error) {
	if len(raw) < 1 {
		return FileReadPayload{}, newFrameError(FrameErrLengthMismatch, "file read payload too short for path_len")
	}
	pathLen := int(raw[0])
	if len(raw) < 1+pathLen {
		return FileReadPayload{}, newFrameError(FrameErrLengthMismatch, "file read payload truncated before path")
	}
	return FileReadPayload{Path: string(raw[1 : 1+pathLen])}, nil
}

type FileRemovePayload = FileReadPayload

var ParseFileRemovePayload = ParseFileReadPayload

// VersionResponsePayload is CMD_GET_VERSION_RESP's payload: major, minor.
type VersionResponsePayload struct {
	Major uint8
	Minor uint8
}

func (p VersionResponsePayload) Pack() []byte { return []byte{p.Major, p.Minor} }

func ParseVersionResponsePayload(raw []byte) (VersionResponsePayload, error) {
	if len(raw) != 2 {
		return VersionResponsePayload{}, newFrameError(FrameErrLengthMismatch, "version response payload is %d bytes, want 2", len(raw))
	}
	return VersionResponsePayload{Major: raw[0], Minor: raw[1]}, nil
}

// FreeMemoryResponsePayload is CMD_GET_FREE_MEMORY_RESP's payload: u32 free
// bytes remaining on the MCU.
type FreeMemoryResponsePayload struct {
	FreeBytes uint32
}

func (p FreeMemoryResponsePayload) Pack() []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, p.FreeBytes)
	return out
}

func ParseFreeMemoryResponsePayload(raw []byte) (FreeMemoryResponsePayload, error) {
	if len(raw) != 4 {
		return FreeMemoryResponsePayload{}, newFrameError(FrameErrLengthMismatch, "free memory response payload is %d bytes, want 4", len(raw))
	}
	return FreeMemoryResponsePayload{FreeBytes: binary.BigEndian.Uint32(raw)}, nil
}

// MailboxMessagePayload is one length-prefixed mailbox message: u16
// msg_len, message bytes. Used for both CMD_MAILBOX_WRITE and
// CMD_MAILBOX_READ_RESP.
type MailboxMessagePayload struct {
	Message []byte
}

func (p MailboxMessagePayload) Pack() []byte {
	out := make([]byte, 2, 2+len(p.Message))
	binary.BigEndian.PutUint16(out, uint16(len(p.Message)))
	return append(out, p.Message...)
}

func ParseMailboxMessagePayload(raw []byte) (MailboxMessagePayload, error) {
	if len(raw) < 2 {
		return MailboxMessagePayload{}, newFrameError(FrameErrLengthMismatch, "mailbox message payload too short for msg_len")
	}
	msgLen := int(binary.BigEndian.Uint16(raw[0:2]))
	if len(raw) < 2+msgLen {
		return MailboxMessagePayload{}, newFrameError(FrameErrLengthMismatch, "mailbox message payload truncated")
	}
	return MailboxMessagePayload{Message: raw[2 : 2+msgLen]}, nil
}

// MailboxAvailableRespPayload is CMD_MAILBOX_AVAILABLE_RESP's payload: u16
// count of outgoing messages queued for the MCU.
type MailboxAvailableRespPayload struct {
	Count uint16
}

func (p MailboxAvailableRespPayload) Pack() []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, p.Count)
	return out
}

func ParseMailboxAvailableRespPayload(raw []byte) (MailboxAvailableRespPayload, error) {
	if len(raw) != 2 {
		return MailboxAvailableRespPayload{}, newFrameError(FrameErrLengthMismatch, "mailbox available response payload is %d bytes, want 2", len(raw))
	}
	return MailboxAvailableRespPayload{Count: binary.BigEndian.Uint16(raw)}, nil
}
