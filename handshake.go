package bridge

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
)

const (
	// HandshakeNonceRandomBytes is the random prefix of the handshake nonce.
	HandshakeNonceRandomBytes = 8
	// HandshakeNonceCounterBytes is the monotonic-counter suffix.
	HandshakeNonceCounterBytes = 8
	// HandshakeNonceLength is the full nonce size sent in CMD_LINK_SYNC.
	HandshakeNonceLength = HandshakeNonceRandomBytes + HandshakeNonceCounterBytes

	// HandshakeTagLength is the truncated HMAC-SHA256 tag size.
	HandshakeTagLength = 16

	// HandshakeTagAlgorithm names the MAC used to authenticate the nonce.
	HandshakeTagAlgorithm = "HMAC-SHA256"

	// HandshakeConfigSize is the packed size of LinkConfig: u16 + u8 + u32.
	HandshakeConfigSize = 2 + 1 + 4

	HandshakeAckTimeoutMinMS      = 50
	HandshakeAckTimeoutMaxMS      = 5000
	HandshakeResponseTimeoutMinMS = 100
	HandshakeResponseTimeoutMaxMS = 30000
	HandshakeRetryLimitMin        = 1
	HandshakeRetryLimitMax        = 10
)

// LinkConfig is CMD_LINK_CONFIG's payload: u16 ack_timeout_ms, u8
// retry_limit, u32 response_timeout_ms, packed big-endian to match the MCU's
// C struct layout byte-for-byte.
type LinkConfig struct {
	AckTimeoutMS      uint16
	RetryLimit        uint8
	ResponseTimeoutMS uint32
}

// Pack serializes LinkConfig to its wire bytes.
func (c LinkConfig) Pack() []byte {
	out := make([]byte, HandshakeConfigSize)
	binary.BigEndian.PutUint16(out[0:2], c.AckTimeoutMS)
	out[2] = c.RetryLimit
	binary.BigEndian.PutUint32(out[3:7], c.ResponseTimeoutMS)
	return out
}

// ParseLinkConfig reverses LinkConfig.Pack.
func ParseLinkConfig(raw []byte) (LinkConfig, error) {
	if len(raw) != HandshakeConfigSize {
		return LinkConfig{}, newFrameError(FrameErrLengthMismatch, "link config payload is %d bytes, want %d", len(raw), HandshakeConfigSize)
	}
	return LinkConfig{
		AckTimeoutMS:      binary.BigEndian.Uint16(raw[0:2]),
		RetryLimit:        raw[2],
		ResponseTimeoutMS: binary.BigEndian.Uint32(raw[3:7]),
	}, nil
}

// Validate rejects a LinkConfig outside the handshake's negotiated ranges.
func (c LinkConfig) Validate() error {
	if c.AckTimeoutMS < HandshakeAckTimeoutMinMS || c.AckTimeoutMS > HandshakeAckTimeoutMaxMS {
		return newConfigError("ack_timeout_ms", "%d outside [%d, %d]", c.AckTimeoutMS, HandshakeAckTimeoutMinMS, HandshakeAckTimeoutMaxMS)
	}
	if c.RetryLimit < HandshakeRetryLimitMin || c.RetryLimit > HandshakeRetryLimitMax {
		return newConfigError("retry_limit", "%d outside [%d, %d]", c.RetryLimit, HandshakeRetryLimitMin, HandshakeRetryLimitMax)
	}
	if c.ResponseTimeoutMS < HandshakeResponseTimeoutMinMS || c.ResponseTimeoutMS > HandshakeResponseTimeoutMaxMS {
		return newConfigError("response_timeout_ms", "%d outside [%d, %d]", c.ResponseTimeoutMS, HandshakeResponseTimeoutMinMS, HandshakeResponseTimeoutMaxMS)
	}
	return nil
}

// GenerateHandshakeNonce produces a new 16-byte nonce: 8 cryptographically
// random bytes followed by the strictly monotonic counter (now = lastCounter+1)
// big-endian. Returns the nonce and the counter value it embeds, which the
// caller persists as the new lastCounter.
func GenerateHandshakeNonce(lastCounter uint64) (nonce []byte, newCounter uint64, err error) {
	newCounter = lastCounter + 1
	nonce = make([]byte, HandshakeNonceLength)
	if _, err = rand.Read(nonce[:HandshakeNonceRandomBytes]); err != nil {
		return nil, lastCounter, err
	}
	binary.BigEndian.PutUint64(nonce[HandshakeNonceRandomBytes:], newCounter)
	return nonce, newCounter, nil
}

// ExtractNonceCounter reads the monotonic counter out of a 16-byte nonce.
func ExtractNonceCounter(nonce []byte) (uint64, error) {
	if len(nonce) != HandshakeNonceLength {
		return 0, newHandshakeError(HandshakeErrMalformed, "nonce is %d bytes, want %d", len(nonce), HandshakeNonceLength)
	}
	return binary.BigEndian.Uint64(nonce[HandshakeNonceRandomBytes:]), nil
}

// ValidateNonceCounter enforces anti-replay: the nonce's counter must be
// strictly greater than lastCounter. Returns the new lastCounter on success;
// on rejection lastCounter is returned unchanged.
func ValidateNonceCounter(nonce []byte, lastCounter uint64) (ok bool, newLastCounter uint64, err error) {
	current, err := ExtractNonceCounter(nonce)
	if err != nil {
		return false, lastCounter, err
	}
	if current <= lastCounter {
		return false, lastCounter, nil
	}
	return true, current, nil
}

// CalculateHandshakeTag computes the first HandshakeTagLength bytes of
// HMAC-SHA256(sharedSecret, nonce). The name is kept identical in spirit to
// the contract test's reference vector: secret "mcubridge-shared", nonce
// bytes 0x00..0x0F, tag the first 16 bytes of the full digest.
func CalculateHandshakeTag(sharedSecret, nonce []byte) []byte {
	mac := hmac.New(sha256.New, sharedSecret)
	mac.Write(nonce)
	full := mac.Sum(nil)
	return full[:HandshakeTagLength]
}

// VerifyHandshakeTag compares tag against the expected value in constant
// time, avoiding a timing side channel on authentication failure.
func VerifyHandshakeTag(sharedSecret, nonce, tag []byte) bool {
	if len(tag) != HandshakeTagLength {
		return false
	}
	expected := CalculateHandshakeTag(sharedSecret, nonce)
	return subtle.ConstantTimeCompare(expected, tag) == 1
}
