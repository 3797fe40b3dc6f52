package bridge

import "fmt"

// EncodeCOBS byte-stuffs data so the result contains no zero bytes,
// self-synchronizing the serial stream. The caller appends a single 0x00
// delimiter after the encoded packet; EncodeCOBS does not add one.
func EncodeCOBS(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/254+2)
	codePos := 0
	out = append(out, 0) // placeholder for the first code byte
	code := byte(1)

	for _, b := range data {
		if b == 0 {
			out[codePos] = code
			codePos = len(out)
			out = append(out, 0)
			code = 1
			continue
		}
		out = append(out, b)
		code++
		if code == 0xFF {
			out[codePos] = code
			codePos = len(out)
			out = append(out, 0)
			code = 1
		}
	}
	out[codePos] = code
	return out
}

// DecodeCOBS reverses EncodeCOBS. encoded must not contain the trailing
// 0x00 delimiter.
func DecodeCOBS(encoded []byte) (data []byte, err error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	out := make([]byte, 0, len(encoded))
	pos := 0
	for pos < len(encoded) {
		code := int(encoded[pos])
		if code == 0 {
			return nil, fmt.Errorf("cobs: zero byte in encoded stream at offset %d", pos)
		}
		pos++
		runEnd := pos + code - 1
		if runEnd > len(encoded) {
			return nil, fmt.Errorf("cobs: truncated block at offset %d", pos-1)
		}
		out = append(out, encoded[pos:runEnd]...)
		pos = runEnd
		if code != 0xFF && pos != len(encoded) {
			out = append(out, 0)
		}
	}
	return out, nil
}

// SplitCOBSStream scans buf for zero-delimited COBS packets, returning the
// decoded packets found and the unconsumed remainder of buf (a partial
// packet with no trailing delimiter yet).
func SplitCOBSStream(buf []byte) (packets [][]byte, remainder []byte, err error) {
	start := 0
	for i, b := range buf {
		if b != 0 {
			continue
		}
		if i > start {
			decoded, decErr := DecodeCOBS(buf[start:i])
			if decErr != nil {
				err = decErr
				start = i + 1
				continue
			}
			packets = append(packets, decoded)
		}
		start = i + 1
	}
	remainder = buf[start:]
	return
}
