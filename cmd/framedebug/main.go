package main

// framedebug parses one wire frame from a hex or base64 CLI argument and
// prints its header fields, CRC verdict, and decompressed payload — a
// developer-only tool, not shipped as part of the daemon.

import (
	"encoding/base64"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	bridge "github.com/mcubridge/gatewayd"
)

func decodeArg(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if raw, err := hex.DecodeString(strings.ReplaceAll(s, " ", "")); err == nil {
		return raw, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func main() {
	cobsEncoded := flag.Bool("cobs", false, "input is a COBS-encoded, zero-delimited packet rather than a raw frame")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: framedebug [-cobs] <hex-or-base64-frame>")
		os.Exit(2)
	}

	raw, err := decodeArg(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not decode argument as hex or base64:", err)
		os.Exit(1)
	}

	if *cobsEncoded {
		raw = trimTrailingZero(raw)
		decoded, err := bridge.DecodeCOBS(raw)
		if err != nil {
			fmt.Fprintln(os.Stderr, "COBS decode failed:", err)
			os.Exit(1)
		}
		raw = decoded
	}

	fmt.Printf("raw bytes (%d):    % x\n", len(raw), raw)

	frame, err := bridge.ParseFrame(raw)
	if err != nil {
		fmt.Println(bridge.Red(fmt.Sprintf("frame rejected: %v", err)))
		os.Exit(1)
	}

	fmt.Printf("command:           %s (%#04x)\n", bridge.CommandName(frame.CommandID), frame.CommandID)
	fmt.Printf("compressed:        %v\n", frame.Compressed)
	fmt.Printf("payload (%d bytes): % x\n", len(frame.Payload), frame.Payload)
	fmt.Println(bridge.Green("crc32 verified"))
}

// trimTrailingZero strips a single trailing zero delimiter, the COBS
// convention this codec's framing uses between packets on the wire.
func trimTrailingZero(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == 0 {
		return b[:len(b)-1]
	}
	return b
}
