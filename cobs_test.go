package bridge

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeCOBSRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0},
		{1, 2, 3},
		bytes.Repeat([]byte{0}, 10),
		bytes.Repeat([]byte{1}, 300), // exercises the 254-byte block boundary
	}
	for _, c := range cases {
		encoded := EncodeCOBS(c)
		for _, b := range encoded {
			if b == 0 {
				t.Fatalf("EncodeCOBS(%v) = %v, contains a zero byte", c, encoded)
			}
		}
		decoded, err := DecodeCOBS(encoded)
		if err != nil {
			t.Fatalf("DecodeCOBS(%v): %v", encoded, err)
		}
		if !bytes.Equal(decoded, c) && !(len(decoded) == 0 && len(c) == 0) {
			t.Errorf("round trip of %v = %v, want %v", c, decoded, c)
		}
	}
}

func TestDecodeCOBSRejectsEmbeddedZero(t *testing.T) {
	if _, err := DecodeCOBS([]byte{2, 1, 0}); err == nil {
		t.Error("DecodeCOBS with an embedded zero byte unexpectedly succeeded")
	}
}

func TestDecodeCOBSRejectsTruncatedBlock(t *testing.T) {
	if _, err := DecodeCOBS([]byte{5, 1, 2}); err == nil {
		t.Error("DecodeCOBS with a truncated block unexpectedly succeeded")
	}
}

func TestSplitCOBSStream(t *testing.T) {
	a := append(EncodeCOBS([]byte("one")), 0)
	b := append(EncodeCOBS([]byte("two")), 0)
	partial := EncodeCOBS([]byte("thr")) // no trailing delimiter yet

	buf := append(append(a, b...), partial...)
	packets, remainder, err := SplitCOBSStream(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
	if string(packets[0]) != "one" || string(packets[1]) != "two" {
		t.Errorf("packets = %q, want [one two]", packets)
	}
	if !bytes.Equal(remainder, partial) {
		t.Errorf("remainder = %v, want %v", remainder, partial)
	}
}

func FuzzCOBSRoundTrip(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{1, 0, 2, 0, 0, 3})
	f.Add(bytes.Repeat([]byte{5}, 260))

	f.Fuzz(func(t *testing.T, data []byte) {
		encoded := EncodeCOBS(data)
		for _, b := range encoded {
			if b == 0 {
				t.Fatalf("EncodeCOBS(%v) produced an embedded zero byte", data)
			}
		}
		decoded, err := DecodeCOBS(encoded)
		if err != nil {
			t.Fatalf("DecodeCOBS(EncodeCOBS(%v)): %v", data, err)
		}
		if len(decoded) == 0 && len(data) == 0 {
			return
		}
		if !bytes.Equal(decoded, data) {
			t.Fatalf("round trip mismatch: got %v, want %v", decoded, data)
		}
	})
}
