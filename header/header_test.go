package header

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{Type: TypeSessionRequest, Time: 0xAABBCCDD},
		{Type: TypeData, Time: 0, Rekey: false, ExtendedOptionsPresent: false},
		{Type: TypePeerTest, Time: 1234, ExtendedOptionsPresent: true, ExtendedOptions: []byte{0x01, 0x02, 0x03}},
		{Type: TypeSessionDestroyed, Time: 42, Rekey: true},
	}

	for _, h := range cases {
		buf := make([]byte, 32) // MAC||IV placeholder, contents irrelevant to header codec
		copy(buf[0:16], bytes.Repeat([]byte{0xAB}, 16))
		copy(buf[16:32], bytes.Repeat([]byte{0xCD}, 16))
		var err error
		buf, err = WriteCleartext(buf, h)
		if err != nil {
			t.Fatalf("WriteCleartext: %v", err)
		}

		parsed, offset, err := ParseCleartext(buf)
		if err != nil {
			t.Fatalf("ParseCleartext: %v", err)
		}
		if offset != len(buf) {
			t.Fatalf("offset = %d, want %d (no body appended)", offset, len(buf))
		}
		if parsed.Type != h.Type || parsed.Time != h.Time || parsed.Rekey != h.Rekey || parsed.ExtendedOptionsPresent != h.ExtendedOptionsPresent {
			t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, h)
		}
		if h.ExtendedOptionsPresent && !bytes.Equal(parsed.ExtendedOptions, h.ExtendedOptions) {
			t.Fatalf("extended options mismatch: got %x, want %x", parsed.ExtendedOptions, h.ExtendedOptions)
		}
	}
}

// TestHeaderLiteralVector exercises spec.md §8 scenario 1 exactly.
func TestHeaderLiteralVector(t *testing.T) {
	mac := make([]byte, 16)
	for i := range mac {
		mac[i] = byte(0x0a + i)
	}
	iv := make([]byte, 16)
	for i := range iv {
		iv[i] = byte(i + 1)
	}

	buf := append([]byte{}, mac...)
	buf = append(buf, iv...)
	buf = append(buf, 0x00)                   // flag: payload type SessionRequest(0), no rekey, no extopts
	buf = append(buf, 0xAA, 0xBB, 0xCC, 0xDD) // time

	parsed, offset, err := ParseCleartext(buf)
	if err != nil {
		t.Fatalf("ParseCleartext: %v", err)
	}
	if offset != Size {
		t.Fatalf("offset = %d, want %d", offset, Size)
	}
	if parsed.Type != TypeSessionRequest {
		t.Fatalf("Type = %v, want SessionRequest", parsed.Type)
	}
	if parsed.Rekey || parsed.ExtendedOptionsPresent {
		t.Fatalf("unexpected flags: rekey=%v extopts=%v", parsed.Rekey, parsed.ExtendedOptionsPresent)
	}
	if parsed.Time != 0xAABBCCDD {
		t.Fatalf("Time = %#x, want 0xAABBCCDD", parsed.Time)
	}

	out := append([]byte{}, buf[:32]...)
	out, err = WriteCleartext(out, parsed)
	if err != nil {
		t.Fatalf("WriteCleartext: %v", err)
	}
	if !bytes.Equal(out, buf) {
		t.Fatalf("re-serialized header differs:\ngot  %x\nwant %x", out, buf)
	}
}

func TestParseCleartextRejectsShortBuffer(t *testing.T) {
	if _, _, err := ParseCleartext(make([]byte, Size-1)); err == nil {
		t.Fatalf("expected framing error for short buffer")
	}
}

func TestParseCleartextRejectsTruncatedExtendedOptions(t *testing.T) {
	buf := make([]byte, 32)
	buf = append(buf, 0x04) // flag: extopts present, type 0
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, 10) // declares 10 bytes of extended options
	buf = append(buf, 1, 2, 3)
	if _, _, err := ParseCleartext(buf); err == nil {
		t.Fatalf("expected framing error for truncated extended options")
	}
}

func TestWriteCleartextRejectsOversizeExtendedOptions(t *testing.T) {
	h := Header{ExtendedOptionsPresent: true, ExtendedOptions: make([]byte, MaxExtendedOptionsSize+1)}
	if _, err := WriteCleartext(make([]byte, 32), h); err == nil {
		t.Fatalf("expected invariant_violation for oversize extended options")
	}
}
