package packet

import (
	"bytes"
	"testing"

	"github.com/go-i2p/go-ssu/header"
)

func roundTrip(t *testing.T, p Packet, opts DecodeOptions) Packet {
	t.Helper()
	buf := make([]byte, 32) // MAC||IV placeholder
	buf, err := Encode(buf, p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(buf, opts)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func TestSessionRequestRoundTrip(t *testing.T) {
	var p SessionRequest
	for i := range p.DHX {
		p.DHX[i] = byte(i)
	}
	p.BobIP = []byte{203, 0, 113, 7}

	got := roundTrip(t, Packet{Header: header.Header{Time: 111}, Body: p}, DecodeOptions{})
	gp, ok := got.Body.(SessionRequest)
	if !ok {
		t.Fatalf("decoded body is %T, want SessionRequest", got.Body)
	}
	if gp.DHX != p.DHX || !bytes.Equal(gp.BobIP, p.BobIP) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", gp, p)
	}
	if got.Header.Type != header.TypeSessionRequest {
		t.Fatalf("header type = %v", got.Header.Type)
	}
}

func TestSessionCreatedRoundTrip(t *testing.T) {
	var p SessionCreated
	for i := range p.DHY {
		p.DHY[i] = byte(255 - i)
	}
	p.AliceIP = []byte{198, 51, 100, 23}
	p.AlicePort = 4444
	p.RelayTag = 0xdeadbeef
	p.SignedOnTime = 1466500266
	p.EncryptedSignature = bytes.Repeat([]byte{0x42}, 64)

	got := roundTrip(t, Packet{Body: p}, DecodeOptions{BobSignatureSize: 64})
	gp := got.Body.(SessionCreated)
	if gp.DHY != p.DHY || !bytes.Equal(gp.AliceIP, p.AliceIP) || gp.AlicePort != p.AlicePort ||
		gp.RelayTag != p.RelayTag || gp.SignedOnTime != p.SignedOnTime ||
		!bytes.Equal(gp.EncryptedSignature, p.EncryptedSignature) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", gp, p)
	}
}

func TestSessionConfirmedRoundTrip(t *testing.T) {
	p := SessionConfirmed{
		FragmentInfo:  SingleFragment,
		IdentityBytes: bytes.Repeat([]byte{0x11}, 391),
		SignedOnTime:  1466500266,
		Signature:     bytes.Repeat([]byte{0x99}, 64),
	}

	got := roundTrip(t, Packet{Body: p}, DecodeOptions{AliceSignatureSize: 64})
	gp := got.Body.(SessionConfirmed)
	if gp.FragmentInfo != p.FragmentInfo || gp.SignedOnTime != p.SignedOnTime ||
		!bytes.Equal(gp.IdentityBytes, p.IdentityBytes) || !bytes.Equal(gp.Signature, p.Signature) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", gp, p)
	}
}

// TestSessionConfirmedSignatureAlignment models the literal-vector scenario:
// signature bytes must begin on a 16-byte boundary measured from the start
// of the datagram, with zero padding (not random) inserted before it.
func TestSessionConfirmedSignatureAlignment(t *testing.T) {
	p := SessionConfirmed{
		FragmentInfo:  SingleFragment,
		IdentityBytes: bytes.Repeat([]byte{0xAA}, 391),
		SignedOnTime:  0x576904AA,
		Signature:     bytes.Repeat([]byte{0xBB}, 64),
	}
	buf := make([]byte, 32)
	buf, err := Encode(buf, Packet{Body: p})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	sigOffset := len(buf) - len(p.Signature)
	if sigOffset%16 != 0 {
		t.Fatalf("signature does not start on a 16-byte boundary: offset %d", sigOffset)
	}

	unpaddedEnd := header.Size + 1 + 2 + len(p.IdentityBytes) + 4
	for i := unpaddedEnd; i < sigOffset; i++ {
		if buf[i] != 0 {
			t.Fatalf("expected zero padding byte at offset %d before signature, got %#x", i, buf[i])
		}
	}
	if sigOffset == unpaddedEnd && unpaddedEnd%16 != 0 {
		t.Fatalf("expected padding to bring offset %d to a 16-byte boundary", unpaddedEnd)
	}

	if len(buf) != 512 {
		t.Fatalf("expected a 512-byte datagram for a 391-byte identity, got %d", len(buf))
	}
}

func TestRelayRequestRoundTrip(t *testing.T) {
	p := RelayRequest{
		RelayTag:  12345,
		AliceIP:   []byte{10, 0, 0, 1},
		AlicePort: 9999,
		Challenge: []byte{1, 2, 3, 4, 5},
		Nonce:     0xcafebabe,
	}
	for i := range p.AliceIntroKey {
		p.AliceIntroKey[i] = byte(i)
	}
	got := roundTrip(t, Packet{Body: p}, DecodeOptions{})
	gp := got.Body.(RelayRequest)
	if gp.RelayTag != p.RelayTag || !bytes.Equal(gp.AliceIP, p.AliceIP) || gp.AlicePort != p.AlicePort ||
		!bytes.Equal(gp.Challenge, p.Challenge) || gp.AliceIntroKey != p.AliceIntroKey || gp.Nonce != p.Nonce {
		t.Fatalf("round trip mismatch: got %+v, want %+v", gp, p)
	}
}

func TestRelayResponseRoundTrip(t *testing.T) {
	p := RelayResponse{
		CharlieIP:   []byte{1, 2, 3, 4},
		CharliePort: 1000,
		AliceIP:     []byte{5, 6, 7, 8},
		AlicePort:   2000,
		Nonce:       77,
	}
	got := roundTrip(t, Packet{Body: p}, DecodeOptions{})
	gp := got.Body.(RelayResponse)
	if !bytes.Equal(gp.CharlieIP, p.CharlieIP) || gp.CharliePort != p.CharliePort ||
		!bytes.Equal(gp.AliceIP, p.AliceIP) || gp.AlicePort != p.AlicePort || gp.Nonce != p.Nonce {
		t.Fatalf("round trip mismatch: got %+v, want %+v", gp, p)
	}
}

func TestRelayResponseRejectsNonIPv4Charlie(t *testing.T) {
	p := RelayResponse{CharlieIP: make([]byte, 16), AliceIP: []byte{1, 2, 3, 4}}
	if _, err := encodeRelayResponse(nil, p); err == nil {
		t.Fatalf("expected error for 16-byte Charlie IP")
	}
}

func TestRelayIntroRoundTrip(t *testing.T) {
	p := RelayIntro{
		AliceIP:   []byte{9, 9, 9, 9},
		AlicePort: 3333,
		Challenge: []byte{0xff},
	}
	got := roundTrip(t, Packet{Body: p}, DecodeOptions{})
	gp := got.Body.(RelayIntro)
	if !bytes.Equal(gp.AliceIP, p.AliceIP) || gp.AlicePort != p.AlicePort || !bytes.Equal(gp.Challenge, p.Challenge) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", gp, p)
	}
}

func TestPeerTestRoundTripWithAndWithoutIP(t *testing.T) {
	base := PeerTest{Nonce: 555, Port: 0}
	got := roundTrip(t, Packet{Body: base}, DecodeOptions{})
	gp := got.Body.(PeerTest)
	if gp.IP != nil {
		t.Fatalf("expected nil IP for zero-length case, got %v", gp.IP)
	}

	withIP := PeerTest{Nonce: 556, IP: []byte{1, 1, 1, 1}, Port: 7777}
	got2 := roundTrip(t, Packet{Body: withIP}, DecodeOptions{})
	gp2 := got2.Body.(PeerTest)
	if !bytes.Equal(gp2.IP, withIP.IP) || gp2.Port != withIP.Port {
		t.Fatalf("round trip mismatch: got %+v, want %+v", gp2, withIP)
	}
}

func TestSessionDestroyedRoundTrip(t *testing.T) {
	got := roundTrip(t, Packet{Body: SessionDestroyed{}}, DecodeOptions{})
	if _, ok := got.Body.(SessionDestroyed); !ok {
		t.Fatalf("decoded body is %T, want SessionDestroyed", got.Body)
	}
}

func TestDataRoundTripMultipleFragments(t *testing.T) {
	p := Data{
		ExplicitAcks: []uint32{1, 2, 3},
		AckBitfields: []AckBlock{{MsgID: 9, Bitfields: []byte{0x81, 0x02}}},
		Fragments: []Fragment{
			{MsgID: 0x0A0B0C0D, FragmentNum: 0, IsLast: false, Size: 4, Payload: []byte{0, 1, 2, 3}},
			{MsgID: 0x0A0B0C0D, FragmentNum: 1, IsLast: true, Size: 4, Payload: []byte{4, 5, 6, 7}},
		},
	}
	got := roundTrip(t, Packet{Body: p}, DecodeOptions{})
	gp := got.Body.(Data)
	if len(gp.ExplicitAcks) != 3 || gp.ExplicitAcks[2] != 3 {
		t.Fatalf("explicit acks mismatch: %+v", gp.ExplicitAcks)
	}
	if len(gp.AckBitfields) != 1 || gp.AckBitfields[0].MsgID != 9 {
		t.Fatalf("ack bitfields mismatch: %+v", gp.AckBitfields)
	}
	if len(gp.Fragments) != 2 || !gp.Fragments[1].IsLast || gp.Fragments[1].FragmentNum != 1 {
		t.Fatalf("fragments mismatch: %+v", gp.Fragments)
	}
	if !bytes.Equal(gp.Fragments[0].Payload, p.Fragments[0].Payload) {
		t.Fatalf("fragment payload mismatch")
	}
}

func TestDataRejectsOversizeFragment(t *testing.T) {
	p := Data{Fragments: []Fragment{{Size: MaxFragmentSize + 1, Payload: make([]byte, MaxFragmentSize+1)}}}
	if _, err := encodeData(nil, p); err == nil {
		t.Fatalf("expected invariant_violation for oversize fragment")
	}
}

func TestDecodeDataRejectsDeclaredSizeBeyondBuffer(t *testing.T) {
	buf := []byte{
		0x00,       // flags
		0x01,       // num_fragments
		1, 2, 3, 4, // msg_id
		0x00, 0x3f, 0xff, // fragment_info: size=16383, not last, frag 0
		// no payload bytes follow
	}
	if _, err := decodeData(buf); err == nil {
		t.Fatalf("expected framing error for declared size exceeding buffer")
	}
}
