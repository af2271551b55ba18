package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-i2p/go-ssu/packet"
	"github.com/go-i2p/go-ssu/router"
)

type fakeDHPool struct {
	next  router.DHKeyPair
	agree [router.DHKeyPairSize]byte
}

func (p fakeDHPool) Take(_ context.Context) (router.DHKeyPair, error) {
	return p.next, nil
}

func (p fakeDHPool) Agree(_, _ [router.DHKeyPairSize]byte) ([router.DHKeyPairSize]byte, error) {
	return p.agree, nil
}

type fakeContext struct {
	identity router.Identity
	addr     router.SSUAddress
	sig      []byte
	updated  bool
}

func (c *fakeContext) LocalIdentity() router.Identity     { return c.identity }
func (c *fakeContext) Sign(data []byte) ([]byte, error)   { return c.sig, nil }
func (c *fakeContext) LocalSSUAddress() router.SSUAddress { return c.addr }
func (c *fakeContext) UpdateAddress(ip net.IP, port uint16) {
	c.updated = true
}

type fakeIdentityParser struct {
	identity router.Identity
}

func (p fakeIdentityParser) Parse(raw []byte) (router.Identity, error) {
	return p.identity, nil
}

func makeDHPair(seed byte) router.DHKeyPair {
	var pair router.DHKeyPair
	for i := range pair.Private {
		pair.Private[i] = seed
	}
	for i := range pair.Public {
		pair.Public[i] = seed + 1
	}
	return pair
}

func TestOutboundHandshakeHappyPath(t *testing.T) {
	now := time.Unix(1000, 0)
	remote := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 8887}
	bobIntroKey := [32]byte{1, 2, 3}

	s := NewOutbound(remote, bobIntroKey, now)

	dh := makeDHPair(5)
	if _, err := s.BuildSessionRequest(dh, now); err != nil {
		t.Fatalf("BuildSessionRequest: %v", err)
	}
	if s.State() != Unknown {
		t.Fatalf("state after BuildSessionRequest = %v, want Unknown", s.State())
	}
	if s.HandshakeAttempts() != 1 {
		t.Fatalf("attempts = %d, want 1", s.HandshakeAttempts())
	}

	sig := []byte("bob-signature-over-the-handshake-tuple")
	bobIdentity := router.FakeIdentity{Hash: router.Hash{0xAA}, ValidSig: sig}

	pool := fakeDHPool{agree: [router.DHKeyPairSize]byte{0x7f, 1, 2, 3}}
	ctx := &fakeContext{
		identity: router.FakeIdentity{Hash: router.Hash{0xBB}},
		addr:     router.SSUAddress{Host: net.IPv4(10, 0, 0, 1), Port: 8888},
		sig:      []byte("alice-sig"),
	}

	var dhy [router.DHKeyPairSize]byte
	dhy[0] = 9

	created := packet.SessionCreated{
		DHY: dhy, AliceIP: []byte{10, 0, 0, 1}, AlicePort: 8888,
		RelayTag: 0, SignedOnTime: uint32(now.Unix()), EncryptedSignature: sig,
	}

	confirmPkt, err := s.HandleSessionCreated(created, pool, ctx, bobIdentity, now)
	if err != nil {
		t.Fatalf("HandleSessionCreated: %v", err)
	}
	if s.State() != Established {
		t.Fatalf("state after HandleSessionCreated = %v, want Established", s.State())
	}
	if !ctx.updated {
		t.Fatalf("expected UpdateAddress to be called")
	}
	if _, ok := confirmPkt.Body.(packet.SessionConfirmed); !ok {
		t.Fatalf("expected a SessionConfirmed body, got %T", confirmPkt.Body)
	}
}

func TestOutboundHandshakeRejectsBadSignature(t *testing.T) {
	now := time.Unix(2000, 0)
	remote := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 8887}
	s := NewOutbound(remote, [32]byte{1}, now)
	if _, err := s.BuildSessionRequest(makeDHPair(1), now); err != nil {
		t.Fatalf("BuildSessionRequest: %v", err)
	}

	bobIdentity := router.FakeIdentity{Hash: router.Hash{0xAA}, ValidSig: []byte("correct")}
	pool := fakeDHPool{agree: [router.DHKeyPairSize]byte{0x7f}}
	ctx := &fakeContext{identity: router.FakeIdentity{}, addr: router.SSUAddress{Host: net.IPv4(10, 0, 0, 1), Port: 1}}

	var dhy [router.DHKeyPairSize]byte
	created := packet.SessionCreated{
		DHY: dhy, AliceIP: []byte{10, 0, 0, 1}, AlicePort: 1,
		SignedOnTime: uint32(now.Unix()), EncryptedSignature: []byte("wrong"),
	}
	if _, err := s.HandleSessionCreated(created, pool, ctx, bobIdentity, now); err == nil {
		t.Fatalf("expected signature verification failure")
	}
	if s.State() != Failed {
		t.Fatalf("state = %v, want Failed", s.State())
	}
}

func TestOutboundHandshakeRejectsClockSkew(t *testing.T) {
	now := time.Unix(5000, 0)
	remote := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 8887}
	s := NewOutbound(remote, [32]byte{1}, now)
	if _, err := s.BuildSessionRequest(makeDHPair(1), now); err != nil {
		t.Fatalf("BuildSessionRequest: %v", err)
	}

	bobIdentity := router.FakeIdentity{Hash: router.Hash{0xAA}, ValidSig: []byte("sig")}
	pool := fakeDHPool{agree: [router.DHKeyPairSize]byte{0x7f}}
	ctx := &fakeContext{identity: router.FakeIdentity{}, addr: router.SSUAddress{Host: net.IPv4(10, 0, 0, 1), Port: 1}}

	var dhy [router.DHKeyPairSize]byte
	created := packet.SessionCreated{
		DHY: dhy, AliceIP: []byte{10, 0, 0, 1}, AlicePort: 1,
		SignedOnTime: uint32(now.Add(-2 * time.Minute).Unix()), EncryptedSignature: []byte("sig"),
	}
	if _, err := s.HandleSessionCreated(created, pool, ctx, bobIdentity, now); err == nil {
		t.Fatalf("expected clock skew rejection")
	}
	if s.State() != Failed {
		t.Fatalf("state = %v, want Failed", s.State())
	}
}

func TestInboundHandshakeHappyPath(t *testing.T) {
	now := time.Unix(3000, 0)
	remote := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 7777}
	s := NewInbound(remote, now)

	dh := makeDHPair(7)
	pool := fakeDHPool{agree: [router.DHKeyPairSize]byte{0x01, 2, 3}}
	ctx := &fakeContext{
		identity: router.FakeIdentity{Hash: router.Hash{0x01}},
		addr:     router.SSUAddress{Host: net.IPv4(10, 0, 0, 1), Port: 8888},
		sig:      []byte("bob-sig"),
	}

	var dhx [router.DHKeyPairSize]byte
	dhx[0] = 0x42
	req := packet.SessionRequest{DHX: dhx, BobIP: []byte{10, 0, 0, 1}}

	createdPkt, err := s.HandleSessionRequest(req, dh, pool, ctx, [32]byte{9}, 0, now)
	if err != nil {
		t.Fatalf("HandleSessionRequest: %v", err)
	}
	if s.State() != Unknown {
		t.Fatalf("state after HandleSessionRequest = %v, want Unknown", s.State())
	}
	if _, ok := createdPkt.Body.(packet.SessionCreated); !ok {
		t.Fatalf("expected a SessionCreated body, got %T", createdPkt.Body)
	}

	aliceIdentity := router.FakeIdentity{Hash: router.Hash{0x02}, ValidSig: []byte("alice-sig")}
	parser := fakeIdentityParser{identity: aliceIdentity}

	confirmed := packet.SessionConfirmed{
		FragmentInfo:  packet.SingleFragment,
		IdentityBytes: []byte("alice-identity-bytes"),
		SignedOnTime:  uint32(now.Unix()),
		Signature:     []byte("alice-sig"),
	}
	if err := s.HandleSessionConfirmed(confirmed, parser, now); err != nil {
		t.Fatalf("HandleSessionConfirmed: %v", err)
	}
	if s.State() != Established {
		t.Fatalf("state = %v, want Established", s.State())
	}
	if s.RemoteIdentity() == nil {
		t.Fatalf("expected remote identity to be set")
	}
}

func TestInboundHandshakeRejectsBadConfirmSignature(t *testing.T) {
	now := time.Unix(4000, 0)
	remote := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 7777}
	s := NewInbound(remote, now)

	dh := makeDHPair(3)
	pool := fakeDHPool{agree: [router.DHKeyPairSize]byte{0x01}}
	ctx := &fakeContext{
		identity: router.FakeIdentity{},
		addr:     router.SSUAddress{Host: net.IPv4(10, 0, 0, 1), Port: 8888},
		sig:      []byte("bob-sig"),
	}
	var dhx [router.DHKeyPairSize]byte
	if _, err := s.HandleSessionRequest(packet.SessionRequest{DHX: dhx, BobIP: []byte{10, 0, 0, 1}}, dh, pool, ctx, [32]byte{9}, 0, now); err != nil {
		t.Fatalf("HandleSessionRequest: %v", err)
	}

	aliceIdentity := router.FakeIdentity{ValidSig: []byte("correct")}
	parser := fakeIdentityParser{identity: aliceIdentity}
	confirmed := packet.SessionConfirmed{
		FragmentInfo: packet.SingleFragment, IdentityBytes: []byte("x"),
		SignedOnTime: uint32(now.Unix()), Signature: []byte("wrong"),
	}
	if err := s.HandleSessionConfirmed(confirmed, parser, now); err == nil {
		t.Fatalf("expected signature rejection")
	}
	if s.State() != Failed {
		t.Fatalf("state = %v, want Failed", s.State())
	}
}

func TestConnectTimeoutAtFiveSeconds(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewOutbound(&net.UDPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 1}, [32]byte{1}, start)
	if _, err := s.BuildSessionRequest(makeDHPair(1), start); err != nil {
		t.Fatalf("BuildSessionRequest: %v", err)
	}

	if s.ConnectTimedOut(start.Add(4900 * time.Millisecond)) {
		t.Fatalf("must not time out before the connect deadline")
	}
	if s.State() != Unknown {
		t.Fatalf("state = %v, want Unknown", s.State())
	}

	if !s.ConnectTimedOut(start.Add(5 * time.Second)) {
		t.Fatalf("expected connect timeout to fire at t=5s")
	}
	if s.State() != Failed {
		t.Fatalf("state = %v, want Failed", s.State())
	}

	if s.ConnectTimedOut(start.Add(6 * time.Second)) {
		t.Fatalf("a session already Failed must not report a second timeout")
	}
}

func TestNeedsKeepAliveAtHalfTerminationTimeout(t *testing.T) {
	start := time.Unix(0, 0)
	s := &Session{state: Established, createdAt: start}
	s.RecordActivity(start, 0)

	if s.NeedsKeepAlive(start.Add(TerminationTimeout/2 - time.Second)) {
		t.Fatalf("must not need a keep-alive before termination_timeout/2")
	}
	if !s.NeedsKeepAlive(start.Add(TerminationTimeout / 2)) {
		t.Fatalf("expected a keep-alive to be due at termination_timeout/2")
	}
}

func TestHandshakeResendLimit(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewOutbound(&net.UDPAddr{IP: net.IPv4(1, 1, 1, 1), Port: 1}, [32]byte{1}, start)
	dh := makeDHPair(1)
	for i := 0; i < MaxHandshakeResends; i++ {
		if _, err := s.BuildSessionRequest(dh, start); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, err := s.BuildSessionRequest(dh, start); err == nil {
		t.Fatalf("expected the 7th attempt to be rejected")
	}
}
