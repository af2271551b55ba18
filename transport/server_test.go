package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-i2p/go-ssu/packet"
	"github.com/go-i2p/go-ssu/router"
	"github.com/go-i2p/go-ssu/session"
)

type fakeConn struct {
	sent [][]byte
}

func (f *fakeConn) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	<-make(chan struct{}) // never returns; tests drive dispatch directly
	return 0, nil, nil
}

func (f *fakeConn) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	f.sent = append(f.sent, append([]byte(nil), b...))
	return len(b), nil
}

func (f *fakeConn) SetReadDeadline(t time.Time) error { return nil }
func (f *fakeConn) Close() error                      { return nil }

type fakeDHPool struct {
	agree [router.DHKeyPairSize]byte
}

func (p fakeDHPool) Take(_ context.Context) (router.DHKeyPair, error) {
	return router.DHKeyPair{}, nil
}

func (p fakeDHPool) Agree(_, _ [router.DHKeyPairSize]byte) ([router.DHKeyPairSize]byte, error) {
	return p.agree, nil
}

type fakeContext struct {
	identity router.Identity
	addr     router.SSUAddress
	sig      []byte
}

func (c *fakeContext) LocalIdentity() router.Identity       { return c.identity }
func (c *fakeContext) Sign(data []byte) ([]byte, error)     { return c.sig, nil }
func (c *fakeContext) LocalSSUAddress() router.SSUAddress   { return c.addr }
func (c *fakeContext) UpdateAddress(ip net.IP, port uint16) {}

type fakeIdentityParser struct {
	identity router.Identity
}

func (p fakeIdentityParser) Parse(raw []byte) (router.Identity, error) {
	return p.identity, nil
}

type fakeNetDB struct {
	infos map[router.Hash]router.RouterInfo
}

func (d fakeNetDB) Lookup(hash router.Hash) (router.RouterInfo, bool) {
	info, ok := d.infos[hash]
	return info, ok
}

func (d fakeNetDB) EstablishedPeers() []router.Hash { return nil }

type fakeSink struct {
	delivered [][]byte
}

func (s *fakeSink) Deliver(msg []byte, from router.Identity) error {
	s.delivered = append(s.delivered, append([]byte(nil), msg...))
	return nil
}

func testServer(t *testing.T) (*Server, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	cfg := DefaultConfig()
	cfg.QueueDrainTimeout = 200 * time.Millisecond
	cfg.SessionInboxSize = 16
	cfg.LocalIntroKey = [32]byte{0x42}
	ctx := &fakeContext{
		identity: router.FakeIdentity{Hash: router.Hash{0xBB}},
		addr:     router.SSUAddress{Host: net.IPv4(10, 0, 0, 1), Port: 8888},
		sig:      []byte("bob-sig"),
	}
	s := newServer(conn, cfg, ctx, fakeNetDB{infos: map[router.Hash]router.RouterInfo{}}, fakeDHPool{}, &fakeSink{})
	return s, conn
}

// establishedEntry drives a full inbound handshake to Established using the
// same fakes session_test.go uses, so relay-tag and bad-MAC behavior can be
// tested against a session in a realistic state.
func establishedEntry(t *testing.T, s *Server) (*net.UDPAddr, *sessionEntry) {
	t.Helper()
	now := time.Unix(1000, 0)
	addr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 7777}
	sess := session.NewInbound(addr, now)

	var dhx [router.DHKeyPairSize]byte
	req := packet.SessionRequest{DHX: dhx, BobIP: []byte{10, 0, 0, 1}}
	pool := fakeDHPool{agree: [router.DHKeyPairSize]byte{0x01}}
	if _, err := sess.HandleSessionRequest(req, router.DHKeyPair{}, pool, s.rtrCtx, s.cfg.LocalIntroKey, 0, now); err != nil {
		t.Fatalf("HandleSessionRequest: %v", err)
	}

	aliceIdentity := router.FakeIdentity{Hash: router.Hash{0x02}, ValidSig: []byte("alice-sig")}
	parser := fakeIdentityParser{identity: aliceIdentity}
	confirmed := packet.SessionConfirmed{
		FragmentInfo:  packet.SingleFragment,
		IdentityBytes: []byte("alice-identity-bytes"),
		SignedOnTime:  uint32(now.Unix()),
		Signature:     []byte("alice-sig"),
	}
	if err := sess.HandleSessionConfirmed(confirmed, parser, now); err != nil {
		t.Fatalf("HandleSessionConfirmed: %v", err)
	}
	if sess.State() != session.Established {
		t.Fatalf("state = %v, want Established", sess.State())
	}

	entry := newSessionEntry(sess, s.cfg.SessionInboxSize)
	s.startExecutor(addr, entry)
	return addr, entry
}

func waitDrained(t *testing.T, entry *sessionEntry) {
	t.Helper()
	done := make(chan struct{})
	select {
	case entry.inbox <- func() { close(done) }:
	case <-time.After(time.Second):
		t.Fatalf("executor inbox never accepted sync marker")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("executor never drained pending work")
	}
}

func TestMaybeAllocateRelayTagWaitsForEstablished(t *testing.T) {
	s, _ := testServer(t)
	addr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 1234}
	sess := session.NewOutbound(addr, [32]byte{1}, time.Unix(0, 0))
	entry := newSessionEntry(sess, 8)

	s.maybeAllocateRelayTag(addr, entry)
	if entry.issuedRelayTag != 0 {
		t.Fatalf("expected no relay tag before Established, got %d", entry.issuedRelayTag)
	}
}

func TestMaybeAllocateRelayTagIssuesNonzeroTagOnceEstablished(t *testing.T) {
	s, _ := testServer(t)
	addr, entry := establishedEntry(t, s)
	defer close(entry.stopCh)

	s.maybeAllocateRelayTag(addr, entry)
	if entry.issuedRelayTag == 0 {
		t.Fatalf("expected a nonzero relay tag once Established")
	}

	s.mu.Lock()
	got, ok := s.relayTags[entry.issuedRelayTag]
	s.mu.Unlock()
	if !ok || got != entry {
		t.Fatalf("relay tag %d not registered in server's relayTags table", entry.issuedRelayTag)
	}

	first := entry.issuedRelayTag
	s.maybeAllocateRelayTag(addr, entry)
	if entry.issuedRelayTag != first {
		t.Fatalf("relay tag reallocated: got %d, want unchanged %d", entry.issuedRelayTag, first)
	}
}

func TestBadMACTearsDownEstablishedSessionAfterThreeFailures(t *testing.T) {
	s, _ := testServer(t)
	addr, entry := establishedEntry(t, s)

	s.mu.Lock()
	s.sessions[addr.String()] = entry
	s.mu.Unlock()

	s.onBadMAC(addr, entry)
	s.onBadMAC(addr, entry)
	waitDrained(t, entry)
	if entry.sess.State() != session.Established {
		t.Fatalf("session torn down too early after 2 failures: state = %v", entry.sess.State())
	}

	s.onBadMAC(addr, entry)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		_, stillPresent := s.sessions[addr.String()]
		s.mu.Unlock()
		if !stillPresent {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if entry.sess.State() != session.Closed {
		t.Fatalf("state after 3 MAC failures = %v, want Closed", entry.sess.State())
	}
	s.mu.Lock()
	_, stillPresent := s.sessions[addr.String()]
	s.mu.Unlock()
	if stillPresent {
		t.Fatalf("expected session entry to be removed after teardown")
	}
}

func TestOnBadMACDoesNotTearDownUnestablishedSession(t *testing.T) {
	s, _ := testServer(t)
	addr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 1234}
	sess := session.NewOutbound(addr, [32]byte{1}, time.Unix(0, 0))
	entry := newSessionEntry(sess, 8)
	s.startExecutor(addr, entry)
	defer close(entry.stopCh)

	for i := 0; i < 5; i++ {
		s.onBadMAC(addr, entry)
	}
	waitDrained(t, entry)

	if entry.sess.State() == session.Failed {
		t.Fatalf("a handshake-phase session must not be torn down purely for MAC failures")
	}
}

// TestIntroducerRoundSendsRealSessionRequestOnHolePunch exercises spec.md
// §4.C's introducer path end to end from Alice's side: RelayResponse puts
// the session into Introduced with no SessionRequest sent yet, and only the
// HolePunch from Charlie's endpoint triggers the real one.
func TestIntroducerRoundSendsRealSessionRequestOnHolePunch(t *testing.T) {
	s, conn := testServer(t)

	bobHash := router.Hash{0x0B}
	charlieHash := router.Hash{0x0C}
	charlieIdentity := router.FakeIdentity{Hash: charlieHash}
	charlieAddr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 77), Port: 9999}

	s.netdb = fakeNetDB{infos: map[router.Hash]router.RouterInfo{
		bobHash: {
			HasSSU: true,
			SSU:    router.SSUAddress{Host: net.IPv4(10, 0, 0, 2), Port: 5555, IntroKey: [32]byte{0x0B}},
		},
		charlieHash: {
			HasSSU:   true,
			Identity: charlieIdentity,
			SSU:      router.SSUAddress{Host: charlieAddr.IP, Port: uint16(charlieAddr.Port), IntroKey: [32]byte{0x0C}},
		},
	}}

	if err := s.ConnectViaIntroducer(charlieHash, bobHash, 42); err != nil {
		t.Fatalf("ConnectViaIntroducer: %v", err)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("expected one RelayRequest sent to bob, got %d", len(conn.sent))
	}

	s.mu.Lock()
	var nonce uint32
	for n := range s.pendingRelays {
		nonce = n
	}
	s.mu.Unlock()
	if nonce == 0 {
		t.Fatalf("expected a pending relay recorded after ConnectViaIntroducer")
	}

	bobAddr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 5555}
	rr := packet.RelayResponse{
		CharlieIP:   []byte(charlieAddr.IP.To4()),
		CharliePort: uint16(charlieAddr.Port),
		AliceIP:     []byte{10, 0, 0, 1},
		AlicePort:   8888,
		Nonce:       nonce,
	}
	s.handleRelayResponse(bobAddr, nil, rr, time.Now())

	entry, known := s.entryFor(charlieAddr)
	if !known {
		t.Fatalf("expected a session entry registered for charlie after RelayResponse")
	}
	defer close(entry.stopCh)
	if entry.sess.State() != session.Introduced {
		t.Fatalf("state after RelayResponse = %v, want Introduced", entry.sess.State())
	}
	if !entry.sess.ViaIntroducer() {
		t.Fatalf("expected ViaIntroducer to be true")
	}
	if len(conn.sent) != 1 {
		t.Fatalf("RelayResponse must not itself trigger a SessionRequest send, got %d sent", len(conn.sent))
	}

	// Charlie's HolePunch: an empty datagram from his endpoint.
	s.handleDatagram(nil, charlieAddr)
	waitDrained(t, entry)

	if entry.sess.State() != session.Unknown {
		t.Fatalf("state after HolePunch = %v, want Unknown (mid real handshake)", entry.sess.State())
	}
	if entry.sess.HandshakeAttempts() != 1 {
		t.Fatalf("expected exactly one SessionRequest attempt after HolePunch, got %d", entry.sess.HandshakeAttempts())
	}
	if len(conn.sent) != 2 {
		t.Fatalf("expected a real SessionRequest sent to charlie after HolePunch, total sent = %d", len(conn.sent))
	}
}

func TestTickEntryTearsDownOnConnectTimeout(t *testing.T) {
	s, _ := testServer(t)
	start := time.Unix(0, 0)
	addr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 1234}
	sess := session.NewOutbound(addr, [32]byte{1}, start)
	entry := newSessionEntry(sess, 8)
	if _, err := sess.BuildSessionRequest(router.DHKeyPair{}, start); err != nil {
		t.Fatalf("BuildSessionRequest: %v", err)
	}
	entry.haveDH = true

	s.mu.Lock()
	s.sessions[addr.String()] = entry
	s.mu.Unlock()

	s.tickEntry(addr, entry, start.Add(5*time.Second))

	if sess.State() != session.Failed {
		t.Fatalf("state after connect timeout = %v, want Failed", sess.State())
	}
	s.mu.Lock()
	_, present := s.sessions[addr.String()]
	s.mu.Unlock()
	if present {
		t.Fatalf("expected session entry removed after connect timeout")
	}
}
