package session

import (
	"net"
	"time"

	"github.com/go-i2p/go-ssu/envelope"
	"github.com/go-i2p/go-ssu/packet"
	"github.com/go-i2p/go-ssu/router"
	"github.com/samber/oops"
)

func ipBytes(ip net.IP) []byte {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip.To16()
}

// BuildSessionRequest produces Alice's first handshake message and arms the
// connect timer on first call (spec.md §4.C "Outbound session" step 1).
// Subsequent calls (resends) reuse the same DH pair and deadline but count
// against MaxHandshakeResends.
func (s *Session) BuildSessionRequest(dh router.DHKeyPair, now time.Time) (packet.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleInitiator || s.state != Unknown {
		return packet.Packet{}, oops.
			Code("invariant_violation").
			In("session").
			With("state", s.state.String()).
			Errorf("BuildSessionRequest invoked outside Initiator/Unknown")
	}
	if s.handshakeAttempts >= MaxHandshakeResends {
		return packet.Packet{}, oops.
			Code("invariant_violation").
			In("session").
			With("attempts", s.handshakeAttempts).
			Errorf("handshake resend limit exceeded")
	}

	if !s.haveDH {
		s.dh = dh
		s.haveDH = true
	}
	if s.connectDeadline.IsZero() {
		s.connectDeadline = now.Add(ConnectTimeout)
	}
	s.handshakeAttempts++

	return packet.Packet{Body: packet.SessionRequest{
		DHX:   s.dh.Public,
		BobIP: ipBytes(s.remoteEndpoint.IP),
	}}, nil
}

// HandleSessionCreated completes Alice's side of the handshake: it derives
// the session keys, verifies Bob's signature, records our externally
// observed address, and returns the SessionConfirmed to send back
// (spec.md §4.C "Outbound session" step 2).
func (s *Session) HandleSessionCreated(
	created packet.SessionCreated,
	dhPool router.DHPool,
	ctx router.Context,
	remoteIdentity router.Identity,
	now time.Time,
) (packet.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleInitiator || s.state != Unknown || !s.haveDH {
		return packet.Packet{}, oops.
			Code("invariant_violation").
			In("session").
			Errorf("HandleSessionCreated invoked outside Initiator/Unknown handshake")
	}

	if skew := now.Unix() - int64(created.SignedOnTime); skew > int64(ClockSkewTolerance.Seconds()) || skew < -int64(ClockSkewTolerance.Seconds()) {
		s.failLocked()
		return packet.Packet{}, oops.
			Code("signature_failure").
			In("session").
			With("skew_seconds", skew).
			Errorf("SessionCreated signed_on_time outside clock skew tolerance")
	}

	secret, err := dhPool.Agree(s.dh.Private, created.DHY)
	if err != nil {
		s.failLocked()
		return packet.Packet{}, oops.Code("invariant_violation").In("session").Wrap(err)
	}
	keys, err := envelope.DeriveFromSharedSecret(secret)
	if err != nil {
		s.failLocked()
		return packet.Packet{}, err
	}

	tuple := packet.SignedTuple(
		s.dh.Public, created.DHY,
		created.AliceIP, created.AlicePort,
		ipBytes(s.remoteEndpoint.IP), uint16(s.remoteEndpoint.Port),
		created.RelayTag, created.SignedOnTime,
	)
	if !remoteIdentity.Verify(tuple, created.EncryptedSignature) {
		s.failLocked()
		return packet.Packet{}, oops.
			Code("signature_failure").
			In("session").
			Errorf("SessionCreated signature verification failed")
	}

	ctx.UpdateAddress(net.IP(created.AliceIP), created.AlicePort)

	ourTuple := packet.SignedTuple(
		s.dh.Public, created.DHY,
		created.AliceIP, created.AlicePort,
		ipBytes(s.remoteEndpoint.IP), uint16(s.remoteEndpoint.Port),
		created.RelayTag, uint32(now.Unix()),
	)
	sig, err := ctx.Sign(ourTuple)
	if err != nil {
		s.failLocked()
		return packet.Packet{}, oops.Code("invariant_violation").In("session").Wrap(err)
	}

	s.establishedKeys = keys
	s.remoteIdentity = remoteIdentity
	s.relayTag = created.RelayTag
	s.state = Established
	s.dh = router.DHKeyPair{}
	s.haveDH = false
	s.terminationDeadline = now.Add(TerminationTimeout)
	s.keepAliveDeadline = now.Add(TerminationTimeout / 2)

	return packet.Packet{Body: packet.SessionConfirmed{
		FragmentInfo:  packet.SingleFragment,
		IdentityBytes: ctx.LocalIdentity().Bytes(),
		SignedOnTime:  uint32(now.Unix()),
		Signature:     sig,
	}}, nil
}

// HandleSessionRequest is Bob's response to Alice's first handshake message:
// it derives the session keys immediately (both DH values are now known),
// signs the handshake tuple, and stashes the pieces needed to verify Alice's
// SessionConfirmed signature later (spec.md §4.C "Inbound session" step 1).
func (s *Session) HandleSessionRequest(
	req packet.SessionRequest,
	dh router.DHKeyPair,
	dhPool router.DHPool,
	ctx router.Context,
	aliceIntroKey [32]byte,
	relayTag uint32,
	now time.Time,
) (packet.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleResponder || s.state != Unknown {
		return packet.Packet{}, oops.
			Code("invariant_violation").
			In("session").
			Errorf("HandleSessionRequest invoked outside Responder/Unknown")
	}

	s.dh = dh
	s.haveDH = true
	s.remoteDHPublic = req.DHX
	s.remoteIntroKey = aliceIntroKey
	s.haveRemoteIntroKey = true
	if s.connectDeadline.IsZero() {
		s.connectDeadline = now.Add(ConnectTimeout)
	}

	secret, err := dhPool.Agree(dh.Private, req.DHX)
	if err != nil {
		return packet.Packet{}, oops.Code("invariant_violation").In("session").Wrap(err)
	}
	keys, err := envelope.DeriveFromSharedSecret(secret)
	if err != nil {
		return packet.Packet{}, err
	}
	s.establishedKeys = keys

	local := ctx.LocalSSUAddress()
	aliceIP := ipBytes(s.remoteEndpoint.IP)
	alicePort := uint16(s.remoteEndpoint.Port)
	bobIP := ipBytes(local.Host)
	bobSignedOnTime := uint32(now.Unix())

	tuple := packet.SignedTuple(req.DHX, dh.Public, aliceIP, alicePort, bobIP, local.Port, relayTag, bobSignedOnTime)
	sig, err := ctx.Sign(tuple)
	if err != nil {
		return packet.Packet{}, oops.Code("invariant_violation").In("session").Wrap(err)
	}

	s.bobSignedOnTime = bobSignedOnTime
	s.confirmTuple = pendingTuple{
		x: req.DHX, y: dh.Public,
		aliceIP: net.IP(aliceIP), alicePort: alicePort,
		bobIP: net.IP(bobIP), bobPort: local.Port,
		relayTag: relayTag,
	}
	s.haveConfirmTuple = true
	s.relayTag = relayTag

	return packet.Packet{Body: packet.SessionCreated{
		DHY:                dh.Public,
		AliceIP:            aliceIP,
		AlicePort:          alicePort,
		RelayTag:           relayTag,
		SignedOnTime:       bobSignedOnTime,
		EncryptedSignature: sig,
	}}, nil
}

// HandleSessionConfirmed is Bob's final handshake step: it parses Alice's
// identity, reconstructs the tuple she actually signed (same shape as the one
// Bob signed, but with her own signed_on_time spliced in), and verifies her
// signature (spec.md §4.C "Inbound session" step 2).
func (s *Session) HandleSessionConfirmed(
	confirmed packet.SessionConfirmed,
	identityParser router.IdentityParser,
	now time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleResponder || s.state != Unknown || !s.haveConfirmTuple {
		return oops.
			Code("invariant_violation").
			In("session").
			Errorf("HandleSessionConfirmed invoked outside Responder/Unknown handshake")
	}

	if skew := now.Unix() - int64(confirmed.SignedOnTime); skew > int64(ClockSkewTolerance.Seconds()) || skew < -int64(ClockSkewTolerance.Seconds()) {
		s.failLocked()
		return oops.
			Code("signature_failure").
			In("session").
			With("skew_seconds", skew).
			Errorf("SessionConfirmed signed_on_time outside clock skew tolerance")
	}

	identity, err := identityParser.Parse(confirmed.IdentityBytes)
	if err != nil {
		s.failLocked()
		return oops.Code("framing_error").In("session").Wrap(err)
	}

	t := s.confirmTuple
	tuple := packet.SignedTuple(t.x, t.y, ipBytes(t.aliceIP), t.alicePort, ipBytes(t.bobIP), t.bobPort, t.relayTag, confirmed.SignedOnTime)
	if !identity.Verify(tuple, confirmed.Signature) {
		s.failLocked()
		return oops.
			Code("signature_failure").
			In("session").
			Errorf("SessionConfirmed signature verification failed")
	}

	s.remoteIdentity = identity
	s.state = Established
	s.dh = router.DHKeyPair{}
	s.haveDH = false
	s.terminationDeadline = now.Add(TerminationTimeout)
	s.keepAliveDeadline = now.Add(TerminationTimeout / 2)
	return nil
}

// HandshakeAttempts reports how many SessionRequest transmissions (initial
// plus resends) have been made so far.
func (s *Session) HandshakeAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakeAttempts
}
