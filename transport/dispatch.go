package transport

import (
	"context"
	"net"
	"time"

	cryptorand "github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-ssu/envelope"
	"github.com/go-i2p/go-ssu/fragment"
	"github.com/go-i2p/go-ssu/header"
	"github.com/go-i2p/go-ssu/packet"
	"github.com/go-i2p/go-ssu/router"
	"github.com/go-i2p/go-ssu/session"
	"github.com/samber/oops"
)

// Connect starts an outbound handshake to the router identified by hash,
// looked up in NetDB for its published SSU address (spec.md §4.C "Outbound
// session" step 1).
func (s *Server) Connect(hash router.Hash) error {
	info, ok := s.netdb.Lookup(hash)
	if !ok || !info.HasSSU {
		return oops.
			Code("upstream_rejection").
			In("transport").
			With("hash", hash.String()).
			Errorf("no published SSU address for peer")
	}
	addr := &net.UDPAddr{IP: info.SSU.Host, Port: int(info.SSU.Port)}
	if _, known := s.entryFor(addr); known {
		return nil
	}

	now := time.Now()
	sess := session.NewOutbound(addr, info.SSU.IntroKey, now)
	entry := newSessionEntry(sess, s.cfg.SessionInboxSize)
	entry.remoteIdentityHint = info.Identity

	dh, err := s.dhPool.Take(context.Background())
	if err != nil {
		return err
	}
	entry.dh = dh
	entry.haveDH = true

	req, err := sess.BuildSessionRequest(dh, now)
	if err != nil {
		return err
	}
	entry.lastHandshakeSend = now

	s.startExecutor(addr, entry)
	return s.sealAndSendEntry(addr, entry, req)
}

// handleDatagram is the single entry point for everything Run reads off the
// socket (spec.md §4.E "Dispatch"). Known endpoints are resolved by exact
// source address; first contact from an unknown endpoint is decrypted under
// our own published intro key, since spec.md §4.B's key-selection table has
// every first message to a router sealed under that router's intro key.
func (s *Server) handleDatagram(raw []byte, from *net.UDPAddr) {
	if entry, known := s.entryFor(from); known {
		now := time.Now()
		if entry.sess.State() == session.Introduced {
			// Any datagram from Charlie's endpoint while Introduced, even
			// the zero-length HolePunch, is our cue to dial him for real -
			// it never carries an envelope sealed under keys we hold, so it
			// is handled here instead of going through the normal
			// decrypt/dispatch path (spec.md §4.C, §4.E).
			s.post(entry, func() { s.handleIntroducerHolePunch(from, entry, now) })
			return
		}

		keys := entry.sess.DecryptKeys(s.cfg.LocalIntroKey)
		body, err := envelope.Open(raw, keys)
		if err != nil {
			s.onBadMAC(from, entry)
			return
		}
		_ = body
		s.post(entry, func() {
			entry.badMACCount = 0
			s.dispatchBody(from, entry, raw, now)
		})
		return
	}

	keys := envelope.Keys{AES: s.cfg.LocalIntroKey, MAC: s.cfg.LocalIntroKey}
	if _, err := envelope.Open(raw, keys); err != nil {
		log.Debug("transport: dropping undecryptable datagram from unknown endpoint")
		return
	}
	s.handleFirstContact(raw, from, time.Now())
}

// onBadMAC accounts a MAC failure and, once three consecutive failures have
// been seen on an Established session, tears it down (spec.md §7 class 2,
// §8 scenario 4).
func (s *Server) onBadMAC(from *net.UDPAddr, entry *sessionEntry) {
	s.post(entry, func() {
		entry.badMACCount++
		if entry.sess.State() == session.Established && entry.badMACCount >= 3 {
			log.WithFields(map[string]interface{}{"peer": from.String()}).
				Warn("transport: tearing down session after repeated MAC failures")
			s.teardown(from, entry)
		}
	})
}

// decodeWithContext parses the fully decrypted datagram raw into a Packet,
// resolving the out-of-band signature-size information the decoder needs
// for SessionCreated and SessionConfirmed (spec.md §4.A).
func (s *Server) decodeWithContext(raw []byte, entry *sessionEntry) (packet.Packet, error) {
	h, offset, err := header.ParseCleartext(raw)
	if err != nil {
		return packet.Packet{}, err
	}

	var opts packet.DecodeOptions
	switch h.Type {
	case header.TypeSessionCreated:
		if entry == nil || entry.remoteIdentityHint == nil {
			return packet.Packet{}, oops.
				Code("invariant_violation").
				In("transport").
				Errorf("SessionCreated received without a known remote identity")
		}
		opts.BobSignatureSize = entry.remoteIdentityHint.SignatureSize()
	case header.TypeSessionConfirmed:
		identBytes, err := packet.PeekSessionConfirmedIdentity(raw[offset:])
		if err != nil {
			return packet.Packet{}, err
		}
		identity, err := s.idParser.Parse(identBytes)
		if err != nil {
			return packet.Packet{}, err
		}
		opts.AliceSignatureSize = identity.SignatureSize()
	}
	return packet.Decode(raw, opts)
}

// dispatchBody runs on entry's executor goroutine, decoding raw and acting
// on it according to session role and state (spec.md §4.C, §4.D).
func (s *Server) dispatchBody(from *net.UDPAddr, entry *sessionEntry, raw []byte, now time.Time) {
	pkt, err := s.decodeWithContext(raw, entry)
	if err != nil {
		log.WithError(err).Debug("transport: dropping malformed datagram")
		return
	}
	entry.sess.RecordActivity(now, len(raw))

	switch body := pkt.Body.(type) {
	case packet.SessionCreated:
		s.handleSessionCreated(from, entry, body, now)
	case packet.SessionConfirmed:
		s.handleSessionConfirmed(from, entry, body, now)
	case packet.Data:
		s.handleData(from, entry, body, now)
	case packet.SessionDestroyed:
		entry.sess.Close()
		s.teardown(from, entry)
	case packet.RelayRequest:
		s.handleRelayRequest(from, entry, body, now)
	case packet.RelayResponse:
		s.handleRelayResponse(from, entry, body, now)
	case packet.RelayIntro:
		s.handleRelayIntro(from, entry, body, now)
	case packet.PeerTest:
		s.handlePeerTestKnown(from, entry, body, now)
	case packet.SessionRequest:
		// Reaches here when Alice's real SessionRequest arrives at a
		// session entry Charlie pre-registered for her in handleRelayIntro
		// (spec.md §4.F "HolePunch").
		s.handleSessionRequest(from, entry, body, now)
	default:
		log.WithFields(map[string]interface{}{"type": pkt.Header.Type.String()}).
			Debug("transport: unhandled payload type")
	}
}

func (s *Server) handleSessionCreated(from *net.UDPAddr, entry *sessionEntry, sc packet.SessionCreated, now time.Time) {
	confirm, err := entry.sess.HandleSessionCreated(sc, s.dhPool, s.rtrCtx, entry.remoteIdentityHint, now)
	if err != nil {
		log.WithError(err).Warn("transport: SessionCreated rejected")
		s.teardown(from, entry)
		return
	}
	if err := s.sealAndSendEntry(from, entry, confirm); err != nil {
		log.WithError(err).Warn("transport: failed to send SessionConfirmed")
	}
	s.maybeAllocateRelayTag(from, entry)
}

func (s *Server) handleSessionConfirmed(from *net.UDPAddr, entry *sessionEntry, sc packet.SessionConfirmed, now time.Time) {
	if err := entry.sess.HandleSessionConfirmed(sc, s.idParser, now); err != nil {
		log.WithError(err).Warn("transport: SessionConfirmed rejected")
		s.teardown(from, entry)
		return
	}
	s.maybeAllocateRelayTag(from, entry)
}

func (s *Server) handleData(from *net.UDPAddr, entry *sessionEntry, d packet.Data, now time.Time) {
	for _, f := range d.Fragments {
		payload, delivered := entry.reassembler.Ingest(f, now)
		if !delivered {
			continue
		}
		entry.ackSched.RecordComplete(f.MsgID)
		frame, err := fragment.ParseFrame(payload)
		if err != nil {
			log.WithError(err).Debug("transport: failed to parse reassembled I2NP frame")
			continue
		}
		if err := s.sink.Deliver(frame.I2NP, entry.sess.RemoteIdentity()); err != nil {
			log.WithError(err).Warn("transport: upstream rejected delivered message")
		}
	}
	if len(d.Fragments) > 0 {
		entry.ackSched.NoteFragmentReceived(now)
	}
}

// handleFirstContact decodes a datagram from an endpoint with no existing
// session entry. The payload types accepted here are SessionRequest (a fresh
// Alice), PeerTest (a peer-test participant we hold no session with, spec.md
// §4.F), and RelayResponse (Bob answering our RelayRequest); anything else
// is dropped.
func (s *Server) handleFirstContact(raw []byte, from *net.UDPAddr, now time.Time) {
	pkt, err := s.decodeWithContext(raw, nil)
	if err != nil {
		log.WithError(err).Debug("transport: dropping malformed first-contact datagram")
		return
	}

	switch body := pkt.Body.(type) {
	case packet.SessionRequest:
		s.handleSessionRequest(from, nil, body, now)
	case packet.PeerTest:
		s.handlePeerTestFirstContact(from, body, now)
	case packet.RelayResponse:
		s.handleRelayResponse(from, nil, body, now)
	default:
		log.WithFields(map[string]interface{}{"type": pkt.Header.Type.String()}).
			Debug("transport: unexpected first-contact payload type")
	}
}

// handleSessionRequest is Bob's (or Charlie's) response to Alice's first
// handshake message. entry is nil for a direct first-contact SessionRequest
// and non-nil when Charlie already holds a placeholder entry for Alice from
// handleRelayIntro's HolePunch.
func (s *Server) handleSessionRequest(from *net.UDPAddr, entry *sessionEntry, sr packet.SessionRequest, now time.Time) {
	fresh := entry == nil
	if fresh {
		entry = newSessionEntry(session.NewInbound(from, now), s.cfg.SessionInboxSize)
	}

	if !entry.haveDH {
		dh, err := s.dhPool.Take(context.Background())
		if err != nil {
			log.WithError(err).Warn("transport: DH pool exhausted, dropping SessionRequest")
			return
		}
		entry.dh = dh
		entry.haveDH = true
	}

	// Bob has no wire-level way to learn Alice's real intro key on a direct
	// (non-relayed) SessionRequest, so the handshake's unestablished-phase
	// reply necessarily uses Bob's own intro key on both sides (spec.md
	// §4.B table row 2, see DESIGN.md). RelayIntro carries no Alice intro
	// key either, so introducer-mediated SessionRequests reply the same way.
	reply, err := entry.sess.HandleSessionRequest(sr, entry.dh, s.dhPool, s.rtrCtx, s.cfg.LocalIntroKey, 0, now)
	if err != nil {
		log.WithError(err).Warn("transport: rejecting SessionRequest")
		return
	}

	if fresh {
		s.startExecutor(from, entry)
	}
	if err := s.sealAndSendEntry(from, entry, reply); err != nil {
		log.WithError(err).Warn("transport: failed to send SessionCreated")
	}
}

// handleIntroducerHolePunch fires when a datagram arrives from Charlie's
// endpoint while we are Introduced: it transitions back to Unknown and sends
// the real SessionRequest directly to him (spec.md §4.C "Introducer path").
func (s *Server) handleIntroducerHolePunch(from *net.UDPAddr, entry *sessionEntry, now time.Time) {
	if !entry.sess.ReceiveFromIntroducer() {
		return
	}
	req, err := entry.sess.BuildSessionRequest(entry.dh, now)
	if err != nil {
		log.WithError(err).Warn("transport: failed to build SessionRequest after introducer hole punch")
		return
	}
	entry.lastHandshakeSend = now
	if err := s.sealAndSendEntry(from, entry, req); err != nil {
		log.WithError(err).Debug("transport: SessionRequest send to introduced peer failed")
	}
}

// sealAndSendEntry seals pkt under entry's session's current key-selection
// rule and writes it to addr, counting the bytes sent.
func (s *Server) sealAndSendEntry(addr *net.UDPAddr, entry *sessionEntry, pkt packet.Packet) error {
	keys := entry.sess.EncryptKeys()
	n, err := s.sealAndSend(addr, keys, pkt)
	if err == nil {
		entry.sess.RecordSent(n)
	}
	return err
}

// sealAndSend encodes, pads, and seals pkt under keys and writes it to addr.
func (s *Server) sealAndSend(addr *net.UDPAddr, keys envelope.Keys, pkt packet.Packet) (int, error) {
	buf := make([]byte, envelope.HeaderPrefixSize)
	buf, err := packet.Encode(buf, pkt)
	if err != nil {
		return 0, err
	}
	buf, err = envelope.AppendRandomPadding(buf, cryptorand.Reader)
	if err != nil {
		return 0, err
	}
	if err := envelope.Seal(buf, keys, cryptorand.Reader); err != nil {
		return 0, err
	}
	return s.conn.WriteToUDP(buf, addr)
}

// teardown removes entry from the session table and stops its executor.
// Close and Fail both clear key material; which one applies depends on
// whether the session ever reached Established, matching spec.md §4.C's
// distinct Established->Closed and handshake->Failed transitions.
func (s *Server) teardown(addr *net.UDPAddr, entry *sessionEntry) {
	if entry.sess.State() == session.Established {
		entry.sess.Close()
	} else {
		entry.sess.Fail()
	}
	s.removeEntry(addr, entry)
	select {
	case <-entry.stopCh:
	default:
		close(entry.stopCh)
	}
}
