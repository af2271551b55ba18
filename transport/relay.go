package transport

import (
	"context"
	"net"
	"time"

	"github.com/go-i2p/go-ssu/envelope"
	"github.com/go-i2p/go-ssu/packet"
	"github.com/go-i2p/go-ssu/peertest"
	"github.com/go-i2p/go-ssu/router"
	"github.com/go-i2p/go-ssu/session"
	"github.com/samber/oops"
)

func oopsUpstreamRejection(msg string) error {
	return oops.Code("upstream_rejection").In("transport").Errorf("%s", msg)
}

func ipBytes(ip net.IP) []byte {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip.To16()
}

// ConnectViaIntroducer asks bob, an established or published introducer for
// target, to relay a RelayIntro so Charlie (target) can hole-punch us
// (spec.md §4.F "introducer-mediated connection", §3 "relay tag").
func (s *Server) ConnectViaIntroducer(target router.Hash, bobHash router.Hash, relayTag uint32) error {
	bobInfo, ok := s.netdb.Lookup(bobHash)
	if !ok || !bobInfo.HasSSU {
		return oopsUpstreamRejection("no published SSU address for introducer")
	}
	bobAddr := &net.UDPAddr{IP: bobInfo.SSU.Host, Port: int(bobInfo.SSU.Port)}

	nonce := s.freshMsgID()
	local := s.rtrCtx.LocalSSUAddress()
	rr := packet.RelayRequest{
		RelayTag:      relayTag,
		AliceIP:       ipBytes(local.Host),
		AlicePort:     local.Port,
		AliceIntroKey: s.cfg.LocalIntroKey,
		Nonce:         nonce,
	}

	s.mu.Lock()
	s.pendingRelays[nonce] = pendingRelay{target: target, createdAt: time.Now()}
	s.mu.Unlock()

	keys := envelope.Keys{AES: bobInfo.SSU.IntroKey, MAC: bobInfo.SSU.IntroKey}
	_, err := s.sealAndSend(bobAddr, keys, packet.Packet{Body: rr})
	return err
}

// handleRelayRequest is Bob's side: alice asks us to introduce her to
// whichever established session issued relayTag, by forwarding a RelayIntro
// to that session and telling Alice where it lives (spec.md §4.F).
func (s *Server) handleRelayRequest(from *net.UDPAddr, aliceEntry *sessionEntry, rr packet.RelayRequest, now time.Time) {
	s.mu.Lock()
	charlie, ok := s.relayTags[rr.RelayTag]
	s.mu.Unlock()
	if !ok {
		log.Debug("transport: RelayRequest referenced unknown relay tag")
		return
	}

	charlieAddr := charlie.sess.RemoteEndpoint()
	intro := packet.Packet{Body: packet.RelayIntro{
		AliceIP:   rr.AliceIP,
		AlicePort: rr.AlicePort,
		Challenge: rr.Challenge,
	}}
	if err := s.sealAndSendEntry(charlieAddr, charlie, intro); err != nil {
		log.WithError(err).Debug("transport: failed to forward RelayIntro")
		return
	}

	resp := packet.Packet{Body: packet.RelayResponse{
		CharlieIP:   ipBytes(charlieAddr.IP),
		CharliePort: uint16(charlieAddr.Port),
		AliceIP:     rr.AliceIP,
		AlicePort:   rr.AlicePort,
		Nonce:       rr.Nonce,
	}}
	keys := envelope.Keys{AES: rr.AliceIntroKey, MAC: rr.AliceIntroKey}
	if _, err := s.sealAndSend(from, keys, resp); err != nil {
		log.WithError(err).Debug("transport: failed to send RelayResponse")
	}
}

// handleRelayResponse is Alice's side: Bob has told us where Charlie is, so
// we register an Introduced session for his endpoint, flagged as reached via
// an introducer, and wait for his HolePunch before sending SessionRequest
// (spec.md §4.F, §3 "via_introducer").
func (s *Server) handleRelayResponse(from *net.UDPAddr, _ *sessionEntry, rr packet.RelayResponse, now time.Time) {
	s.mu.Lock()
	pending, ok := s.pendingRelays[rr.Nonce]
	if ok {
		delete(s.pendingRelays, rr.Nonce)
	}
	s.mu.Unlock()
	if !ok {
		log.Debug("transport: RelayResponse for unknown nonce")
		return
	}

	info, ok := s.netdb.Lookup(pending.target)
	if !ok {
		log.Debug("transport: RelayResponse target no longer in NetDB")
		return
	}

	charlieAddr := &net.UDPAddr{IP: net.IP(rr.CharlieIP), Port: int(rr.CharliePort)}
	if _, known := s.entryFor(charlieAddr); known {
		return
	}

	sess := session.NewOutbound(charlieAddr, info.SSU.IntroKey, now)
	sess.SetViaIntroducer(true)
	if err := sess.EnterIntroduced(now); err != nil {
		log.WithError(err).Warn("transport: failed to enter Introduced for relayed connect")
		return
	}
	entry := newSessionEntry(sess, s.cfg.SessionInboxSize)
	entry.remoteIdentityHint = info.Identity

	// Take the DH pair now so BuildSessionRequest can fire the instant
	// Charlie's HolePunch arrives, rather than blocking the receive path on
	// the pool (spec.md §4.C "Introducer path").
	dh, err := s.dhPool.Take(context.Background())
	if err != nil {
		log.WithError(err).Warn("transport: DH pool exhausted for introducer-mediated connect")
		return
	}
	entry.dh = dh
	entry.haveDH = true

	s.startExecutor(charlieAddr, entry)
}

// handleRelayIntro is Charlie's side: Bob told us to expect Alice, so we
// hole-punch her claimed endpoint with a bare datagram and open an inbound
// session slot for her (spec.md §4.F "HolePunch").
func (s *Server) handleRelayIntro(from *net.UDPAddr, bobEntry *sessionEntry, ri packet.RelayIntro, now time.Time) {
	aliceAddr := &net.UDPAddr{IP: net.IP(ri.AliceIP), Port: int(ri.AlicePort)}

	// A single zero byte is not a valid SSU datagram; it exists only to
	// open a path through Alice's NAT so her SessionRequest can arrive.
	if _, err := s.conn.WriteToUDP([]byte{0}, aliceAddr); err != nil {
		log.WithError(err).Debug("transport: hole punch send failed")
	}

	if _, known := s.entryFor(aliceAddr); known {
		return
	}
	sess := session.NewInbound(aliceAddr, now)
	sess.SetViaIntroducer(true)
	entry := newSessionEntry(sess, s.cfg.SessionInboxSize)
	s.startExecutor(aliceAddr, entry)
}

// handlePeerTestFirstContact handles a PeerTest arriving from an endpoint
// with no existing session: as Alice2, Charlie contacting us directly in
// step 4 of spec.md §4.F; as Charlie, Alice's direct reply to us.
func (s *Server) handlePeerTestFirstContact(from *net.UDPAddr, pt packet.PeerTest, now time.Time) {
	if role, ok := s.coord.RoleOf(pt.Nonce); ok && role == session.PeerTestAlice2 {
		if s.coord.AliceReceiveFromCharlie(pt.Nonce) {
			log.WithFields(map[string]interface{}{"nonce": pt.Nonce}).
				Debug("transport: peer test round confirmed")
		}
		return
	}
	if s.coord.HandleCharlieFromAlice(pt.Nonce) {
		return
	}
}

// handlePeerTestKnown handles a PeerTest arriving over an existing session,
// covering every other step of the Alice/Bob/Charlie exchange.
func (s *Server) handlePeerTestKnown(from *net.UDPAddr, entry *sessionEntry, pt packet.PeerTest, now time.Time) {
	switch entry.sess.PeerTestRole() {
	case session.PeerTestNone:
		// We are Bob, freshly asked by Alice to start a round: pick an
		// established Charlie and fan out.
		s.startPeerTestAsBob(entry, pt, now)
	case session.PeerTestBob:
		s.forwardPeerTestToBob(from, entry, pt, now)
	default:
		out, ok, err := s.coord.AliceReceiveFromBob(pt.Nonce, pt, from, s.cfg.LocalIntroKey, now)
		if err != nil || !ok {
			return
		}
		s.sendPeerTestOutbound(out)
	}
}

func (s *Server) startPeerTestAsBob(aliceEntry *sessionEntry, pt packet.PeerTest, now time.Time) {
	peers := s.netdb.EstablishedPeers()
	var charlieEntry *sessionEntry
	var charlieAddr *net.UDPAddr
	s.mu.Lock()
	for _, hash := range peers {
		for addrStr, e := range s.sessions {
			if e.sess.State() == session.Established && e.sess.RemoteIdentity() != nil &&
				e.sess.RemoteIdentity().IdentHash() == hash && e != aliceEntry {
				charlieEntry = e
				a, err := net.ResolveUDPAddr("udp", addrStr)
				if err == nil {
					charlieAddr = a
				}
				break
			}
		}
		if charlieEntry != nil {
			break
		}
	}
	s.mu.Unlock()
	if charlieEntry == nil || charlieAddr == nil {
		log.Debug("transport: no established peer available to act as Charlie")
		return
	}

	aliceAddr := aliceEntry.sess.RemoteEndpoint()
	outs, err := s.coord.HandleBobStart(pt.Nonce, aliceAddr, pt.IntroKey, aliceAddr.String(), charlieAddr, [32]byte{}, now)
	if err != nil {
		return
	}
	aliceEntry.sess.SetPeerTestRole(session.PeerTestNone)
	for _, out := range outs {
		s.sendPeerTestOutbound(out)
	}
}

func (s *Server) forwardPeerTestToBob(from *net.UDPAddr, entry *sessionEntry, pt packet.PeerTest, now time.Time) {
	outs := s.coord.HandleCharlieFromBob(pt.Nonce, from, nil, [32]byte{}, s.cfg.LocalIntroKey, now)
	for _, out := range outs {
		s.sendPeerTestOutbound(out)
	}
}

func (s *Server) sendPeerTestOutbound(out peertest.Outbound) {
	var keys envelope.Keys
	if out.UseIntroKeyOf != nil {
		keys = envelope.Keys{AES: *out.UseIntroKeyOf, MAC: *out.UseIntroKeyOf}
	} else if entry, ok := s.entryFor(out.Endpoint); ok {
		keys = entry.sess.EncryptKeys()
	} else {
		keys = envelope.Keys{AES: s.cfg.LocalIntroKey, MAC: s.cfg.LocalIntroKey}
	}
	if _, err := s.sealAndSend(out.Endpoint, keys, packet.Packet{Body: out.Packet}); err != nil {
		log.WithError(err).Debug("transport: PeerTest send failed")
	}
}

// gcLoop sweeps stale reassembly state, peer-test rounds, and pending
// relays every GCInterval, per the supplemented GC sweep feature.
func (s *Server) gcLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case t := <-ticker.C:
			s.sweep(t)
		}
	}
}

func (s *Server) sweep(now time.Time) {
	s.mu.Lock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	for nonce, p := range s.pendingRelays {
		if now.Sub(p.createdAt) > peertest.NonceExpiry {
			delete(s.pendingRelays, nonce)
		}
	}
	s.mu.Unlock()

	for _, e := range entries {
		entry := e
		s.post(entry, func() {
			entry.reassembler.ExpireStale(now)
		})
	}

	s.coord.ExpireStale(now, func(nonce uint32) string {
		return ""
	})
}
