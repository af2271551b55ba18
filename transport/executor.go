package transport

import (
	"net"
	"time"

	cryptorand "github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-ssu/packet"
	"github.com/go-i2p/go-ssu/session"
)

// handshakeResendInterval paces SessionRequest retransmission while a
// connect is still pending; spec.md §6 bounds the count (MaxHandshakeResends)
// but leaves the pacing to the implementation.
const handshakeResendInterval = time.Second

// tickEntry runs on entry's own executor goroutine once per tick, driving
// every timer a Session needs an external clock for: connect/termination
// timeouts, keep-alive, handshake resends, and the fragment ACK scheduler
// (spec.md §4.C "Timers", §4.D "QuickAck").
func (s *Server) tickEntry(addr *net.UDPAddr, entry *sessionEntry, now time.Time) {
	if entry.sess.ConnectTimedOut(now) {
		log.WithFields(map[string]interface{}{"peer": addr.String()}).
			Warn("transport: handshake connect timeout")
		s.teardown(addr, entry)
		return
	}
	if entry.sess.TerminationTimedOut(now) {
		s.teardown(addr, entry)
		return
	}

	if entry.sess.Role() == session.RoleInitiator && entry.sess.State() == session.Unknown && entry.haveDH {
		if now.Sub(entry.lastHandshakeSend) >= handshakeResendInterval {
			req, err := entry.sess.BuildSessionRequest(entry.dh, now)
			if err != nil {
				// MaxHandshakeResends exceeded; let the connect-timeout path
				// above handle the eventual teardown.
			} else {
				entry.lastHandshakeSend = now
				if err := s.sealAndSendEntry(addr, entry, req); err != nil {
					log.WithError(err).Debug("transport: SessionRequest resend failed")
				}
			}
		}
	}

	if entry.sess.NeedsKeepAlive(now) {
		if err := s.sealAndSendEntry(addr, entry, session.BuildKeepAlive()); err != nil {
			log.WithError(err).Debug("transport: keep-alive send failed")
		} else {
			entry.sess.MarkKeepAliveSent(now)
		}
	}

	if entry.ackSched.Due(now) {
		d := entry.ackSched.Flush(entry.reassembler)
		if len(d.ExplicitAcks) > 0 || len(d.AckBitfields) > 0 {
			if err := s.sealAndSendEntry(addr, entry, packet.Packet{Body: d}); err != nil {
				log.WithError(err).Debug("transport: QuickAck send failed")
			}
		}
	}
}

// maybeAllocateRelayTag issues a relay tag for entry once it reaches
// Established, so other peers can later ask this router to introduce them
// through this session (spec.md §4.F "introducer"). Tags are never issued
// before Established (see DESIGN.md) and 0 is reserved, never allocated.
func (s *Server) maybeAllocateRelayTag(addr *net.UDPAddr, entry *sessionEntry) {
	if entry.sess.State() != session.Established || entry.issuedRelayTag != 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var buf [4]byte
	for {
		if _, err := cryptorand.Read(buf[:]); err != nil {
			return
		}
		tag := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
		if tag == 0 {
			continue
		}
		if _, collide := s.relayTags[tag]; collide {
			continue
		}
		entry.issuedRelayTag = tag
		s.relayTags[tag] = entry
		return
	}
}
