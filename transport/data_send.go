package transport

import (
	"net"

	"github.com/go-i2p/go-ssu/fragment"
	"github.com/go-i2p/go-ssu/packet"
	"github.com/go-i2p/go-ssu/router"
	"github.com/samber/oops"
)

// SendMessage compresses, frames, and fragments an I2NP message to the
// router identified by hash over its established session, per spec.md
// §4.D's send path. The caller must already have an Established session
// (via Connect) to that peer.
func (s *Server) SendMessage(hash router.Hash, msg []byte, sourcePort, destPort uint16, proto uint8) error {
	entry, addr, ok := s.entryForIdentity(hash)
	if !ok {
		return oops.
			Code("upstream_rejection").
			In("transport").
			With("hash", hash.String()).
			Errorf("no established session for peer")
	}

	msgID := s.freshMsgID()
	fragments, err := fragment.BuildFragments(msg, sourcePort, destPort, proto, msgID)
	if err != nil {
		return err
	}

	for _, f := range fragments {
		d := packet.Data{Fragments: []packet.Fragment{f}}
		if err := s.sealAndSendEntry(addr, entry, packet.Packet{Body: d}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) entryForIdentity(hash router.Hash) (*sessionEntry, *net.UDPAddr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addrStr, e := range s.sessions {
		id := e.sess.RemoteIdentity()
		if id != nil && id.IdentHash() == hash {
			a, err := net.ResolveUDPAddr("udp", addrStr)
			if err != nil {
				continue
			}
			return e, a, true
		}
	}
	return nil, nil, false
}
