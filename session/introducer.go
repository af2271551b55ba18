package session

import (
	"time"

	"github.com/samber/oops"
)

// EnterIntroduced moves a freshly constructed outbound session into
// Introduced to await Charlie's HolePunch after a RelayResponse has told us
// his endpoint, before any SessionRequest has been sent (spec.md §4.C
// "Introducer path"). The connect timer starts here, since this is as far
// as the handshake clock is concerned the beginning of the attempt.
func (s *Session) EnterIntroduced(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != RoleInitiator || s.state != Unknown {
		return oops.
			Code("invariant_violation").
			In("session").
			With("state", s.state.String()).
			Errorf("EnterIntroduced invoked outside Initiator/Unknown")
	}
	s.state = Introduced
	if s.connectDeadline.IsZero() {
		s.connectDeadline = now.Add(ConnectTimeout)
	}
	return nil
}

// ReceiveFromIntroducer transitions an Introduced session back to Unknown on
// receiving any packet from Charlie's endpoint, including the zero-length
// HolePunch, and reports whether the transition happened. The caller is
// expected to follow a true result with BuildSessionRequest (spec.md §4.C
// "upon receiving any packet from Charlie ... transitions back to Unknown
// and initiates SessionRequest directly to Charlie").
func (s *Session) ReceiveFromIntroducer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Introduced {
		return false
	}
	s.state = Unknown
	return true
}
