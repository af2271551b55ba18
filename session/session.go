package session

import (
	"net"
	"sync"
	"time"

	"github.com/go-i2p/go-ssu/envelope"
	"github.com/go-i2p/go-ssu/router"
)

// Default timer and retry values (spec.md §6 "Constants").
const (
	ConnectTimeout       = 5 * time.Second
	TerminationTimeout   = 330 * time.Second
	MaxHandshakeResends  = 6
	ClockSkewTolerance   = 60 * time.Second
	IntroducerOfferCap   = 3
)

// Session is one peer's SSU state machine. All exported methods are safe for
// concurrent use; spec.md §5 expects a single owning executor in practice,
// but the lock makes accidental cross-goroutine access safe rather than racy.
type Session struct {
	mu sync.Mutex

	state State
	role  Role

	remoteEndpoint *net.UDPAddr
	remoteIdentity router.Identity // nil until learned (Bob, pre-SessionConfirmed)

	remoteIntroKey    [32]byte
	haveRemoteIntroKey bool

	dh            router.DHKeyPair
	haveDH        bool
	remoteDHPublic [router.DHKeyPairSize]byte

	establishedKeys envelope.Keys

	relayTag      uint32
	viaIntroducer bool

	bytesSent     uint64
	bytesReceived uint64
	createdAt     time.Time

	peerTestRole PeerTestRole

	connectDeadline     time.Time
	terminationDeadline time.Time
	keepAliveDeadline   time.Time
	handshakeAttempts   int

	// bobSignedOnTime and confirmTuple hold the pieces of the tuple Bob
	// signed in SessionCreated, kept around so that on receiving
	// SessionConfirmed Bob can re-derive the exact tuple Alice signed by
	// substituting her own signed_on_time for his (spec.md §4.C.2 "splice
	// Alice's signed_on_time into the stored session_confirm_data").
	bobSignedOnTime uint32
	confirmTuple    pendingTuple
	haveConfirmTuple bool
}

// pendingTuple holds everything SessionCreated.SignedTuple needs except the
// signed_on_time, which varies between what Bob signed and what Alice later
// signs over the same shape.
type pendingTuple struct {
	x, y               [router.DHKeyPairSize]byte
	aliceIP            net.IP
	alicePort, bobPort uint16
	bobIP              net.IP
	relayTag           uint32
}

// NewOutbound creates a session in the Initiator (Alice) role, addressed to
// remote using its published intro key.
func NewOutbound(remote *net.UDPAddr, remoteIntroKey [32]byte, now time.Time) *Session {
	return &Session{
		state:              Unknown,
		role:               RoleInitiator,
		remoteEndpoint:     remote,
		remoteIntroKey:     remoteIntroKey,
		haveRemoteIntroKey: true,
		createdAt:          now,
	}
}

// NewInbound creates a session in the Responder (Bob) role for a freshly
// received SessionRequest. The remote identity and intro key are unknown
// until later messages supply them.
func NewInbound(remote *net.UDPAddr, now time.Time) *Session {
	return &Session{
		state:      Unknown,
		role:       RoleResponder,
		remoteEndpoint: remote,
		createdAt:  now,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Role() Role {
	return s.role
}

func (s *Session) RemoteEndpoint() *net.UDPAddr {
	return s.remoteEndpoint
}

func (s *Session) RemoteIdentity() router.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteIdentity
}

func (s *Session) RelayTag() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relayTag
}

// SetViaIntroducer records whether this session reached Established through
// an introducer detour, for metrics/logging parity only. It never touches
// state: the Introduced state itself is entered and left explicitly via
// EnterIntroduced and ReceiveFromIntroducer.
func (s *Session) SetViaIntroducer(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viaIntroducer = v
}

func (s *Session) ViaIntroducer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viaIntroducer
}

func (s *Session) PeerTestRole() PeerTestRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerTestRole
}

func (s *Session) SetPeerTestRole(r PeerTestRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerTestRole = r
}

// RecordActivity rearms the termination timer, per spec.md §4.C "Rearmed on
// every received packet", and accounts received bytes.
func (s *Session) RecordActivity(now time.Time, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesReceived += uint64(n)
	s.terminationDeadline = now.Add(TerminationTimeout)
	s.keepAliveDeadline = now.Add(TerminationTimeout / 2)
}

func (s *Session) RecordSent(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesSent += uint64(n)
}

// NeedsKeepAlive reports whether the idle period since the last send/receive
// activity has reached termination_timeout/2 (spec.md §4.C "Keep-alive").
func (s *Session) NeedsKeepAlive(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Established && !now.Before(s.keepAliveDeadline)
}

func (s *Session) MarkKeepAliveSent(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepAliveDeadline = now.Add(TerminationTimeout / 2)
}

// ConnectTimedOut reports whether the connect timer has fired while the
// session is still short of Established, and if so transitions to Failed
// (spec.md §4.C "Timers", §8 scenario 5).
func (s *Session) ConnectTimedOut(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Established || s.state == Failed || s.state == Closed {
		return false
	}
	if s.connectDeadline.IsZero() || now.Before(s.connectDeadline) {
		return false
	}
	s.state = Failed
	s.clearKeyMaterialLocked()
	return true
}

// TerminationTimedOut reports whether the idle termination timer has fired
// on an Established session, and if so transitions to Closed.
func (s *Session) TerminationTimedOut(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Established {
		return false
	}
	if s.terminationDeadline.IsZero() || now.Before(s.terminationDeadline) {
		return false
	}
	s.state = Closed
	s.clearKeyMaterialLocked()
	return true
}

// Fail forces a transition to Failed, used for signature/MAC failures during
// the handshake (spec.md §7 classes 2 and 3).
func (s *Session) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked()
}

func (s *Session) failLocked() {
	if s.state == Established || s.state == Closed {
		return
	}
	s.state = Failed
	s.clearKeyMaterialLocked()
}

// Close transitions an Established session to Closed, e.g. after sending
// SessionDestroyed (spec.md §4.C, §5 "Cancellation").
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Closed
	s.clearKeyMaterialLocked()
}

func (s *Session) clearKeyMaterialLocked() {
	s.dh = router.DHKeyPair{}
	s.haveDH = false
	s.establishedKeys = envelope.Keys{}
}
