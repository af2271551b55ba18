package peertest

import (
	"net"
	"sync"
	"time"

	"github.com/go-i2p/go-ssu/packet"
	"github.com/go-i2p/go-ssu/session"
	"github.com/samber/oops"
)

// NonceExpiry is how long a peer-test table entry survives regardless of
// how far the round progressed (spec.md §4.F "Nonces expire 30 s after
// creation regardless of state").
const NonceExpiry = 30 * time.Second

// AliceProgressTimeout is how long Alice waits for forward progress before
// concluding she is firewalled (spec.md §4.F "Timer 5 s without progress").
const AliceProgressTimeout = 5 * time.Second

// BobFanoutCap bounds how many concurrent Alice-initiated rounds one
// session may ask Bob to assist with at once (SPEC_FULL.md supplemented
// feature 4, grounded in the original's single per-session peer-test
// field).
const BobFanoutCap = 1

// Outbound is one PeerTest packet the coordinator wants sent, and the
// endpoint to send it to. If UseIntroKeyOf is non-nil, the transport has no
// session with Endpoint yet and must seal the datagram under that router's
// published intro key directly (spec.md §4.B key-selection table row 4,
// generalized to PeerTest sends toward sessionless endpoints).
type Outbound struct {
	Endpoint      *net.UDPAddr
	Packet        packet.PeerTest
	UseIntroKeyOf *[32]byte
}

type entry struct {
	role          session.PeerTestRole
	aliceEndpoint *net.UDPAddr
	aliceIntroKey [32]byte
	bobEndpoint   *net.UDPAddr
	createdAt     time.Time
	lastProgress  time.Time
}

// Coordinator holds the peer-test table (spec.md §3 "Peer-test table").
// Every method takes the Coordinator's own mutex, so it is safe for
// concurrent use.
type Coordinator struct {
	mu            sync.Mutex
	entries       map[uint32]*entry
	bobAssistFor  map[string]int // keyed by the remote session endpoint Bob is helping
}

// NewCoordinator creates an empty peer-test table.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		entries:      make(map[uint32]*entry),
		bobAssistFor: make(map[string]int),
	}
}

// StartAlice begins a round as the tester: records nonce -> Alice1 and
// returns the PeerTest to send to Bob (spec.md §4.F "Alice (tester)").
func (c *Coordinator) StartAlice(nonce uint32, bobEndpoint *net.UDPAddr, ourIntroKey [32]byte, now time.Time) (packet.PeerTest, error) {
	if nonce == 0 {
		return packet.PeerTest{}, oops.Code("invariant_violation").In("peertest").Errorf("nonce 0 is reserved")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[nonce] = &entry{
		role:         session.PeerTestAlice1,
		bobEndpoint:  bobEndpoint,
		createdAt:    now,
		lastProgress: now,
	}
	return packet.PeerTest{Nonce: nonce, IP: nil, Port: 0, IntroKey: ourIntroKey}, nil
}

// AliceReceiveFromBob handles Bob's echo carrying Charlie's address,
// transitions to Alice2, and returns the direct PeerTest to send Charlie
// (spec.md §4.F "A PeerTest from Bob carrying Charlie's address").
func (c *Coordinator) AliceReceiveFromBob(nonce uint32, charlie packet.PeerTest, charlieEndpoint *net.UDPAddr, ourIntroKey [32]byte, now time.Time) (Outbound, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[nonce]
	if !ok || e.role != session.PeerTestAlice1 {
		return Outbound{}, false, nil
	}
	e.role = session.PeerTestAlice2
	e.lastProgress = now

	return Outbound{
		Endpoint:      charlieEndpoint,
		Packet:        packet.PeerTest{Nonce: nonce, IP: nil, Port: 0, IntroKey: ourIntroKey},
		UseIntroKeyOf: &charlie.IntroKey,
	}, true, nil
}

// AliceReceiveFromCharlie completes the loop: any PeerTest arriving from a
// fresh endpoint while in Alice2 confirms full reachability (spec.md §4.F
// "A PeerTest from Charlie -> confirms the full loop"). The nonce is
// removed only when its entry is in Alice2 and true is returned; otherwise
// the table is left unchanged.
func (c *Coordinator) AliceReceiveFromCharlie(nonce uint32) (ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, exists := c.entries[nonce]
	if !exists || e.role != session.PeerTestAlice2 {
		return false
	}
	delete(c.entries, nonce)
	return true
}

// HandleBobStart processes a PeerTest that looks like Alice kicking off a
// round: ip/port both zero, arriving over an established session with no
// existing table entry for its nonce. charlie and charlieEndpoint are
// chosen by the caller (spec.md §4.F "selects a random established peer as
// Charlie"); aliceSessionKey identifies the session for fan-out capping.
func (c *Coordinator) HandleBobStart(
	nonce uint32,
	aliceEndpoint *net.UDPAddr,
	aliceIntroKey [32]byte,
	aliceSessionKey string,
	charlieEndpoint *net.UDPAddr,
	charlieIntroKey [32]byte,
	now time.Time,
) ([]Outbound, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[nonce]; exists {
		return nil, oops.Code("invariant_violation").In("peertest").With("nonce", nonce).Errorf("nonce already in use")
	}
	if c.bobAssistFor[aliceSessionKey] >= BobFanoutCap {
		return nil, nil
	}

	c.entries[nonce] = &entry{
		role:          session.PeerTestBob,
		aliceEndpoint: aliceEndpoint,
		aliceIntroKey: aliceIntroKey,
		createdAt:     now,
		lastProgress:  now,
	}
	c.bobAssistFor[aliceSessionKey]++

	toCharlie := Outbound{
		Endpoint: charlieEndpoint,
		Packet:   packet.PeerTest{Nonce: nonce, IP: aliceEndpoint.IP, Port: uint16(aliceEndpoint.Port), IntroKey: aliceIntroKey},
	}
	toAlice := Outbound{
		Endpoint: aliceEndpoint,
		Packet:   packet.PeerTest{Nonce: nonce, IP: charlieEndpoint.IP, Port: uint16(charlieEndpoint.Port), IntroKey: charlieIntroKey},
	}
	return []Outbound{toCharlie, toAlice}, nil
}

// HandleCharlieFromBob processes Bob's forwarded PeerTest naming Alice's
// claimed endpoint: Charlie records the Charlie role, echoes Bob, and
// contacts Alice directly (spec.md §4.F "Charlie").
func (c *Coordinator) HandleCharlieFromBob(nonce uint32, bobEndpoint *net.UDPAddr, aliceEndpoint *net.UDPAddr, aliceIntroKey [32]byte, ourIntroKey [32]byte, now time.Time) []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[nonce] = &entry{
		role:          session.PeerTestCharlie,
		aliceEndpoint: aliceEndpoint,
		aliceIntroKey: aliceIntroKey,
		bobEndpoint:   bobEndpoint,
		createdAt:     now,
		lastProgress:  now,
	}

	echoToBob := Outbound{
		Endpoint: bobEndpoint,
		Packet:   packet.PeerTest{Nonce: nonce, IP: nil, Port: 0, IntroKey: ourIntroKey},
	}
	toAlice := Outbound{
		Endpoint:      aliceEndpoint,
		Packet:        packet.PeerTest{Nonce: nonce, IP: nil, Port: 0, IntroKey: ourIntroKey},
		UseIntroKeyOf: &aliceIntroKey,
	}
	return []Outbound{echoToBob, toAlice}
}

// HandleCharlieFromAlice recognizes Alice's direct reply and removes the
// nonce (spec.md §4.F "Upon seeing Alice's reply he removes the nonce").
func (c *Coordinator) HandleCharlieFromAlice(nonce uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[nonce]
	if !ok || e.role != session.PeerTestCharlie {
		return false
	}
	delete(c.entries, nonce)
	return true
}

// RoleOf reports the current role for a nonce, if any.
func (c *Coordinator) RoleOf(nonce uint32) (session.PeerTestRole, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[nonce]
	if !ok {
		return session.PeerTestNone, false
	}
	return e.role, true
}

// ExpireStale drops entries older than NonceExpiry and releases any Bob
// fan-out slot they held, returning the expired nonces for counters.
func (c *Coordinator) ExpireStale(now time.Time, aliceSessionKeyOf func(nonce uint32) string) []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []uint32
	for nonce, e := range c.entries {
		if now.Sub(e.createdAt) < NonceExpiry {
			continue
		}
		expired = append(expired, nonce)
		if e.role == session.PeerTestBob {
			key := aliceSessionKeyOf(nonce)
			if c.bobAssistFor[key] > 0 {
				c.bobAssistFor[key]--
			}
		}
		delete(c.entries, nonce)
	}
	return expired
}

// AliceTimedOut reports whether an Alice-role entry has gone
// AliceProgressTimeout without advancing, meaning the router should be
// marked Firewalled (spec.md §4.F "Timer 5 s without progress").
func (c *Coordinator) AliceTimedOut(nonce uint32, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[nonce]
	if !ok || (e.role != session.PeerTestAlice1 && e.role != session.PeerTestAlice2) {
		return false
	}
	return now.Sub(e.lastProgress) >= AliceProgressTimeout
}
