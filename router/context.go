package router

import (
	"net"
	"strconv"
)

// SSUAddress is the SSU address record a router publishes in its RouterInfo:
// the host/port applications should dial, plus the long-lived intro key used
// before a session key exists (spec.md §3 "intro_key").
type SSUAddress struct {
	Host     net.IP
	Port     uint16
	IntroKey [32]byte
}

// Context exposes the read-only accessors the SSU core needs from the
// enclosing router process: our own identity and signing key, our published
// SSU address, and a sink for reporting our externally observed address back
// for republication (spec.md §6 "Router context").
type Context interface {
	// LocalIdentity is our own router identity.
	LocalIdentity() Identity

	// Sign produces a signature over data using our signing private key.
	Sign(data []byte) ([]byte, error)

	// LocalSSUAddress is our own published SSU address record.
	LocalSSUAddress() SSUAddress

	// UpdateAddress records our externally observed address, as learned from
	// a peer during SessionCreated handling (spec.md §4.C step 2), for
	// eventual RouterInfo republication. Implementations must be safe to
	// call concurrently; spec.md §5 requires "a single atomic write".
	UpdateAddress(ip net.IP, port uint16)
}

// LocalAddr renders an SSUAddress as a "host:port" string for logging.
func (a SSUAddress) LocalAddr() string {
	return net.JoinHostPort(a.Host.String(), strconv.Itoa(int(a.Port)))
}
