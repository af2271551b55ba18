package router

import (
	"github.com/go-i2p/common/router_identity"
	"github.com/samber/oops"
)

// Hash is a router identity hash, SHA-256 of the router's KeysAndCert block.
type Hash [32]byte

// String renders the hash the way log fields expect it: hex, truncated in
// the common case since callers mostly want a stable but short correlation
// id, not the full 64 hex digits.
func (h Hash) String() string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 0; i < 8; i++ {
		buf[i*2] = hexDigits[h[i]>>4]
		buf[i*2+1] = hexDigits[h[i]&0x0f]
	}
	return string(buf)
}

// Identity is an opaque, already-parsed router identity. Sessions hold
// identities by shared reference: the same identity may simultaneously be
// cached by the net database, so Identity implementations must be safe for
// concurrent read access.
type Identity interface {
	// IdentHash is the 32-byte SHA-256 hash identifying the router.
	IdentHash() Hash

	// SignatureSize returns the length in bytes of signatures produced by
	// this identity's signing key, 32..128 depending on crypto type.
	SignatureSize() int

	// Verify checks sig against data using the identity's public signing key.
	Verify(data, sig []byte) bool

	// Bytes returns the identity's wire encoding, as embedded verbatim in a
	// SessionConfirmed payload's identity field (spec.md §4.A).
	Bytes() []byte
}

// CommonIdentity adapts a github.com/go-i2p/common router identity to the
// Identity interface used throughout the SSU core. It is the default, real
// implementation; tests use lightweight fakes instead (see FakeIdentity in
// fakeidentity.go).
type CommonIdentity struct {
	inner *router_identity.RouterIdentity
}

// NewCommonIdentity wraps a parsed go-i2p/common router identity.
func NewCommonIdentity(inner *router_identity.RouterIdentity) (*CommonIdentity, error) {
	if inner == nil {
		return nil, oops.
			Code("invariant_violation").
			In("router").
			Errorf("nil router identity")
	}
	return &CommonIdentity{inner: inner}, nil
}

func (c *CommonIdentity) IdentHash() Hash {
	var h Hash
	copy(h[:], c.inner.Hash())
	return h
}

func (c *CommonIdentity) SignatureSize() int {
	return c.inner.SigningPublicKey().Len()
}

func (c *CommonIdentity) Verify(data, sig []byte) bool {
	verifier, err := c.inner.Verifier()
	if err != nil {
		return false
	}
	if err := verifier.VerifySignature(data, sig); err != nil {
		return false
	}
	return true
}

func (c *CommonIdentity) Bytes() []byte {
	return c.inner.Bytes()
}
