package router

import (
	"github.com/go-i2p/common/router_identity"
	"github.com/samber/oops"
)

// IdentityParser turns the raw identity bytes embedded in a SessionConfirmed
// payload into an Identity the session can verify signatures against.
// Bob never holds Alice's identity before the handshake: it arrives for the
// first time inside her SessionConfirmed (spec.md §4.C.2).
type IdentityParser interface {
	Parse(raw []byte) (Identity, error)
}

// DefaultIdentityParser decodes go-i2p/common router identities.
type DefaultIdentityParser struct{}

func (DefaultIdentityParser) Parse(raw []byte) (Identity, error) {
	inner, _, err := router_identity.ReadRouterIdentity(raw)
	if err != nil {
		return nil, oops.
			Code("framing_error").
			In("router").
			Wrap(err)
	}
	return NewCommonIdentity(&inner)
}
