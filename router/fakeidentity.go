package router

import "bytes"

// FakeIdentity is a minimal Identity used by the session and transport tests
// that need a stand-in router identity without pulling in a real
// go-i2p/common parsed certificate. Verify succeeds iff sig equals the
// configured ValidSig, or, if ValidSig is nil, iff len(sig) equals
// SignatureSize() (64 unless SigSize is set) — good enough to exercise both
// the accept and reject paths of the handshake state machine.
type FakeIdentity struct {
	Hash     Hash
	SigSize  int
	ValidSig []byte
	RawBytes []byte
}

func (f FakeIdentity) IdentHash() Hash { return f.Hash }

func (f FakeIdentity) SignatureSize() int {
	if f.SigSize == 0 {
		return 64
	}
	return f.SigSize
}

func (f FakeIdentity) Verify(data, sig []byte) bool {
	if f.ValidSig != nil {
		return bytes.Equal(sig, f.ValidSig)
	}
	return len(sig) == f.SignatureSize()
}

func (f FakeIdentity) Bytes() []byte {
	if f.RawBytes != nil {
		return f.RawBytes
	}
	return append([]byte{}, f.Hash[:]...)
}
