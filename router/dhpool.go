package router

import (
	"context"

	cryptorand "github.com/go-i2p/crypto/rand"
	"github.com/samber/oops"
)

// DHKeyPairSize is the byte length of both the private exponent and the
// public value in an Oakley Group 2 (2048-bit MODP) ephemeral pair, as used
// throughout the SSU handshake (DH X / DH Y fields).
const DHKeyPairSize = 256

// DHKeyPair is one ephemeral Diffie-Hellman pair: a private exponent and its
// corresponding public value, both 256 bytes, big-endian.
type DHKeyPair struct {
	Private [DHKeyPairSize]byte
	Public  [DHKeyPairSize]byte
}

// DHPool returns fresh ephemeral DH pairs on demand and computes the raw
// shared secret from a local private exponent and the peer's public value.
// The SSU core never generates DH material itself; it only consumes this
// interface, matching spec.md §6 and §3 ("An ephemeral DH key pair, retained
// only until the handshake completes"). A pool implementation is expected to
// precompute pairs so Take rarely blocks on the handshake hot path.
type DHPool interface {
	// Take returns one fresh ephemeral pair, or an error if the pool is
	// exhausted and cannot synthesize one before ctx is done.
	Take(ctx context.Context) (DHKeyPair, error)

	// Agree computes the raw (unprocessed) 256-byte shared secret s from a
	// local private exponent and the peer's public value. Key derivation
	// from s (the §4.B post-processing rule) is SSU-specific and lives in
	// the envelope package, not here.
	Agree(private, peerPublic [DHKeyPairSize]byte) ([DHKeyPairSize]byte, error)
}

// oakleyGroup2Prime is the 2048-bit MODP Group 2 prime from RFC 2409 §6.2,
// used by DefaultDHPool for both key generation and agreement.
var oakleyGroup2Prime = mustParseHexBig(
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA" +
		"63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C2" +
		"45E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F2" +
		"4117C4B1FE649286651ECE65381FFFFFFFFFFFFFFFF")

// DefaultDHPool is a minimal, unbuffered DHPool backed by Oakley Group 2 and
// github.com/go-i2p/crypto's random source. Real router deployments are
// expected to supply a precomputing pool; DefaultDHPool exists so the SSU
// core is runnable stand-alone and so tests exercise the real math.
type DefaultDHPool struct{}

// Take generates one fresh ephemeral pair by sampling a 256-byte private
// exponent and computing the corresponding public value.
func (DefaultDHPool) Take(ctx context.Context) (DHKeyPair, error) {
	select {
	case <-ctx.Done():
		return DHKeyPair{}, ctx.Err()
	default:
	}

	var pair DHKeyPair
	if _, err := cryptorand.Read(pair.Private[:]); err != nil {
		return DHKeyPair{}, oops.
			Code("invariant_violation").
			In("router").
			Wrap(err)
	}

	x := bytesToBig(pair.Private[:])
	bigX := modExp(bigG, x, oakleyGroup2Prime)
	bigToFixedBytes(bigX, pair.Public[:])
	return pair, nil
}

// Agree computes s = peerPublic^private mod p.
func (DefaultDHPool) Agree(private, peerPublic [DHKeyPairSize]byte) ([DHKeyPairSize]byte, error) {
	x := bytesToBig(private[:])
	y := bytesToBig(peerPublic[:])
	s := modExp(y, x, oakleyGroup2Prime)

	var out [DHKeyPairSize]byte
	bigToFixedBytes(s, out[:])
	return out, nil
}
