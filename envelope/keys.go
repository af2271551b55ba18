package envelope

import (
	"crypto/sha256"

	"github.com/go-i2p/go-ssu/router"
	"github.com/samber/oops"
)

// KeySize is the byte length of both the AES session key and the MAC key.
const KeySize = 32

// Keys holds one session's AES-256-CBC key and HMAC-MD5 key. The full
// 32-byte MAC key is always used even though MD5's block size is 64: the
// standard HMAC construction pads internally and implementations must not
// truncate, per spec.md §4.B.
type Keys struct {
	AES [KeySize]byte
	MAC [KeySize]byte
}

// DeriveFromSharedSecret post-processes a raw 256-byte Oakley Group 2 shared
// secret into a session's AES and MAC keys, per spec.md §4.B. The three
// branches and their byte ranges are specified using half-open (Python-style)
// slicing: s[a..b] denotes b-a bytes starting at index a, consistent with
// case 2's "session_key = s[0..32]" yielding exactly 32 bytes.
func DeriveFromSharedSecret(s [router.DHKeyPairSize]byte) (Keys, error) {
	switch {
	case s[0]&0x80 != 0:
		// High bit set: session_key = 0x00 || s[0:31] (32 bytes total),
		// mac_key = s[31:63] (32 bytes).
		var keys Keys
		keys.AES[0] = 0x00
		copy(keys.AES[1:], s[0:31])
		copy(keys.MAC[:], s[31:63])
		return keys, nil

	case s[0] != 0:
		// session_key = s[0:32], mac_key = s[32:64].
		var keys Keys
		copy(keys.AES[:], s[0:32])
		copy(keys.MAC[:], s[32:64])
		return keys, nil

	default:
		skip := 0
		for skip < len(s) && s[skip] == 0 {
			skip++
		}
		if skip > 32 {
			return Keys{}, oops.
				Code("invariant_violation").
				In("envelope").
				With("leading_zeros", skip).
				Errorf("DH agreement malformed: more than 32 leading zero bytes")
		}
		if skip+32 > len(s) {
			return Keys{}, oops.
				Code("invariant_violation").
				In("envelope").
				With("leading_zeros", skip).
				Errorf("DH agreement malformed: insufficient bytes after leading zeros")
		}

		var keys Keys
		copy(keys.AES[:], s[skip:skip+32])

		// mac_key is SHA-256 over s[skip:64], the 64-skip bytes starting at
		// the same offset as the session key above, not the bytes following
		// it (original_source/src/core/router/transports/ssu/session.cc:
		// "CalculateDigest(mac_key, non_zero, 64 - (non_zero - data))").
		remainderEnd := 64
		if remainderEnd > len(s) {
			remainderEnd = len(s)
		}
		sum := sha256.Sum256(s[skip:remainderEnd])
		copy(keys.MAC[:], sum[:])
		return keys, nil
	}
}
