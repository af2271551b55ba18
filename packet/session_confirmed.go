package packet

import (
	"encoding/binary"

	"github.com/go-i2p/go-ssu/header"
	"github.com/samber/oops"
)

// SingleFragment is the only value spec.md §4.A defines for SessionConfirmed's
// fragment-info byte; multi-fragment SessionConfirmed is not specified.
const SingleFragment = 0x01

// SessionConfirmed is payload type 2: Alice's identity, her signed-on time,
// and her signature over the same tuple Bob signed in SessionCreated.
type SessionConfirmed struct {
	FragmentInfo  byte
	IdentityBytes []byte
	SignedOnTime  uint32
	Signature     []byte
}

func (SessionConfirmed) Type() header.PayloadType { return header.TypeSessionConfirmed }

func decodeSessionConfirmed(buf []byte, baseOffset int, sigSize int) (SessionConfirmed, error) {
	if sigSize <= 0 {
		return SessionConfirmed{}, oops.
			Code("invariant_violation").
			In("packet").
			Errorf("SessionConfirmed decode requires Alice's signature size")
	}
	if len(buf) < 1+2 {
		return SessionConfirmed{}, oops.Code("framing_error").In("packet").Errorf("SessionConfirmed truncated before identity length")
	}

	var sc SessionConfirmed
	sc.FragmentInfo = buf[0]
	if sc.FragmentInfo != SingleFragment {
		return SessionConfirmed{}, oops.
			Code("framing_error").
			In("packet").
			With("fragment_info", sc.FragmentInfo).
			Errorf("unsupported SessionConfirmed fragment info")
	}
	identLen := int(binary.BigEndian.Uint16(buf[1:3]))
	offset := 3
	if len(buf) < offset+identLen+4 {
		return SessionConfirmed{}, oops.
			Code("framing_error").
			In("packet").
			With("identity_length", identLen).
			Errorf("SessionConfirmed truncated before signed_on_time")
	}
	sc.IdentityBytes = append([]byte(nil), buf[offset:offset+identLen]...)
	offset += identLen

	sc.SignedOnTime = binary.BigEndian.Uint32(buf[offset : offset+4])
	offset += 4

	sigStart := alignTo16(baseOffset + offset)
	padLen := sigStart - (baseOffset + offset)
	if len(buf) < offset+padLen+sigSize {
		return SessionConfirmed{}, oops.
			Code("framing_error").
			In("packet").
			Errorf("SessionConfirmed truncated before signature")
	}
	offset += padLen
	sc.Signature = append([]byte(nil), buf[offset:offset+sigSize]...)
	return sc, nil
}

func encodeSessionConfirmed(dst []byte, sc SessionConfirmed) ([]byte, error) {
	dst = append(dst, sc.FragmentInfo)
	dst = appendUint16(dst, uint16(len(sc.IdentityBytes)))
	dst = append(dst, sc.IdentityBytes...)
	dst = appendUint32(dst, sc.SignedOnTime)

	sigStart := alignTo16(len(dst))
	for len(dst) < sigStart {
		dst = append(dst, 0)
	}
	dst = append(dst, sc.Signature...)
	return dst, nil
}

// PeekSessionConfirmedIdentity extracts just the identity bytes from a
// SessionConfirmed body, without requiring the caller to already know
// Alice's signature size. The transport uses this to parse her identity
// and learn her signing scheme before calling Decode with the right
// DecodeOptions.AliceSignatureSize.
func PeekSessionConfirmedIdentity(buf []byte) ([]byte, error) {
	if len(buf) < 1+2 {
		return nil, oops.Code("framing_error").In("packet").Errorf("SessionConfirmed truncated before identity length")
	}
	if buf[0] != SingleFragment {
		return nil, oops.
			Code("framing_error").
			In("packet").
			With("fragment_info", buf[0]).
			Errorf("unsupported SessionConfirmed fragment info")
	}
	identLen := int(binary.BigEndian.Uint16(buf[1:3]))
	if len(buf) < 3+identLen {
		return nil, oops.
			Code("framing_error").
			In("packet").
			With("identity_length", identLen).
			Errorf("SessionConfirmed truncated before end of identity")
	}
	return append([]byte(nil), buf[3:3+identLen]...), nil
}

func alignTo16(n int) int {
	rem := n % 16
	if rem == 0 {
		return n
	}
	return n + (16 - rem)
}
