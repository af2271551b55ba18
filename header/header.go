// Package header implements the 37-byte SSU common header shared by all nine
// payload types (spec.md §4.A). Header fields beyond MAC/IV live in the
// AES-CBC-encrypted region, so parsing/serialization is split: the MAC and
// IV are always cleartext on the wire; everything else in this package
// operates on a buffer whose post-MAC region has already been decrypted (on
// read) or is about to be encrypted (on write) by the envelope package.
package header

import (
	"encoding/binary"

	"github.com/samber/oops"
)

// Size is the fixed byte length of MAC(16) + IV(16) + flag(1) + time(4).
const Size = 37

// RekeyDataSize is the length of the optional keying-material block that
// follows the header when the rekey flag is set. No component in the
// reference implementation ever produces one; the parser keeps support so
// unexpected peers don't desync our stream, per spec.md §9.
const RekeyDataSize = 64

// MaxExtendedOptionsSize bounds the 1-byte length-prefixed extended options
// block to what a single byte can declare.
const MaxExtendedOptionsSize = 255

// PayloadType identifies one of the nine SSU payload variants, carried in
// the high nibble of the header's flag byte.
type PayloadType uint8

const (
	TypeSessionRequest PayloadType = iota
	TypeSessionCreated
	TypeSessionConfirmed
	TypeRelayRequest
	TypeRelayResponse
	TypeRelayIntro
	TypeData
	TypePeerTest
	TypeSessionDestroyed
)

func (t PayloadType) String() string {
	switch t {
	case TypeSessionRequest:
		return "SessionRequest"
	case TypeSessionCreated:
		return "SessionCreated"
	case TypeSessionConfirmed:
		return "SessionConfirmed"
	case TypeRelayRequest:
		return "RelayRequest"
	case TypeRelayResponse:
		return "RelayResponse"
	case TypeRelayIntro:
		return "RelayIntro"
	case TypeData:
		return "Data"
	case TypePeerTest:
		return "PeerTest"
	case TypeSessionDestroyed:
		return "SessionDestroyed"
	default:
		return "Unknown"
	}
}

// flag bit layout, spec.md §4.A.
const (
	flagRekeyBit    = 1 << 3
	flagExtOptsBit  = 1 << 2
	flagTypeShift   = 4
	flagTypeMask    = 0x0f
	flagReservedBit = 1 << 1 | 1 // low two bits unused: ParseCleartext ignores them, Flag writes them as 0
)

// Header is the parsed form of the common SSU header.
type Header struct {
	MAC  [16]byte
	IV   [16]byte
	Type PayloadType
	Time uint32 // seconds since the Unix epoch

	Rekey     bool
	RekeyData [RekeyDataSize]byte

	ExtendedOptionsPresent bool
	ExtendedOptions        []byte
}

// Flag computes the single flag byte for this header.
func (h Header) Flag() byte {
	b := byte(h.Type&flagTypeMask) << flagTypeShift
	if h.Rekey {
		b |= flagRekeyBit
	}
	if h.ExtendedOptionsPresent {
		b |= flagExtOptsBit
	}
	return b
}

// ParseCleartext reads a Header from buf, where buf[0:16] is the MAC,
// buf[16:32] is the IV (both always cleartext on the wire), and buf[32:] is
// assumed to already be plaintext (decrypted by the envelope package before
// this call for inbound packets, or about to be encrypted after this call
// for outbound ones). It returns the parsed Header and the offset into buf
// at which the payload body begins.
func ParseCleartext(buf []byte) (Header, int, error) {
	if len(buf) < Size {
		return Header{}, 0, oops.
			Code("framing_error").
			In("header").
			With("length", len(buf)).
			Errorf("datagram shorter than minimum header size %d", Size)
	}

	var h Header
	copy(h.MAC[:], buf[0:16])
	copy(h.IV[:], buf[16:32])

	flag := buf[32]
	h.Type = PayloadType(flag>>flagTypeShift) & flagTypeMask
	h.Rekey = flag&flagRekeyBit != 0
	h.ExtendedOptionsPresent = flag&flagExtOptsBit != 0
	h.Time = binary.BigEndian.Uint32(buf[33:37])

	offset := 37
	if h.Rekey {
		if len(buf) < offset+RekeyDataSize {
			return Header{}, 0, oops.
				Code("framing_error").
				In("header").
				Errorf("rekey flag set but only %d bytes remain", len(buf)-offset)
		}
		copy(h.RekeyData[:], buf[offset:offset+RekeyDataSize])
		offset += RekeyDataSize
	}

	if h.ExtendedOptionsPresent {
		if len(buf) < offset+1 {
			return Header{}, 0, oops.
				Code("framing_error").
				In("header").
				Errorf("extended options flag set but length byte missing")
		}
		n := int(buf[offset])
		offset++
		if len(buf) < offset+n {
			return Header{}, 0, oops.
				Code("framing_error").
				In("header").
				With("declared", n).
				With("remaining", len(buf)-offset).
				Errorf("extended options length exceeds remaining buffer")
		}
		h.ExtendedOptions = append([]byte(nil), buf[offset:offset+n]...)
		offset += n
	}

	return h, offset, nil
}

// WriteCleartext appends the flag byte, time, and optional rekey/extended
// options fields to dst. The caller is responsible for reserving and later
// filling buf[0:32] (MAC||IV) via the envelope package; WriteCleartext never
// touches those bytes.
func WriteCleartext(dst []byte, h Header) ([]byte, error) {
	if h.ExtendedOptionsPresent && len(h.ExtendedOptions) > MaxExtendedOptionsSize {
		return nil, oops.
			Code("invariant_violation").
			In("header").
			With("length", len(h.ExtendedOptions)).
			Errorf("extended options exceed %d bytes", MaxExtendedOptionsSize)
	}

	dst = append(dst, h.Flag())
	var timeBuf [4]byte
	binary.BigEndian.PutUint32(timeBuf[:], h.Time)
	dst = append(dst, timeBuf[:]...)

	if h.Rekey {
		dst = append(dst, h.RekeyData[:]...)
	}

	if h.ExtendedOptionsPresent {
		dst = append(dst, byte(len(h.ExtendedOptions)))
		dst = append(dst, h.ExtendedOptions...)
	}

	return dst, nil
}
