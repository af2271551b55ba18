package packet

import (
	"github.com/go-i2p/go-ssu/header"
	"github.com/samber/oops"
)

// Body is implemented by every payload variant. SignatureSize is supplied by
// the caller at decode time for the two variants (SessionCreated,
// SessionConfirmed) whose trailing signature length depends on a router
// identity's signing scheme (32..128 bytes), not on anything in the wire
// encoding itself.
type Body interface {
	Type() header.PayloadType
}

// Packet pairs a common Header with its typed body.
type Packet struct {
	Header header.Header
	Body   Body
}

// DecodeOptions carries the out-of-band information the decoder needs for
// payload types whose layout isn't fully self-describing.
type DecodeOptions struct {
	// BobSignatureSize / AliceSignatureSize are the signature lengths of
	// the respective identity's signing scheme, required to decode
	// SessionCreated and SessionConfirmed respectively.
	BobSignatureSize   int
	AliceSignatureSize int
}

// Decode parses a cleartext datagram (buf[0:32] is MAC||IV, buf[32:] is the
// decrypted header tail and body) into a Packet.
func Decode(buf []byte, opts DecodeOptions) (Packet, error) {
	h, offset, err := header.ParseCleartext(buf)
	if err != nil {
		return Packet{}, err
	}
	body, err := decodeBody(h.Type, buf[offset:], offset, opts)
	if err != nil {
		return Packet{}, err
	}
	return Packet{Header: h, Body: body}, nil
}

func decodeBody(t header.PayloadType, buf []byte, baseOffset int, opts DecodeOptions) (Body, error) {
	switch t {
	case header.TypeSessionRequest:
		return decodeSessionRequest(buf)
	case header.TypeSessionCreated:
		return decodeSessionCreated(buf, opts.BobSignatureSize)
	case header.TypeSessionConfirmed:
		return decodeSessionConfirmed(buf, baseOffset, opts.AliceSignatureSize)
	case header.TypeRelayRequest:
		return decodeRelayRequest(buf)
	case header.TypeRelayResponse:
		return decodeRelayResponse(buf)
	case header.TypeRelayIntro:
		return decodeRelayIntro(buf)
	case header.TypeData:
		return decodeData(buf)
	case header.TypePeerTest:
		return decodePeerTest(buf)
	case header.TypeSessionDestroyed:
		return SessionDestroyed{}, nil
	default:
		return nil, oops.
			Code("framing_error").
			In("packet").
			With("type", int(t)).
			Errorf("unknown payload type")
	}
}

// Encode appends the header tail and body to dst (which must already carry
// the 32-byte MAC||IV placeholder prefix, see envelope.Seal) and returns the
// extended slice, ready for envelope padding and sealing.
func Encode(dst []byte, p Packet) ([]byte, error) {
	p.Header.Type = p.Body.Type()
	dst, err := header.WriteCleartext(dst, p.Header)
	if err != nil {
		return nil, err
	}
	return encodeBody(dst, p.Body)
}

func encodeBody(dst []byte, body Body) ([]byte, error) {
	switch b := body.(type) {
	case SessionRequest:
		return encodeSessionRequest(dst, b)
	case SessionCreated:
		return encodeSessionCreated(dst, b)
	case SessionConfirmed:
		return encodeSessionConfirmed(dst, b)
	case RelayRequest:
		return encodeRelayRequest(dst, b)
	case RelayResponse:
		return encodeRelayResponse(dst, b)
	case RelayIntro:
		return encodeRelayIntro(dst, b)
	case Data:
		return encodeData(dst, b)
	case PeerTest:
		return encodePeerTest(dst, b)
	case SessionDestroyed:
		return dst, nil
	default:
		return nil, oops.
			Code("invariant_violation").
			In("packet").
			Errorf("unknown body type %T", body)
	}
}
