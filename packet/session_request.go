package packet

import (
	"github.com/go-i2p/go-ssu/header"
	"github.com/samber/oops"
)

// DHPublicSize is the byte length of an Oakley Group 2 DH public value (X or
// Y) as carried on the wire.
const DHPublicSize = 256

// SessionRequest is payload type 0: Alice's DH public value plus the Bob
// address she believes she is dialing.
type SessionRequest struct {
	DHX   [DHPublicSize]byte
	BobIP []byte // 4 or 16 bytes
}

func (SessionRequest) Type() header.PayloadType { return header.TypeSessionRequest }

func decodeSessionRequest(buf []byte) (SessionRequest, error) {
	if len(buf) < DHPublicSize {
		return SessionRequest{}, oops.
			Code("framing_error").
			In("packet").
			Errorf("SessionRequest truncated before DH X")
	}
	var req SessionRequest
	copy(req.DHX[:], buf[:DHPublicSize])

	ip, _, err := readIP(buf[DHPublicSize:], false)
	if err != nil {
		return SessionRequest{}, err
	}
	req.BobIP = ip
	return req, nil
}

func encodeSessionRequest(dst []byte, r SessionRequest) ([]byte, error) {
	if len(r.BobIP) != 4 && len(r.BobIP) != 16 {
		return nil, oops.
			Code("invariant_violation").
			In("packet").
			With("length", len(r.BobIP)).
			Errorf("SessionRequest Bob IP must be 4 or 16 bytes")
	}
	dst = append(dst, r.DHX[:]...)
	dst = writeIP(dst, r.BobIP)
	return dst, nil
}
