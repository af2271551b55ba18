package packet

import (
	"encoding/binary"

	"github.com/go-i2p/go-ssu/header"
	"github.com/samber/oops"
)

// IntroKeySize is the byte length of an I2P router's long-lived SSU intro
// key, published in its address record.
const IntroKeySize = 32

// RelayRequest is payload type 3: the message Alice sends Bob (an introducer
// she holds a relay tag for) to have him relay a RelayIntro to Charlie.
type RelayRequest struct {
	RelayTag      uint32
	AliceIP       []byte
	AlicePort     uint16
	Challenge     []byte
	AliceIntroKey [IntroKeySize]byte
	Nonce         uint32
}

func (RelayRequest) Type() header.PayloadType { return header.TypeRelayRequest }

func decodeRelayRequest(buf []byte) (RelayRequest, error) {
	if len(buf) < 4 {
		return RelayRequest{}, oops.Code("framing_error").In("packet").Errorf("RelayRequest truncated before relay tag")
	}
	var rr RelayRequest
	rr.RelayTag = binary.BigEndian.Uint32(buf[0:4])
	offset := 4

	ip, n, err := readIP(buf[offset:], false)
	if err != nil {
		return RelayRequest{}, err
	}
	rr.AliceIP = ip
	offset += n

	if len(buf) < offset+2+1 {
		return RelayRequest{}, oops.Code("framing_error").In("packet").Errorf("RelayRequest truncated before challenge")
	}
	rr.AlicePort = binary.BigEndian.Uint16(buf[offset : offset+2])
	offset += 2

	challengeLen := int(buf[offset])
	offset++
	if len(buf) < offset+challengeLen+IntroKeySize+4 {
		return RelayRequest{}, oops.Code("framing_error").In("packet").Errorf("RelayRequest truncated after challenge size")
	}
	rr.Challenge = append([]byte(nil), buf[offset:offset+challengeLen]...)
	offset += challengeLen

	copy(rr.AliceIntroKey[:], buf[offset:offset+IntroKeySize])
	offset += IntroKeySize

	rr.Nonce = binary.BigEndian.Uint32(buf[offset : offset+4])
	return rr, nil
}

func encodeRelayRequest(dst []byte, rr RelayRequest) ([]byte, error) {
	dst = appendUint32(dst, rr.RelayTag)
	dst = writeIP(dst, rr.AliceIP)
	dst = appendUint16(dst, rr.AlicePort)
	dst = append(dst, byte(len(rr.Challenge)))
	dst = append(dst, rr.Challenge...)
	dst = append(dst, rr.AliceIntroKey[:]...)
	dst = appendUint32(dst, rr.Nonce)
	return dst, nil
}

// RelayResponse is payload type 4: Bob telling Alice where Charlie is, so
// she can dial him directly.
type RelayResponse struct {
	CharlieIP   []byte // always 4 bytes
	CharliePort uint16
	AliceIP     []byte // 4 or 16 bytes
	AlicePort   uint16
	Nonce       uint32
}

func (RelayResponse) Type() header.PayloadType { return header.TypeRelayResponse }

func decodeRelayResponse(buf []byte) (RelayResponse, error) {
	ip, n, err := readFixedIP(buf, 4)
	if err != nil {
		return RelayResponse{}, err
	}
	var rr RelayResponse
	rr.CharlieIP = ip
	offset := n

	if len(buf) < offset+2 {
		return RelayResponse{}, oops.Code("framing_error").In("packet").Errorf("RelayResponse truncated before Charlie port")
	}
	rr.CharliePort = binary.BigEndian.Uint16(buf[offset : offset+2])
	offset += 2

	aliceIP, n2, err := readIP(buf[offset:], false)
	if err != nil {
		return RelayResponse{}, err
	}
	rr.AliceIP = aliceIP
	offset += n2

	if len(buf) < offset+2+4 {
		return RelayResponse{}, oops.Code("framing_error").In("packet").Errorf("RelayResponse truncated before nonce")
	}
	rr.AlicePort = binary.BigEndian.Uint16(buf[offset : offset+2])
	offset += 2
	rr.Nonce = binary.BigEndian.Uint32(buf[offset : offset+4])
	return rr, nil
}

func encodeRelayResponse(dst []byte, rr RelayResponse) ([]byte, error) {
	if len(rr.CharlieIP) != 4 {
		return nil, oops.Code("invariant_violation").In("packet").Errorf("RelayResponse Charlie IP must be 4 bytes")
	}
	dst = writeIP(dst, rr.CharlieIP)
	dst = appendUint16(dst, rr.CharliePort)
	dst = writeIP(dst, rr.AliceIP)
	dst = appendUint16(dst, rr.AlicePort)
	dst = appendUint32(dst, rr.Nonce)
	return dst, nil
}

// RelayIntro is payload type 5: Bob telling Charlie to expect Alice, so
// Charlie can hole-punch her claimed endpoint.
type RelayIntro struct {
	AliceIP   []byte // always 4 bytes
	AlicePort uint16
	Challenge []byte
}

func (RelayIntro) Type() header.PayloadType { return header.TypeRelayIntro }

func decodeRelayIntro(buf []byte) (RelayIntro, error) {
	ip, n, err := readFixedIP(buf, 4)
	if err != nil {
		return RelayIntro{}, err
	}
	var ri RelayIntro
	ri.AliceIP = ip
	offset := n

	if len(buf) < offset+2+1 {
		return RelayIntro{}, oops.Code("framing_error").In("packet").Errorf("RelayIntro truncated before challenge")
	}
	ri.AlicePort = binary.BigEndian.Uint16(buf[offset : offset+2])
	offset += 2

	challengeLen := int(buf[offset])
	offset++
	if len(buf) < offset+challengeLen {
		return RelayIntro{}, oops.Code("framing_error").In("packet").Errorf("RelayIntro declared challenge exceeds buffer")
	}
	ri.Challenge = append([]byte(nil), buf[offset:offset+challengeLen]...)
	return ri, nil
}

func encodeRelayIntro(dst []byte, ri RelayIntro) ([]byte, error) {
	if len(ri.AliceIP) != 4 {
		return nil, oops.Code("invariant_violation").In("packet").Errorf("RelayIntro Alice IP must be 4 bytes")
	}
	dst = writeIP(dst, ri.AliceIP)
	dst = appendUint16(dst, ri.AlicePort)
	dst = append(dst, byte(len(ri.Challenge)))
	dst = append(dst, ri.Challenge...)
	return dst, nil
}
