package packet

import (
	"encoding/binary"

	"github.com/go-i2p/go-ssu/header"
	"github.com/samber/oops"
)

// SessionCreated is payload type 1: Bob's DH public value, the Alice address
// he observed, the relay tag he offers, his signed-on time, and his
// encrypted signature over the handshake tuple (spec.md §4.C).
type SessionCreated struct {
	DHY                 [DHPublicSize]byte
	AliceIP             []byte
	AlicePort           uint16
	RelayTag            uint32
	SignedOnTime        uint32
	EncryptedSignature  []byte
}

func (SessionCreated) Type() header.PayloadType { return header.TypeSessionCreated }

func decodeSessionCreated(buf []byte, sigSize int) (SessionCreated, error) {
	if sigSize <= 0 {
		return SessionCreated{}, oops.
			Code("invariant_violation").
			In("packet").
			Errorf("SessionCreated decode requires Bob's signature size")
	}
	if len(buf) < DHPublicSize {
		return SessionCreated{}, oops.Code("framing_error").In("packet").Errorf("SessionCreated truncated before DH Y")
	}
	var sc SessionCreated
	copy(sc.DHY[:], buf[:DHPublicSize])
	offset := DHPublicSize

	ip, n, err := readIP(buf[offset:], false)
	if err != nil {
		return SessionCreated{}, err
	}
	sc.AliceIP = ip
	offset += n

	if len(buf) < offset+2+4+4+sigSize {
		return SessionCreated{}, oops.
			Code("framing_error").
			In("packet").
			Errorf("SessionCreated truncated before fixed trailer")
	}
	sc.AlicePort = binary.BigEndian.Uint16(buf[offset : offset+2])
	offset += 2
	sc.RelayTag = binary.BigEndian.Uint32(buf[offset : offset+4])
	offset += 4
	sc.SignedOnTime = binary.BigEndian.Uint32(buf[offset : offset+4])
	offset += 4
	sc.EncryptedSignature = append([]byte(nil), buf[offset:offset+sigSize]...)
	return sc, nil
}

func encodeSessionCreated(dst []byte, sc SessionCreated) ([]byte, error) {
	if len(sc.AliceIP) != 4 && len(sc.AliceIP) != 16 {
		return nil, oops.
			Code("invariant_violation").
			In("packet").
			Errorf("SessionCreated Alice IP must be 4 or 16 bytes")
	}
	dst = append(dst, sc.DHY[:]...)
	dst = writeIP(dst, sc.AliceIP)

	var trailer [10]byte
	binary.BigEndian.PutUint16(trailer[0:2], sc.AlicePort)
	binary.BigEndian.PutUint32(trailer[2:6], sc.RelayTag)
	binary.BigEndian.PutUint32(trailer[6:10], sc.SignedOnTime)
	dst = append(dst, trailer[:]...)
	dst = append(dst, sc.EncryptedSignature...)
	return dst, nil
}

// SignedTuple reconstructs the byte range Bob signs and Alice verifies for
// SessionCreated, per spec.md §4.C step 2: X || Y || alice_ip || alice_port
// || bob_ip || bob_port || relay_tag || signed_on_time.
func SignedTuple(x, y [DHPublicSize]byte, aliceIP []byte, alicePort uint16, bobIP []byte, bobPort uint16, relayTag, signedOnTime uint32) []byte {
	buf := make([]byte, 0, DHPublicSize*2+len(aliceIP)+len(bobIP)+2+2+4+4)
	buf = append(buf, x[:]...)
	buf = append(buf, y[:]...)
	buf = append(buf, aliceIP...)
	buf = appendUint16(buf, alicePort)
	buf = append(buf, bobIP...)
	buf = appendUint16(buf, bobPort)
	buf = appendUint32(buf, relayTag)
	buf = appendUint32(buf, signedOnTime)
	return buf
}

func appendUint16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

func appendUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}
