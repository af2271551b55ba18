package packet

import (
	"encoding/binary"

	"github.com/go-i2p/go-ssu/header"
	"github.com/samber/oops"
)

// PeerTest is payload type 7, exchanged between Alice/Bob/Charlie during
// reachability testing (spec.md §4.F). IP is nil with zero length when a
// participant hasn't yet learned (or doesn't need to disclose) an address.
type PeerTest struct {
	Nonce    uint32
	IP       []byte // 0, 4, or 16 bytes
	Port     uint16
	IntroKey [IntroKeySize]byte
}

func (PeerTest) Type() header.PayloadType { return header.TypePeerTest }

func decodePeerTest(buf []byte) (PeerTest, error) {
	if len(buf) < 4 {
		return PeerTest{}, oops.Code("framing_error").In("packet").Errorf("PeerTest truncated before nonce")
	}
	var pt PeerTest
	pt.Nonce = binary.BigEndian.Uint32(buf[0:4])
	offset := 4

	ip, n, err := readIP(buf[offset:], true)
	if err != nil {
		return PeerTest{}, err
	}
	pt.IP = ip
	offset += n

	if len(buf) < offset+2+IntroKeySize {
		return PeerTest{}, oops.Code("framing_error").In("packet").Errorf("PeerTest truncated before intro key")
	}
	pt.Port = binary.BigEndian.Uint16(buf[offset : offset+2])
	offset += 2
	copy(pt.IntroKey[:], buf[offset:offset+IntroKeySize])
	return pt, nil
}

func encodePeerTest(dst []byte, pt PeerTest) ([]byte, error) {
	dst = appendUint32(dst, pt.Nonce)
	dst = writeIP(dst, pt.IP)
	dst = appendUint16(dst, pt.Port)
	dst = append(dst, pt.IntroKey[:]...)
	return dst, nil
}
