package packet

import (
	"net"

	"github.com/samber/oops"
)

// readIP parses a 1-byte size prefix (expected to be 0, 4, or 16 depending
// on allowZero) followed by that many address bytes.
func readIP(buf []byte, allowZero bool) (net.IP, int, error) {
	if len(buf) < 1 {
		return nil, 0, oops.Code("framing_error").In("packet").Errorf("missing IP size byte")
	}
	size := int(buf[0])
	switch size {
	case 0:
		if !allowZero {
			return nil, 0, oops.Code("framing_error").In("packet").Errorf("zero-length IP not permitted here")
		}
		return nil, 1, nil
	case 4, 16:
	default:
		return nil, 0, oops.
			Code("framing_error").
			In("packet").
			With("size", size).
			Errorf("invalid IP size, expected 4 or 16")
	}
	if len(buf) < 1+size {
		return nil, 0, oops.
			Code("framing_error").
			In("packet").
			Errorf("declared IP length %d exceeds remaining buffer", size)
	}
	ip := append(net.IP(nil), buf[1:1+size]...)
	return ip, 1 + size, nil
}

// readFixedIP is like readIP but requires exactly wantSize bytes (used by
// RelayResponse's Charlie field and RelayIntro, which spec.md pins to IPv4).
func readFixedIP(buf []byte, wantSize int) (net.IP, int, error) {
	if len(buf) < 1 {
		return nil, 0, oops.Code("framing_error").In("packet").Errorf("missing IP size byte")
	}
	size := int(buf[0])
	if size != wantSize {
		return nil, 0, oops.
			Code("framing_error").
			In("packet").
			With("size", size).
			With("want", wantSize).
			Errorf("unexpected IP size")
	}
	if len(buf) < 1+size {
		return nil, 0, oops.Code("framing_error").In("packet").Errorf("declared IP length exceeds remaining buffer")
	}
	ip := append(net.IP(nil), buf[1:1+size]...)
	return ip, 1 + size, nil
}

func writeIP(dst []byte, ip net.IP) []byte {
	if ip == nil {
		return append(dst, 0)
	}
	dst = append(dst, byte(len(ip)))
	return append(dst, ip...)
}
