package packet

import (
	"encoding/binary"

	"github.com/go-i2p/go-ssu/header"
	"github.com/samber/oops"
)

// Data flag bits, spec.md §4.D.
const (
	DataFlagExplicitAcks = 0x80
	DataFlagAckBitfields = 0x40
	DataFlagExtendedData = 0x02
)

// MaxFragmentSize is the largest size a single fragment may declare
// (14 bits), spec.md §3 "Fragment" and §8 boundary behavior.
const MaxFragmentSize = 16383

// MaxFragmentNumber is the largest fragment index (7 bits).
const MaxFragmentNumber = 127

// AckBlock is one (msg_id, NACK bitfield chain) pair from the ACK bitfield
// section of a Data payload. Each byte in Bitfields carries 7 NACK bits plus
// a high "more bitfields follow" continuation bit, per spec.md §4.D; this
// package preserves the raw chain, fragment-package consumers interpret it.
type AckBlock struct {
	MsgID     uint32
	Bitfields []byte
}

// Fragment is one fragment entry at the tail of a Data payload.
type Fragment struct {
	MsgID       uint32
	FragmentNum uint8 // 0..127
	IsLast      bool
	Size        uint16 // 0..16383
	Payload     []byte
}

// Data is payload type 6: explicit ACKs, NACK bitfields, optional extended
// data, and zero or more message fragments.
type Data struct {
	ExplicitAcks []uint32
	AckBitfields []AckBlock
	ExtendedData []byte
	Fragments    []Fragment
}

func (Data) Type() header.PayloadType { return header.TypeData }

func decodeData(buf []byte) (Data, error) {
	if len(buf) < 1 {
		return Data{}, oops.Code("framing_error").In("packet").Errorf("Data payload missing flags byte")
	}
	flags := buf[0]
	offset := 1
	var d Data

	if flags&DataFlagExplicitAcks != 0 {
		if len(buf) < offset+1 {
			return Data{}, oops.Code("framing_error").In("packet").Errorf("Data truncated before explicit ACK count")
		}
		n := int(buf[offset])
		offset++
		if len(buf) < offset+4*n {
			return Data{}, oops.Code("framing_error").In("packet").Errorf("Data truncated inside explicit ACK list")
		}
		d.ExplicitAcks = make([]uint32, n)
		for i := 0; i < n; i++ {
			d.ExplicitAcks[i] = binary.BigEndian.Uint32(buf[offset : offset+4])
			offset += 4
		}
	}

	if flags&DataFlagAckBitfields != 0 {
		if len(buf) < offset+1 {
			return Data{}, oops.Code("framing_error").In("packet").Errorf("Data truncated before ACK bitfield count")
		}
		m := int(buf[offset])
		offset++
		d.AckBitfields = make([]AckBlock, m)
		for i := 0; i < m; i++ {
			if len(buf) < offset+4 {
				return Data{}, oops.Code("framing_error").In("packet").Errorf("Data truncated inside ACK bitfield msg id")
			}
			msgID := binary.BigEndian.Uint32(buf[offset : offset+4])
			offset += 4

			start := offset
			for {
				if len(buf) < offset+1 {
					return Data{}, oops.Code("framing_error").In("packet").Errorf("Data truncated inside NACK bitfield chain")
				}
				b := buf[offset]
				offset++
				if b&0x80 == 0 {
					break
				}
			}
			d.AckBitfields[i] = AckBlock{MsgID: msgID, Bitfields: append([]byte(nil), buf[start:offset]...)}
		}
	}

	if flags&DataFlagExtendedData != 0 {
		if len(buf) < offset+1 {
			return Data{}, oops.Code("framing_error").In("packet").Errorf("Data truncated before extended data length")
		}
		n := int(buf[offset])
		offset++
		if len(buf) < offset+n {
			return Data{}, oops.Code("framing_error").In("packet").Errorf("Data truncated inside extended data")
		}
		d.ExtendedData = append([]byte(nil), buf[offset:offset+n]...)
		offset += n
	}

	if len(buf) < offset+1 {
		return Data{}, oops.Code("framing_error").In("packet").Errorf("Data truncated before fragment count")
	}
	numFragments := int(buf[offset])
	offset++

	d.Fragments = make([]Fragment, numFragments)
	for i := 0; i < numFragments; i++ {
		if len(buf) < offset+4+3 {
			return Data{}, oops.Code("framing_error").In("packet").Errorf("Data truncated inside fragment header")
		}
		msgID := binary.BigEndian.Uint32(buf[offset : offset+4])
		offset += 4

		info := uint32(buf[offset])<<16 | uint32(buf[offset+1])<<8 | uint32(buf[offset+2])
		offset += 3

		size := int(info & 0x3fff)
		isLast := info&(1<<16) != 0
		fragNum := uint8((info >> 17) & 0x7f)

		if size > MaxFragmentSize {
			return Data{}, oops.
				Code("framing_error").
				In("packet").
				With("size", size).
				Errorf("fragment size exceeds %d", MaxFragmentSize)
		}
		if len(buf) < offset+size {
			return Data{}, oops.
				Code("framing_error").
				In("packet").
				With("size", size).
				With("remaining", len(buf)-offset).
				Errorf("declared fragment size exceeds remaining datagram")
		}

		d.Fragments[i] = Fragment{
			MsgID:       msgID,
			FragmentNum: fragNum,
			IsLast:      isLast,
			Size:        uint16(size),
			Payload:     append([]byte(nil), buf[offset:offset+size]...),
		}
		offset += size
	}

	return d, nil
}

func encodeData(dst []byte, d Data) ([]byte, error) {
	var flags byte
	if len(d.ExplicitAcks) > 0 {
		flags |= DataFlagExplicitAcks
	}
	if len(d.AckBitfields) > 0 {
		flags |= DataFlagAckBitfields
	}
	if len(d.ExtendedData) > 0 {
		flags |= DataFlagExtendedData
	}
	dst = append(dst, flags)

	if len(d.ExplicitAcks) > 0 {
		if len(d.ExplicitAcks) > 255 {
			return nil, oops.Code("invariant_violation").In("packet").Errorf("more than 255 explicit ACKs")
		}
		dst = append(dst, byte(len(d.ExplicitAcks)))
		for _, id := range d.ExplicitAcks {
			dst = appendUint32(dst, id)
		}
	}

	if len(d.AckBitfields) > 0 {
		if len(d.AckBitfields) > 255 {
			return nil, oops.Code("invariant_violation").In("packet").Errorf("more than 255 ACK bitfield entries")
		}
		dst = append(dst, byte(len(d.AckBitfields)))
		for _, block := range d.AckBitfields {
			dst = appendUint32(dst, block.MsgID)
			dst = append(dst, block.Bitfields...)
		}
	}

	if len(d.ExtendedData) > 0 {
		if len(d.ExtendedData) > 255 {
			return nil, oops.Code("invariant_violation").In("packet").Errorf("extended data exceeds 255 bytes")
		}
		dst = append(dst, byte(len(d.ExtendedData)))
		dst = append(dst, d.ExtendedData...)
	}

	if len(d.Fragments) > 255 {
		return nil, oops.Code("invariant_violation").In("packet").Errorf("more than 255 fragments in one Data payload")
	}
	dst = append(dst, byte(len(d.Fragments)))
	for _, f := range d.Fragments {
		if f.Size > MaxFragmentSize || int(f.Size) != len(f.Payload) {
			return nil, oops.
				Code("invariant_violation").
				In("packet").
				Errorf("fragment size field does not match payload length")
		}
		if f.FragmentNum > MaxFragmentNumber {
			return nil, oops.Code("invariant_violation").In("packet").Errorf("fragment number exceeds %d", MaxFragmentNumber)
		}
		dst = appendUint32(dst, f.MsgID)

		info := uint32(f.Size) & 0x3fff
		if f.IsLast {
			info |= 1 << 16
		}
		info |= uint32(f.FragmentNum) << 17

		dst = append(dst, byte(info>>16), byte(info>>8), byte(info))
		dst = append(dst, f.Payload...)
	}

	return dst, nil
}
