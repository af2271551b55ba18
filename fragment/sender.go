package fragment

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"

	"github.com/go-i2p/go-ssu/header"
	"github.com/go-i2p/go-ssu/packet"
	"github.com/samber/oops"
)

// StreamingMTU is the path MTU the send path budgets fragments against
// (spec.md §6 "IPv4 MTU 1484 ... packet max = MTU - UDP/IP headers", §4.D
// "streaming MTU"): 1484 - 20 (IPv4) - 8 (UDP) = 1456.
const StreamingMTU = 1456

// fragmentWireOverhead is the per-fragment wire cost inside a Data payload:
// a 4-byte msg_id plus the 3-byte packed fragment_info (packet.encodeData).
const fragmentWireOverhead = 4 + 3

// envelopeOverhead is a conservative accounting of everything else that
// shares the datagram with fragment payload bytes: the 37-byte cleartext
// header (header.Size), the Data flags byte, and the fragment-count byte.
const envelopeOverhead = header.Size + 2

// MaxFragmentPayload is the largest payload a single fragment may carry
// while keeping the whole datagram within StreamingMTU before IP
// fragmentation (spec.md §4.D "split ... into fragments of streaming MTU -
// header overhead bytes").
const MaxFragmentPayload = StreamingMTU - envelopeOverhead - fragmentWireOverhead

// MinDeflateThreshold is the payload size at or below which the send path
// uses the minimum deflate level instead of the default (spec.md §4.D "if
// it is <= 66 bytes the minimum deflate level is used").
const MinDeflateThreshold = 66

// Proto values for the I2NP framing's trailing protocol byte (spec.md §4.D
// framing layout).
const (
	ProtoStreaming = 1
)

// deflate compresses payload as a zlib stream, using the minimum
// compression level for small payloads per spec.md §4.D.
func deflate(payload []byte) ([]byte, error) {
	level := zlib.DefaultCompression
	if len(payload) <= MinDeflateThreshold {
		level = zlib.BestSpeed
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, oops.Code("invariant_violation").In("fragment").Wrap(err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, oops.Code("invariant_violation").In("fragment").Wrap(err)
	}
	if err := w.Close(); err != nil {
		return nil, oops.Code("invariant_violation").In("fragment").Wrap(err)
	}
	return buf.Bytes(), nil
}

// frameI2NP wraps a compressed I2NP payload in the send-path framing:
// length(4) || compressed_payload || source_port(2) || dest_port(2) ||
// proto(1) (spec.md §4.D).
func frameI2NP(compressed []byte, sourcePort, destPort uint16, proto uint8) []byte {
	frame := make([]byte, 4+len(compressed)+2+2+1)
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(compressed)))
	copy(frame[4:], compressed)
	tail := 4 + len(compressed)
	binary.BigEndian.PutUint16(frame[tail:tail+2], sourcePort)
	binary.BigEndian.PutUint16(frame[tail+2:tail+4], destPort)
	frame[tail+4] = proto
	return frame
}

// BuildFragments compresses an I2NP message, wraps it in the send-path
// framing, and splits the result into Data-payload fragments sharing one
// msg_id (spec.md §4.D "Send path"). msgID should be a freshly assigned,
// non-zero value from the caller's message ID source.
func BuildFragments(msg []byte, sourcePort, destPort uint16, proto uint8, msgID uint32) ([]packet.Fragment, error) {
	compressed, err := deflate(msg)
	if err != nil {
		return nil, err
	}
	frame := frameI2NP(compressed, sourcePort, destPort, proto)

	if len(frame) == 0 {
		return []packet.Fragment{{MsgID: msgID, FragmentNum: 0, IsLast: true, Size: 0}}, nil
	}

	var fragments []packet.Fragment
	for offset, fragNum := 0, 0; offset < len(frame); fragNum++ {
		if fragNum > packet.MaxFragmentNumber {
			return nil, oops.
				Code("invariant_violation").
				In("fragment").
				With("fragment_num", fragNum).
				Errorf("message requires more than %d fragments", packet.MaxFragmentNumber+1)
		}
		end := offset + MaxFragmentPayload
		if end > len(frame) {
			end = len(frame)
		}
		chunk := frame[offset:end]
		fragments = append(fragments, packet.Fragment{
			MsgID:       msgID,
			FragmentNum: uint8(fragNum),
			IsLast:      end == len(frame),
			Size:        uint16(len(chunk)),
			Payload:     chunk,
		})
		offset = end
	}
	return fragments, nil
}
