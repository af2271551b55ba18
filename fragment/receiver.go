package fragment

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/samber/oops"
)

// Frame is a parsed and decompressed send-path I2NP frame (spec.md §4.D
// framing layout), ready to hand to router.I2NPSink.Deliver after the
// caller learns the identity the source session belongs to.
type Frame struct {
	I2NP       []byte
	SourcePort uint16
	DestPort   uint16
	Proto      uint8
}

// ParseFrame undoes frameI2NP and inflates the compressed payload, given a
// fully reassembled message from Reassembler.Ingest.
func ParseFrame(wire []byte) (Frame, error) {
	if len(wire) < 4 {
		return Frame{}, oops.Code("framing_error").In("fragment").Errorf("I2NP frame missing length prefix")
	}
	n := binary.BigEndian.Uint32(wire[0:4])
	if uint64(len(wire)) < uint64(4)+uint64(n)+5 {
		return Frame{}, oops.
			Code("framing_error").
			In("fragment").
			With("declared_len", n).
			With("remaining", len(wire)-4).
			Errorf("I2NP frame truncated before declared length plus ports/proto")
	}
	compressed := wire[4 : 4+n]
	tail := 4 + n

	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return Frame{}, oops.Code("framing_error").In("fragment").Wrap(err)
	}
	defer r.Close()
	payload, err := io.ReadAll(r)
	if err != nil {
		return Frame{}, oops.Code("framing_error").In("fragment").Wrap(err)
	}

	return Frame{
		I2NP:       payload,
		SourcePort: binary.BigEndian.Uint16(wire[tail : tail+2]),
		DestPort:   binary.BigEndian.Uint16(wire[tail+2 : tail+4]),
		Proto:      wire[tail+4],
	}, nil
}
