package peertest

import (
	"encoding/binary"
	"io"

	"github.com/samber/oops"
)

// drawAttempts bounds how many times DrawNonce re-draws on an unlucky zero
// before giving up; with 2^32 possible values the retry is a formality.
const drawAttempts = 16

// DrawNonce reads a random 32-bit peer-test nonce from rnd, re-drawing if it
// lands on 0 since 0 is reserved (spec.md §4.F, §8 boundary behavior "Peer-
// test nonce 0 must never be used").
func DrawNonce(rnd io.Reader) (uint32, error) {
	var buf [4]byte
	for attempt := 0; attempt < drawAttempts; attempt++ {
		if _, err := io.ReadFull(rnd, buf[:]); err != nil {
			return 0, oops.Code("invariant_violation").In("peertest").Wrap(err)
		}
		if n := binary.BigEndian.Uint32(buf[:]); n != 0 {
			return n, nil
		}
	}
	return 0, oops.
		Code("invariant_violation").
		In("peertest").
		Errorf("failed to draw a non-zero nonce after %d attempts", drawAttempts)
}
