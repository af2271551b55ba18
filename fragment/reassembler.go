package fragment

import (
	"time"

	"github.com/go-i2p/go-ssu/packet"
)

// OpenMessageTimeout is how long a partially received message is kept
// before being discarded unfinished (spec.md §4.D "Expire entries after
// 30 s").
const OpenMessageTimeout = 30 * time.Second

// openMessage is one in-progress reassembly, keyed by msg_id.
type openMessage struct {
	expectedLast  uint8
	haveExpected  bool
	fragments     map[uint8][]byte
	firstSeenTime time.Time
}

func (m *openMessage) complete() bool {
	if !m.haveExpected {
		return false
	}
	for i := uint8(0); ; i++ {
		if _, ok := m.fragments[i]; !ok {
			return false
		}
		if i == m.expectedLast {
			return true
		}
	}
}

func (m *openMessage) assemble() []byte {
	var out []byte
	for i := uint8(0); ; i++ {
		out = append(out, m.fragments[i]...)
		if i == m.expectedLast {
			break
		}
	}
	return out
}

// Reassembler holds the open_messages table for a single remote endpoint
// (spec.md §4.D). It is not safe for concurrent use; the owning session's
// executor serializes calls.
type Reassembler struct {
	open  map[uint32]*openMessage
	dedup *dedupWindow
}

// NewReassembler creates an empty reassembler for one remote endpoint.
func NewReassembler() *Reassembler {
	return &Reassembler{
		open:  make(map[uint32]*openMessage),
		dedup: newDedupWindow(),
	}
}

// Ingest records one incoming fragment. If it completes its message, the
// reassembled payload is returned with delivered=true and the entry is
// dropped from the open-message table. A fragment belonging to an already
// fully-delivered message (recognized via the dedup window) is accepted as
// a harmless duplicate and reports delivered=false with a nil payload.
func (r *Reassembler) Ingest(f packet.Fragment, now time.Time) (payload []byte, delivered bool) {
	if r.dedup.Contains(f.MsgID) {
		return nil, false
	}

	m, ok := r.open[f.MsgID]
	if !ok {
		m = &openMessage{fragments: make(map[uint8][]byte), firstSeenTime: now}
		r.open[f.MsgID] = m
	}
	if f.IsLast {
		m.expectedLast = f.FragmentNum
		m.haveExpected = true
	}
	if _, exists := m.fragments[f.FragmentNum]; !exists {
		m.fragments[f.FragmentNum] = f.Payload
	}

	if !m.complete() {
		return nil, false
	}

	msg := m.assemble()
	delete(r.open, f.MsgID)
	r.dedup.Add(f.MsgID)
	return msg, true
}

// ExpireStale drops any open message whose first fragment arrived more than
// OpenMessageTimeout ago, returning the dropped message IDs for counters.
func (r *Reassembler) ExpireStale(now time.Time) []uint32 {
	var expired []uint32
	for id, m := range r.open {
		if now.Sub(m.firstSeenTime) >= OpenMessageTimeout {
			expired = append(expired, id)
			delete(r.open, id)
		}
	}
	return expired
}

// OpenCount reports how many messages are currently mid-reassembly, for
// tests and diagnostics.
func (r *Reassembler) OpenCount() int {
	return len(r.open)
}

// MaxNackBits caps how many fragment slots a single NACK bitfield chain can
// describe (spec.md §4.D "each bitfield chain capped at ~256 NACK bits").
const MaxNackBits = 256

// GapMessageIDs returns the msg_ids of currently open (incomplete)
// messages, in no particular order, for building the NACK half of a
// QuickAck.
func (r *Reassembler) GapMessageIDs() []uint32 {
	ids := make([]uint32, 0, len(r.open))
	for id := range r.open {
		ids = append(ids, id)
	}
	return ids
}

// GapBitfield builds the NACK bitfield chain for one open message: bit i of
// the chain (0-indexed, 7 data bits per byte, high bit is the "more
// bitfields follow" marker) is set when fragment i has not yet arrived.
// The chain covers fragments 0..upper, where upper is the known
// expected_last or, if that hasn't arrived yet, the highest fragment number
// seen so far, clamped to MaxNackBits.
func (r *Reassembler) GapBitfield(msgID uint32) ([]byte, bool) {
	m, ok := r.open[msgID]
	if !ok {
		return nil, false
	}

	upper := uint16(0)
	if m.haveExpected {
		upper = uint16(m.expectedLast)
	} else {
		for frag := range m.fragments {
			if uint16(frag) > upper {
				upper = uint16(frag)
			}
		}
	}
	if upper >= MaxNackBits {
		upper = MaxNackBits - 1
	}

	n := int(upper) + 1
	numBytes := (n + 6) / 7
	chain := make([]byte, numBytes)
	for i := 0; i < n; i++ {
		if _, have := m.fragments[uint8(i)]; have {
			continue
		}
		byteIdx := i / 7
		bitIdx := uint(i % 7)
		chain[byteIdx] |= 1 << bitIdx
	}
	for i := 0; i < numBytes-1; i++ {
		chain[i] |= 0x80
	}
	return chain, true
}
