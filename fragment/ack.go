package fragment

import (
	"time"

	"github.com/go-i2p/go-ssu/packet"
)

// QuickAckDelay is the scheduling delay for a batched ACK/NACK Data packet
// after the first fragment of a burst arrives (spec.md §4.D, §6).
const QuickAckDelay = 200 * time.Millisecond

// MaxExplicitAcks and MaxAckBitfieldEntries bound a single QuickAck Data
// payload (spec.md §4.D).
const (
	MaxExplicitAcks       = 255
	MaxAckBitfieldEntries = 255
)

// AckScheduler batches completed and gappy message IDs into a single
// QuickAck Data packet, arming a one-shot 200 ms timer on the first
// fragment of a burst and staying armed until Flush is called.
type AckScheduler struct {
	armed   bool
	dueAt   time.Time
	acks    []uint32
	ackSeen map[uint32]struct{}
}

// NewAckScheduler creates an empty, unarmed scheduler.
func NewAckScheduler() *AckScheduler {
	return &AckScheduler{ackSeen: make(map[uint32]struct{})}
}

// NoteFragmentReceived arms the QuickAck timer if one is not already
// pending, returning the deadline it should fire at. Calling it again
// before Flush has no effect on an already-armed deadline.
func (s *AckScheduler) NoteFragmentReceived(now time.Time) time.Time {
	if !s.armed {
		s.armed = true
		s.dueAt = now.Add(QuickAckDelay)
	}
	return s.dueAt
}

// Armed reports whether a QuickAck timer is currently pending.
func (s *AckScheduler) Armed() bool {
	return s.armed
}

// Due reports whether the armed timer has reached its deadline.
func (s *AckScheduler) Due(now time.Time) bool {
	return s.armed && !now.Before(s.dueAt)
}

// RecordComplete queues an explicit ACK for a fully reassembled message,
// subject to MaxExplicitAcks; once full, further completions are simply not
// re-announced until the next QuickAck cycle, since the peer will resend
// and eventually get acknowledged.
func (s *AckScheduler) RecordComplete(msgID uint32) {
	if _, ok := s.ackSeen[msgID]; ok {
		return
	}
	if len(s.acks) >= MaxExplicitAcks {
		return
	}
	s.acks = append(s.acks, msgID)
	s.ackSeen[msgID] = struct{}{}
}

// Flush builds the QuickAck Data payload from everything recorded since the
// last flush (explicit ACKs plus NACK bitfields for the reassembler's
// currently open messages) and resets the scheduler to unarmed.
func (s *AckScheduler) Flush(r *Reassembler) packet.Data {
	var d packet.Data
	d.ExplicitAcks = s.acks

	gapIDs := r.GapMessageIDs()
	if len(gapIDs) > MaxAckBitfieldEntries {
		gapIDs = gapIDs[:MaxAckBitfieldEntries]
	}
	for _, id := range gapIDs {
		if chain, ok := r.GapBitfield(id); ok {
			d.AckBitfields = append(d.AckBitfields, packet.AckBlock{MsgID: id, Bitfields: chain})
		}
	}

	s.armed = false
	s.acks = nil
	s.ackSeen = make(map[uint32]struct{})
	return d
}
