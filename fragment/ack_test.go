package fragment

import (
	"testing"
	"time"

	"github.com/go-i2p/go-ssu/packet"
)

func TestAckSchedulerArmsOnceAndFiresAtDelay(t *testing.T) {
	s := NewAckScheduler()
	now := time.Unix(2000, 0)

	due := s.NoteFragmentReceived(now)
	if !due.Equal(now.Add(QuickAckDelay)) {
		t.Fatalf("expected deadline %v, got %v", now.Add(QuickAckDelay), due)
	}
	if s.Due(now) {
		t.Fatalf("must not be due immediately")
	}
	if s.Due(now.Add(QuickAckDelay - time.Millisecond)) {
		t.Fatalf("must not be due before the delay elapses")
	}
	if !s.Due(now.Add(QuickAckDelay)) {
		t.Fatalf("must be due once the delay elapses")
	}

	// A second fragment arriving before flush must not push the deadline out.
	again := s.NoteFragmentReceived(now.Add(100 * time.Millisecond))
	if !again.Equal(due) {
		t.Fatalf("re-arming an already-armed scheduler must keep the original deadline")
	}
}

func TestAckSchedulerFlushIncludesExplicitAndGapAcks(t *testing.T) {
	s := NewAckScheduler()
	r := NewReassembler()
	now := time.Unix(2000, 0)

	r.Ingest(packet.Fragment{MsgID: 1, FragmentNum: 0, IsLast: true, Size: 1, Payload: []byte{1}}, now)
	s.RecordComplete(1)

	r.Ingest(packet.Fragment{MsgID: 2, FragmentNum: 0, IsLast: false, Size: 1, Payload: []byte{2}}, now)

	d := s.Flush(r)
	if len(d.ExplicitAcks) != 1 || d.ExplicitAcks[0] != 1 {
		t.Fatalf("expected explicit ack for msg 1, got %v", d.ExplicitAcks)
	}
	if len(d.AckBitfields) != 1 || d.AckBitfields[0].MsgID != 2 {
		t.Fatalf("expected a gap bitfield entry for msg 2, got %v", d.AckBitfields)
	}
	if s.Armed() {
		t.Fatalf("scheduler must be unarmed after flush")
	}

	empty := s.Flush(r)
	if len(empty.ExplicitAcks) != 0 {
		t.Fatalf("flush must clear previously recorded explicit acks")
	}
}

func TestAckSchedulerCapsExplicitAcks(t *testing.T) {
	s := NewAckScheduler()
	for i := uint32(0); i < MaxExplicitAcks+10; i++ {
		s.RecordComplete(i)
	}
	d := s.Flush(NewReassembler())
	if len(d.ExplicitAcks) != MaxExplicitAcks {
		t.Fatalf("expected explicit acks capped at %d, got %d", MaxExplicitAcks, len(d.ExplicitAcks))
	}
}
