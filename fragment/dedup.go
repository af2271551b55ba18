package fragment

// DedupWindowSize caps how many completed message IDs a dedupWindow
// remembers before evicting the oldest (spec.md §4.D "de-dup window of the
// last 1000 message IDs delivered").
const DedupWindowSize = 1000

// dedupWindow is a fixed-capacity FIFO set of recently delivered message
// IDs, so a retransmitted final fragment of an already-delivered message is
// recognized and dropped instead of starting a new reassembly.
type dedupWindow struct {
	order []uint32
	seen  map[uint32]struct{}
}

func newDedupWindow() *dedupWindow {
	return &dedupWindow{seen: make(map[uint32]struct{})}
}

func (d *dedupWindow) Contains(msgID uint32) bool {
	_, ok := d.seen[msgID]
	return ok
}

func (d *dedupWindow) Add(msgID uint32) {
	if d.Contains(msgID) {
		return
	}
	d.order = append(d.order, msgID)
	d.seen[msgID] = struct{}{}
	if len(d.order) > DedupWindowSize {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
}
