package transport

import (
	"sync"

	"github.com/google/btree"
)

// seqItem is the btree.Item backing orderedPacketSet: ordered by sequence
// alone, so Ascend always visits the lowest pending sequence first.
type seqItem struct {
	seq uint32
	pkt *Packet
}

func (a *seqItem) Less(than btree.Item) bool {
	return a.seq < than.(*seqItem).seq
}

// orderedPacketSet backs both the reorder buffer and the reliability
// queue: a concurrency-safe, sequence-ordered map of pending packets.
// google/btree keeps entries in sequence order, so the drain loop (look
// for the next expected sequence) and tick_resends (scan for expired
// deadlines) both walk a full Snapshot starting from the lowest sequence;
// a duplicate insert never overwrites an existing entry.
type orderedPacketSet struct {
	mu   sync.Mutex
	tree *btree.BTree
}

func newOrderedPacketSet() *orderedPacketSet {
	return &orderedPacketSet{tree: btree.New(32)}
}

// InsertIfAbsent inserts pkt keyed by seq unless an entry already exists.
// Returns true if the insert happened.
func (s *orderedPacketSet) InsertIfAbsent(seq uint32, pkt *Packet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree.Has(&seqItem{seq: seq}) {
		return false
	}
	s.tree.ReplaceOrInsert(&seqItem{seq: seq, pkt: pkt})
	return true
}

// Remove deletes the entry at seq if present, returning it.
func (s *orderedPacketSet) Remove(seq uint32) (*Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.tree.Delete(&seqItem{seq: seq})
	if item == nil {
		return nil, false
	}
	return item.(*seqItem).pkt, true
}

func (s *orderedPacketSet) Has(seq uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Has(&seqItem{seq: seq})
}

func (s *orderedPacketSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len()
}

// Snapshot returns every pending packet, ascending by sequence. Callers
// that need to remove entries while iterating collect first, then act:
// btree's own Ascend does not tolerate mutation mid-walk.
func (s *orderedPacketSet) Snapshot() []*Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Packet, 0, s.tree.Len())
	s.tree.Ascend(func(item btree.Item) bool {
		out = append(out, item.(*seqItem).pkt)
		return true
	})
	return out
}

func (s *orderedPacketSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = btree.New(32)
}

// packetQueue is a multi-producer, single-consumer FIFO backed by a
// mutex-guarded slice: Peer.Enqueue, Peer.TickResends, and Peer.Ingest (for
// Ack packets) are producers; the Host's egress drainer is the sole
// consumer. No operation blocks.
type packetQueue struct {
	mu    sync.Mutex
	items []*Packet
}

func (q *packetQueue) Push(pkt *Packet) {
	q.mu.Lock()
	q.items = append(q.items, pkt)
	q.mu.Unlock()
}

// Drain removes and returns every queued packet in FIFO order.
func (q *packetQueue) Drain() []*Packet {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

func (q *packetQueue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
