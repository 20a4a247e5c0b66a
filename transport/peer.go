/* SPDX-License-Identifier: MIT
 *
 * Adapted from WireGuard LLC's device/peer.go: same start/stop and
 * roaming-endpoint shape, generalized from a noise-protocol session to a
 * sliding-window reliability and ordering state machine.
 */

package transport

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pvct/transport/audiofec"
)

// Endpoint is the remote network address a Peer sends to. The core never
// interprets it beyond identity, String(), and the source IP used for
// Login rate limiting; conn.Endpoint satisfies it.
type Endpoint interface {
	String() string
	IP() net.IP
}

// Listener receives the events a Peer's reliability/ordering state machine
// produces. Application code supplies one at Peer construction.
type Listener interface {
	// OnPacketReceived fires for every in-order reliable packet, exactly
	// once per sequence, and for every unreliable packet, once per
	// arrival.
	OnPacketReceived(peer *Peer, pkt *Packet)

	// OnPeerConnected fires when the peer transitions to connected.
	OnPeerConnected(peer *Peer)

	// OnPeerDisconnected fires on eviction, with the reason.
	OnPeerDisconnected(peer *Peer, reason DisconnectReason)
}

// DisconnectReason names why a peer was evicted.
type DisconnectReason int

const (
	ReasonClosed DisconnectReason = iota
	ReasonTimeout
	ReasonUnreachable
	ReasonDenied
	ReasonBufferOverflow
	ReasonRetriesExhausted
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonUnreachable:
		return "unreachable"
	case ReasonDenied:
		return "denied"
	case ReasonBufferOverflow:
		return "buffer-overflow"
	case ReasonRetriesExhausted:
		return "retries-exhausted"
	default:
		return "closed"
	}
}

// Peer holds the per-remote-endpoint reliability and ordering state: a
// send queue, a reliability queue of unacknowledged reliable packets
// awaiting resend, and a reorder buffer for out-of-order arrivals. It is
// safe for concurrent use by an ingress reader, an application producer,
// a tick goroutine, and an egress drainer.
type Peer struct {
	mu       sync.RWMutex // guards endpoint and id/key (rarely written)
	endpoint Endpoint
	id       int64
	key      int16

	connected AtomicBool
	disposed  AtomicBool

	sendSequence     uint32 // atomic
	expectedSequence uint32 // atomic; mutated only inside ingestMu
	ingestMu         sync.Mutex

	sendQueue        *packetQueue
	reliabilityQueue *orderedPacketSet
	receiveBuffer    *orderedPacketSet

	fecGroupSeq uint32 // atomic
	fecIn       *fecReassembler

	lastActive atomic.Value // time.Time

	ctx    context.Context
	cancel context.CancelFunc

	listener Listener
	log      Logger
	stats    Stats
}

// NewPeer constructs a Peer for the given endpoint with a freshly
// generated id and key.
func NewPeer(endpoint Endpoint, listener Listener, log Logger) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		endpoint:         endpoint,
		id:               generateID(),
		key:              generateKey(),
		sendQueue:        &packetQueue{},
		reliabilityQueue: newOrderedPacketSet(),
		receiveBuffer:    newOrderedPacketSet(),
		fecIn:            newFECReassembler(),
		ctx:              ctx,
		cancel:           cancel,
		listener:         listener,
		log:              log,
	}
	p.lastActive.Store(time.Now())
	return p
}

func generateID() int64 {
	for {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			continue
		}
		v := int64(binary.BigEndian.Uint64(buf[:]))
		if v != NoID {
			return v
		}
	}
}

func generateKey() int16 {
	for {
		var buf [2]byte
		if _, err := rand.Read(buf[:]); err != nil {
			continue
		}
		v := int16(binary.BigEndian.Uint16(buf[:]))
		if v != NoKey {
			return v
		}
	}
}

func (p *Peer) ID() int64   { return p.id }
func (p *Peer) Key() int16  { return p.key }
func (p *Peer) Connected() bool { return p.connected.Get() }
func (p *Peer) Disposed() bool  { return p.disposed.Get() }
func (p *Peer) Context() context.Context { return p.ctx }
func (p *Peer) Stats() Stats { return p.stats.snapshot() }

// LossRate reports this peer's current loss-rate estimate, for callers
// picking an audiofec protection tier via audiofec.SelectAlgorithm.
func (p *Peer) LossRate() float64 { return p.stats.snapshot().LossRate() }

func (p *Peer) Endpoint() Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoint
}

// SetEndpoint rewrites the peer's remote address, tolerating NAT
// rebinding and roaming: the Transport host calls this when a datagram
// carrying this peer's id arrives from a new source.
func (p *Peer) SetEndpoint(endpoint Endpoint) {
	p.mu.Lock()
	p.endpoint = endpoint
	p.mu.Unlock()
}

func (p *Peer) LastActive() time.Time {
	return p.lastActive.Load().(time.Time)
}

func (p *Peer) String() string {
	return fmt.Sprintf("peer(id=%d key=%d)", p.id, p.key)
}

// Enqueue appends pkt to the send queue, assigning it a sequence number and
// a resend deadline first if it is reliable. Never blocks.
func (p *Peer) Enqueue(pkt *Packet) error {
	if p.disposed.Get() {
		return ErrUsedAfterDisposal
	}
	if pkt.Reliable {
		seq := atomic.AddUint32(&p.sendSequence, 1) - 1
		pkt.Sequence = seq
		pkt.ResendDeadline = time.Now().Add(ResendTime)
		p.reliabilityQueue.InsertIfAbsent(seq, pkt)
	}
	p.sendQueue.Push(pkt)
	p.stats.txPackets.Add(1)
	return nil
}

// DrainSend removes and returns every packet queued for transmission. The
// Host's egress loop is the sole caller.
func (p *Peer) DrainSend() []*Packet {
	return p.sendQueue.Drain()
}

// EnqueueMediaGroup sends a batch of unreliable media frames, protecting
// them with the audiofec tier this peer's current LossRate calls for.
// Below audiofec.None's threshold, or for a batch too small to shard
// usefully, frames go out as bare unreliable packets exactly as Enqueue
// would send them one at a time; otherwise the batch is FEC-encoded into
// TotalShards packets carrying a shared FECMeta, any DataShards of which
// let the far peer's Ingest reconstruct the originals.
func (p *Peer) EnqueueMediaGroup(frames [][]byte) error {
	if p.disposed.Get() {
		return ErrUsedAfterDisposal
	}
	if len(frames) == 0 {
		return nil
	}

	algo := audiofec.SelectAlgorithm(p.LossRate())
	if algo == audiofec.None || len(frames) < 2 {
		for _, f := range frames {
			if err := p.Enqueue(&Packet{Kind: KindData, Reliable: false, Payload: f}); err != nil {
				return err
			}
		}
		return nil
	}

	// RaptorQ pads every symbol to a fixed size; XOR and Reed-Solomon
	// derive shard sizes from the payloads themselves and ignore it.
	symbolSize := 0
	for _, f := range frames {
		if len(f) > symbolSize {
			symbolSize = len(f)
		}
	}

	protector, err := audiofec.New(algo, len(frames), uint16(symbolSize))
	if err != nil {
		return err
	}
	sources := make([]audiofec.Packet, len(frames))
	for i, f := range frames {
		sources[i] = audiofec.Packet(f)
	}
	shards, err := protector.Encode(sources)
	if err != nil {
		return err
	}
	if len(shards) != protector.TotalShards() {
		return fmt.Errorf("transport: %s protector encoded %d shards, want %d", protector.Algorithm(), len(shards), protector.TotalShards())
	}

	groupID := atomic.AddUint32(&p.fecGroupSeq, 1)
	for i, shard := range shards {
		pkt := &Packet{
			Kind:     KindData,
			Reliable: false,
			Payload:  []byte(shard),
			FEC: &FECMeta{
				GroupID:     groupID,
				ShardIndex:  uint16(i),
				DataShards:  uint16(protector.NumDataShards()),
				TotalShards: uint16(protector.TotalShards()),
				Algo:        algo,
				SymbolSize:  uint16(symbolSize),
			},
		}
		if err := p.Enqueue(pkt); err != nil {
			return err
		}
	}
	return nil
}

// Ingest processes one inbound packet: deduplicates and orders reliable
// packets, passes unreliable packets straight through, and reports whether
// the packet was accepted. A false return means the reorder buffer was
// already saturated with packets other than the one expected next. The
// Host may treat that as license to reset or evict the peer.
func (p *Peer) Ingest(pkt *Packet) (bool, error) {
	if p.disposed.Get() {
		return false, ErrUsedAfterDisposal
	}
	p.lastActive.Store(time.Now())

	if !pkt.Reliable {
		if pkt.FEC != nil {
			frames, err := p.fecIn.Accept(pkt)
			if err != nil {
				p.log.Debugf("%s: fec group %d reconstruction failed: %v", p, pkt.FEC.GroupID, err)
				return true, nil
			}
			for _, f := range frames {
				p.deliver(&Packet{Kind: KindData, Reliable: false, Payload: f})
			}
			return true, nil
		}
		p.deliver(pkt)
		return true, nil
	}

	p.ingestMu.Lock()
	defer p.ingestMu.Unlock()

	expected := atomic.LoadUint32(&p.expectedSequence)
	if p.receiveBuffer.Len() >= MaxRecvBufferSize && pkt.Sequence != expected {
		return false, nil
	}

	p.receiveBuffer.InsertIfAbsent(pkt.Sequence, pkt)
	p.enqueueAckLocked(pkt.Sequence)
	p.drainLocked()
	return true, nil
}

// enqueueAckLocked appends an Ack referencing seq to the send queue. Acks
// are themselves unreliable: acknowledging an Ack would regress forever.
func (p *Peer) enqueueAckLocked(seq uint32) {
	ack := &Packet{Kind: KindAck, Reliable: false, PeerID: p.id, AckSequence: seq}
	p.sendQueue.Push(ack)
}

// drainLocked repeatedly scans the reorder buffer for the entry at
// expected_sequence, delivering and advancing past it, and silently drops
// anything already behind expected_sequence. It loops until a full scan
// makes no progress, so that more than one newly-deliverable sequence in
// the same call gets drained in one pass instead of waiting for the next
// Ingest to flush the rest.
func (p *Peer) drainLocked() {
	for {
		progressed := false
		for _, pkt := range p.receiveBuffer.Snapshot() {
			expected := atomic.LoadUint32(&p.expectedSequence)
			switch {
			case pkt.Sequence == expected:
				p.receiveBuffer.Remove(pkt.Sequence)
				atomic.AddUint32(&p.expectedSequence, 1)
				p.deliver(pkt)
				progressed = true
			case seqBefore(pkt.Sequence, expected):
				p.receiveBuffer.Remove(pkt.Sequence)
			}
		}
		if !progressed {
			return
		}
	}
}

// seqBefore reports whether a precedes b under plain numeric comparison.
// This assumes a single peer's session never spans the ~4 billion reliable
// packets needed to wrap sendSequence; true wraparound-aware comparison is
// not implemented.
func seqBefore(a, b uint32) bool {
	return a < b
}

func (p *Peer) deliver(pkt *Packet) {
	p.stats.rxPackets.Add(1)
	if p.listener != nil {
		p.listener.OnPacketReceived(p, pkt)
	}
}

// TickResends re-appends every reliability_queue entry whose resend
// deadline has passed onto the send queue, bumping its retry count and
// deadline. It reports true if any entry reached MaxSendRetries; the Host
// treats that as a terminal failure for the peer.
func (p *Peer) TickResends(now time.Time) (retriesExhausted bool) {
	if p.disposed.Get() {
		return false
	}
	for _, pkt := range p.reliabilityQueue.Snapshot() {
		if pkt.ResendDeadline.After(now) {
			continue
		}
		pkt.ResendDeadline = now.Add(RetryResendTime)
		pkt.Retries++
		p.sendQueue.Push(pkt.Clone())
		p.stats.retries.Add(1)
		if pkt.Retries >= MaxSendRetries {
			retriesExhausted = true
		}
	}
	return retriesExhausted
}

// Acknowledge removes the reliability_queue entry at sequence, if present.
// An unknown sequence is a silent no-op: ok reports whether anything was
// removed.
func (p *Peer) Acknowledge(sequence uint32) (ok bool, err error) {
	if p.disposed.Get() {
		return false, ErrUsedAfterDisposal
	}
	_, ok = p.reliabilityQueue.Remove(sequence)
	if ok {
		p.stats.recordAck(sequence)
	}
	return ok, nil
}

// AcceptLogin transitions the peer to connected and enqueues an Accept
// packet carrying its id/key. Idempotent: a peer that is already connected
// does nothing on a second call.
func (p *Peer) AcceptLogin() error {
	if p.disposed.Get() {
		return ErrUsedAfterDisposal
	}
	if p.connected.Swap(true) {
		return nil
	}
	accept := &Packet{Kind: KindAccept, Reliable: true, PeerID: p.id, PeerKey: p.key}
	if err := p.Enqueue(accept); err != nil {
		return err
	}
	if p.listener != nil {
		p.listener.OnPeerConnected(p)
	}
	return nil
}

// ConfirmAccepted marks the peer connected on receipt of the remote's
// Accept, without enqueuing a reply Accept of its own. Unlike AcceptLogin,
// which is for the side that received the Login and owes a response, this
// is for the side that sent it. Idempotent.
func (p *Peer) ConfirmAccepted() error {
	if p.disposed.Get() {
		return ErrUsedAfterDisposal
	}
	if p.connected.Swap(true) {
		return nil
	}
	if p.listener != nil {
		p.listener.OnPeerConnected(p)
	}
	return nil
}

// Reset empties the send queue, reliability queue, and reorder buffer and
// zeroes both sequence counters. connected, id, key, and endpoint are left
// untouched.
func (p *Peer) Reset() error {
	if p.disposed.Get() {
		return ErrUsedAfterDisposal
	}
	p.sendQueue.Clear()
	p.reliabilityQueue.Clear()
	p.receiveBuffer.Clear()
	atomic.StoreUint32(&p.sendSequence, 0)
	atomic.StoreUint32(&p.expectedSequence, 0)
	return nil
}

// Dispose fires the peer's cancellation signal, empties every queue, marks
// it disconnected, and drops the listener. Afterwards Enqueue,
// EnqueueMediaGroup, Ingest, Acknowledge, AcceptLogin, ConfirmAccepted,
// and Reset fail with ErrUsedAfterDisposal; TickResends reports false and
// DrainSend returns nothing, neither with an error. Idempotent.
func (p *Peer) Dispose() {
	if p.disposed.Swap(true) {
		return
	}
	p.cancel()
	p.sendQueue.Clear()
	p.reliabilityQueue.Clear()
	p.receiveBuffer.Clear()
	p.connected.Set(false)
	p.mu.Lock()
	p.listener = nil
	p.mu.Unlock()
}
