/* SPDX-License-Identifier: MIT
 *
 * Reordering, dedup, retransmission, buffer saturation, handshake
 * idempotence, and unreliable-bypass scenarios, in the table-driven style
 * of this fork's deleted device/peer_test.go.
 */

package transport

import (
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type testEndpoint string

func (e testEndpoint) String() string { return string(e) }
func (e testEndpoint) IP() net.IP     { return net.ParseIP("198.51.100.1") }

type recordingListener struct {
	received []*Packet
	connected []*Peer
}

func (l *recordingListener) OnPacketReceived(peer *Peer, pkt *Packet) {
	l.received = append(l.received, pkt)
}
func (l *recordingListener) OnPeerConnected(peer *Peer) {
	l.connected = append(l.connected, peer)
}
func (l *recordingListener) OnPeerDisconnected(peer *Peer, reason DisconnectReason) {}

func newTestPeer(t *testing.T, listener Listener) *Peer {
	t.Helper()
	return NewPeer(testEndpoint("198.51.100.1:9000"), listener, NewLogger(LogLevelSilent, ""))
}

func reliablePacket(seq uint32) *Packet {
	return &Packet{Kind: KindData, Reliable: true, Sequence: seq}
}

func TestIngestReordersToSequence(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := &recordingListener{}
	p := newTestPeer(t, l)
	defer p.Dispose()

	order := []uint32{2, 0, 1, 4, 3}
	for _, seq := range order {
		if _, err := p.Ingest(reliablePacket(seq)); err != nil {
			t.Fatal(err)
		}
	}

	if len(l.received) != 5 {
		t.Fatalf("expected 5 deliveries, got %d", len(l.received))
	}
	for i, pkt := range l.received {
		if pkt.Sequence != uint32(i) {
			t.Fatalf("delivery %d: got sequence %d, want %d", i, pkt.Sequence, i)
		}
	}
}

func TestIngestDeduplicates(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := &recordingListener{}
	p := newTestPeer(t, l)
	defer p.Dispose()

	for _, seq := range []uint32{0, 0, 1, 1, 2} {
		if _, err := p.Ingest(reliablePacket(seq)); err != nil {
			t.Fatal(err)
		}
	}

	if len(l.received) != 3 {
		t.Fatalf("expected 3 deliveries after dedup, got %d", len(l.received))
	}
	for i, pkt := range l.received {
		if pkt.Sequence != uint32(i) {
			t.Fatalf("delivery %d: got sequence %d", i, pkt.Sequence)
		}
	}
}

func TestTickResendsTimingAndRetriesExhausted(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := &recordingListener{}
	p := newTestPeer(t, l)
	defer p.Dispose()

	pkt := &Packet{Kind: KindData, Reliable: true}
	if err := p.Enqueue(pkt); err != nil {
		t.Fatal(err)
	}
	p.DrainSend() // simulate the first transmission

	// Anchor t0 to the deadline Enqueue actually set, rather than a second
	// call to time.Now(), so this test has no wall-clock-drift flakiness.
	t0 := pkt.ResendDeadline.Add(-ResendTime)

	p.TickResends(t0)
	if len(p.DrainSend()) != 0 {
		t.Fatal("unexpected resend at t=0")
	}
	p.TickResends(t0.Add(199 * time.Millisecond))
	if len(p.DrainSend()) != 0 {
		t.Fatal("unexpected resend at t=199ms")
	}
	if p.TickResends(t0.Add(200 * time.Millisecond)) {
		t.Fatal("should not be exhausted on first resend")
	}
	if len(p.DrainSend()) != 1 {
		t.Fatal("expected exactly one resend at t=200ms")
	}

	if p.TickResends(t0.Add(700 * time.Millisecond)) {
		t.Fatal("should not be exhausted on second resend")
	}
	if len(p.DrainSend()) != 1 {
		t.Fatal("expected exactly one resend at t=700ms")
	}

	exhausted := false
	now := t0.Add(1200 * time.Millisecond)
	for i := 0; i < 19; i++ {
		if p.TickResends(now) {
			exhausted = true
		}
		p.DrainSend()
		now = now.Add(RetryResendTime)
	}
	if !exhausted {
		t.Fatal("expected retries exhausted after 19 further ticks past the second resend")
	}
}

func TestReceiveBufferSaturation(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := &recordingListener{}
	p := newTestPeer(t, l)
	defer p.Dispose()

	for seq := uint32(1); seq <= 30; seq++ {
		accepted, err := p.Ingest(reliablePacket(seq))
		if err != nil {
			t.Fatal(err)
		}
		if !accepted {
			t.Fatalf("sequence %d: expected accepted", seq)
		}
	}
	if p.receiveBuffer.Len() != 30 {
		t.Fatalf("expected buffer to hold 30 entries, got %d", p.receiveBuffer.Len())
	}

	accepted, err := p.Ingest(reliablePacket(31))
	if err != nil {
		t.Fatal(err)
	}
	if accepted {
		t.Fatal("expected sequence 31 to be rejected while buffer is saturated")
	}

	accepted, err = p.Ingest(reliablePacket(0))
	if err != nil {
		t.Fatal(err)
	}
	if !accepted {
		t.Fatal("expected sequence 0 to drain the buffer")
	}
	if p.receiveBuffer.Len() != 0 {
		t.Fatalf("expected buffer empty after drain, got %d entries", p.receiveBuffer.Len())
	}
	if len(l.received) != 31 {
		t.Fatalf("expected 31 deliveries (0..30), got %d", len(l.received))
	}
}

func TestAcceptLoginIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := &recordingListener{}
	p := newTestPeer(t, l)
	defer p.Dispose()

	if err := p.AcceptLogin(); err != nil {
		t.Fatal(err)
	}
	if err := p.AcceptLogin(); err != nil {
		t.Fatal(err)
	}
	if !p.Connected() {
		t.Fatal("expected connected after accept_login")
	}

	accepts := 0
	for _, pkt := range p.sendQueue.Drain() {
		if pkt.Kind == KindAccept {
			accepts++
		}
	}
	if accepts != 1 {
		t.Fatalf("expected exactly one Accept packet enqueued, got %d", accepts)
	}
}

func TestUnreliableBypassInterleaving(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := &recordingListener{}
	p := newTestPeer(t, l)
	defer p.Dispose()

	u1 := &Packet{Kind: KindData, Reliable: false, Payload: []byte("U1")}
	u2 := &Packet{Kind: KindData, Reliable: false, Payload: []byte("U2")}

	mustIngest := func(pkt *Packet) {
		t.Helper()
		if _, err := p.Ingest(pkt); err != nil {
			t.Fatal(err)
		}
	}

	mustIngest(u1)
	mustIngest(reliablePacket(1))
	mustIngest(u2)
	mustIngest(reliablePacket(0))

	if len(l.received) != 4 {
		t.Fatalf("expected 4 deliveries, got %d", len(l.received))
	}
	if string(l.received[0].Payload) != "U1" {
		t.Fatalf("delivery 0: want U1, got %q", l.received[0].Payload)
	}
	if string(l.received[1].Payload) != "U2" {
		t.Fatalf("delivery 1: want U2, got %q", l.received[1].Payload)
	}
	if l.received[2].Sequence != 0 || l.received[3].Sequence != 1 {
		t.Fatalf("expected reliable deliveries in order 0,1, got %d,%d", l.received[2].Sequence, l.received[3].Sequence)
	}
}

func TestEnqueueMediaGroupRecoversOneDroppedShard(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := &recordingListener{}
	p := newTestPeer(t, l)
	defer p.Dispose()

	// Loss rate of 2% lands in audiofec's XOR tier (above NoFECMaxLossRate,
	// at or below XORFECMaxLossRate).
	p.stats.txPackets.Store(100)
	p.stats.retries.Store(2)

	frames := [][]byte{[]byte("one"), []byte("two"), []byte("three"), []byte("four")}
	if err := p.EnqueueMediaGroup(frames); err != nil {
		t.Fatal(err)
	}

	shards := p.DrainSend()
	if len(shards) != len(frames)+1 {
		t.Fatalf("expected %d shards (data + 1 XOR parity), got %d", len(frames)+1, len(shards))
	}

	// Drop the shard for "two" and deliver the rest back through Ingest,
	// simulating the network losing exactly one packet in the group.
	for _, pkt := range shards {
		if pkt.FEC.ShardIndex == 1 {
			continue
		}
		if _, err := p.Ingest(pkt); err != nil {
			t.Fatal(err)
		}
	}

	if len(l.received) != len(frames) {
		t.Fatalf("expected %d reconstructed frames, got %d", len(frames), len(l.received))
	}
	for i, want := range frames {
		if string(l.received[i].Payload) != string(want) {
			t.Fatalf("frame %d: got %q, want %q", i, l.received[i].Payload, want)
		}
	}
}

func TestEnqueueMediaGroupBelowThresholdSendsBare(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := &recordingListener{}
	p := newTestPeer(t, l)
	defer p.Dispose()

	frames := [][]byte{[]byte("a"), []byte("b")}
	if err := p.EnqueueMediaGroup(frames); err != nil {
		t.Fatal(err)
	}

	shards := p.DrainSend()
	if len(shards) != len(frames) {
		t.Fatalf("expected %d bare packets at zero measured loss, got %d", len(frames), len(shards))
	}
	for _, pkt := range shards {
		if pkt.FEC != nil {
			t.Fatal("expected no FECMeta below the FEC threshold")
		}
	}
}

func TestDisposeIsIdempotentAndFailsSubsequentOps(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := &recordingListener{}
	p := newTestPeer(t, l)

	p.Dispose()
	p.Dispose() // must not panic

	if err := p.Enqueue(&Packet{}); err != ErrUsedAfterDisposal {
		t.Fatalf("expected ErrUsedAfterDisposal, got %v", err)
	}
	if _, err := p.Ingest(&Packet{}); err != ErrUsedAfterDisposal {
		t.Fatalf("expected ErrUsedAfterDisposal, got %v", err)
	}
}
