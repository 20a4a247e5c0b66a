/* SPDX-License-Identifier: MIT
 *
 * Adapted from WireGuard LLC's device/device.go. Host plays the role
 * Device played there: owner of the peer table, the bind, and the
 * start/stop lifecycle. Generalized from one noise-protocol tunnel
 * interface to many independent reliability-layer peers, and from
 * Device's fixed worker-pool encryption/decryption queues to an
 * ingress/egress/tick loop trio.
 */

package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pvct/transport/ratelimiter"
)

// Bind is the datagram channel a Host reads from and writes to. cmd/pvctd
// adapts a conn.Bind to it (conn declares its own Endpoint type).
type Bind interface {
	Receive(buf []byte) (n int, ep Endpoint, err error)
	Send(buf []byte, ep Endpoint) error
	Close() error
}

// Codec turns a Packet into bytes for the wire and back. Wire encoding of
// packet payloads is out of scope for this layer; Host only needs a codec
// to exist, not to define one.
type Codec interface {
	Encode(pkt *Packet) ([]byte, error)
	Decode(data []byte) (*Packet, error)
}

// AcceptPolicy decides whether a Login from a new remote should be
// admitted. A nil AcceptPolicy on Host accepts everyone.
type AcceptPolicy interface {
	ShouldAccept(remote Endpoint, login *Packet) bool
}

// AcceptPolicyFunc adapts a function to an AcceptPolicy.
type AcceptPolicyFunc func(remote Endpoint, login *Packet) bool

func (f AcceptPolicyFunc) ShouldAccept(remote Endpoint, login *Packet) bool {
	return f(remote, login)
}

// Config holds the host-tunable knobs not fixed by spec constants.
type Config struct {
	LivenessWindow time.Duration
	TickInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.LivenessWindow <= 0 {
		c.LivenessWindow = DefaultLivenessWindow
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}

// Host is the transport: it owns every Peer, keyed by both endpoint and
// id, and drives ingress demux, egress drain, and the tick loop (resends
// and liveness eviction).
type Host struct {
	mu         sync.RWMutex
	byEndpoint map[string]*Peer
	byID       map[int64]*Peer

	bind    Bind
	codec   Codec
	app     Listener
	log     Logger
	metrics *Metrics
	limiter *ratelimiter.Limiter
	policy  AcceptPolicy
	cfg     Config

	closed AtomicBool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Listener = (*Host)(nil)

// NewHost constructs a Host. app receives application-facing events
// (data packets, connect, disconnect); metrics and limiter may be nil to
// opt out of Prometheus instrumentation and Login rate limiting
// respectively; policy nil accepts every Login.
func NewHost(bind Bind, codec Codec, app Listener, log Logger, metrics *Metrics, limiter *ratelimiter.Limiter, policy AcceptPolicy, cfg Config) *Host {
	return &Host{
		byEndpoint: make(map[string]*Peer),
		byID:       make(map[int64]*Peer),
		bind:       bind,
		codec:      codec,
		app:        app,
		log:        log,
		metrics:    metrics,
		limiter:    limiter,
		policy:     policy,
		cfg:        cfg.withDefaults(),
	}
}

// Serve starts the ingress reader, egress/tick loop, and blocks until ctx
// is done or Close is called.
func (h *Host) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	h.wg.Add(2)
	go h.runIngress(ctx)
	go h.runTicker(ctx)

	<-ctx.Done()
	h.wg.Wait()
	return nil
}

// Close stops the Host and disposes every peer.
func (h *Host) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	if h.cancel != nil {
		h.cancel()
	}
	if h.limiter != nil {
		h.limiter.Close()
	}

	h.mu.Lock()
	peers := make([]*Peer, 0, len(h.byID))
	for _, p := range h.byID {
		peers = append(peers, p)
	}
	h.byID = make(map[int64]*Peer)
	h.byEndpoint = make(map[string]*Peer)
	h.mu.Unlock()

	for _, p := range peers {
		p.Dispose()
		if h.app != nil {
			h.app.OnPeerDisconnected(p, ReasonClosed)
		}
	}
	return h.bind.Close()
}

// Connect creates a Peer for remote and enqueues the Login that begins the
// handshake. The caller's app.OnPeerConnected fires once the remote's
// Accept arrives.
func (h *Host) Connect(remote Endpoint) (*Peer, error) {
	if h.closed.Get() {
		return nil, ErrUsedAfterDisposal
	}

	h.mu.Lock()
	if len(h.byID) >= MaxPeers {
		h.mu.Unlock()
		return nil, ErrTooManyPeers
	}
	peer := NewPeer(remote, h, h.log)
	h.byID[peer.ID()] = peer
	h.byEndpoint[remote.String()] = peer
	h.mu.Unlock()

	login := &Packet{Kind: KindLogin, Reliable: true, PeerID: peer.ID(), PeerKey: peer.Key()}
	if err := peer.Enqueue(login); err != nil {
		return nil, err
	}
	return peer, nil
}

func (h *Host) lookupByEndpoint(ep Endpoint) *Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byEndpoint[ep.String()]
}

func (h *Host) lookupByID(id int64) *Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byID[id]
}

// reindexEndpoint moves peer's byEndpoint entry to its current endpoint,
// supporting NAT rebinding and roaming.
func (h *Host) reindexEndpoint(peer *Peer, oldEndpoint Endpoint, newEndpoint Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if oldEndpoint != nil {
		if cur, ok := h.byEndpoint[oldEndpoint.String()]; ok && cur == peer {
			delete(h.byEndpoint, oldEndpoint.String())
		}
	}
	h.byEndpoint[newEndpoint.String()] = peer
}

func (h *Host) runIngress(ctx context.Context) {
	defer h.wg.Done()
	buf := make([]byte, 65535)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, ep, err := h.bind.Receive(buf)
		if err != nil {
			if h.closed.Get() || ctx.Err() != nil {
				return
			}
			h.log.Errorf("ingress receive: %v", err)
			continue
		}
		h.handleDatagram(append([]byte(nil), buf[:n]...), ep)
	}
}

// handleDatagram demuxes one inbound datagram: exact endpoint match, then
// id-based rewrite, then treat as a potential Login, else drop. A codec
// error drops the datagram and keeps the peer; a single malformed
// datagram should not cost a peer its connection.
func (h *Host) handleDatagram(data []byte, src Endpoint) {
	pkt, err := h.codec.Decode(data)
	if err != nil {
		h.log.Debugf("dropping undecodable datagram from %s: %v", src, err)
		return
	}

	peer := h.lookupByEndpoint(src)
	if peer == nil && pkt.PeerID != NoID {
		if byID := h.lookupByID(pkt.PeerID); byID != nil {
			old := byID.Endpoint()
			byID.SetEndpoint(src)
			h.reindexEndpoint(byID, old, src)
			peer = byID
		}
	}

	if peer == nil {
		if pkt.Kind == KindLogin {
			h.handleLogin(src, pkt)
		}
		return
	}

	accepted, err := peer.Ingest(pkt)
	if err != nil {
		h.log.Debugf("ingest from %s: %v", src, err)
		return
	}
	if !accepted {
		h.evict(peer, ReasonBufferOverflow)
	}
}

func (h *Host) handleLogin(src Endpoint, login *Packet) {
	if h.limiter != nil && !h.limiter.Allow(src.IP()) {
		h.log.Debugf("dropping login from %s: rate limited", src)
		return
	}

	h.mu.Lock()
	if len(h.byID) >= MaxPeers {
		h.mu.Unlock()
		h.sendDirect(&Packet{Kind: KindDeny}, src)
		return
	}
	peer := NewPeer(src, h, h.log)
	h.byID[peer.ID()] = peer
	h.byEndpoint[src.String()] = peer
	h.mu.Unlock()

	if h.policy != nil && !h.policy.ShouldAccept(src, login) {
		h.log.Infof("denying login from %s", src)
		h.evict(peer, ReasonDenied)
		h.sendDirect(&Packet{Kind: KindDeny}, src)
		return
	}

	if err := peer.AcceptLogin(); err != nil {
		h.log.Errorf("accept_login for %s: %v", src, err)
	}
}

func (h *Host) sendDirect(pkt *Packet, dst Endpoint) {
	data, err := h.codec.Encode(pkt)
	if err != nil {
		h.log.Errorf("encoding %s for %s: %v", pkt.Kind, dst, err)
		return
	}
	if err := h.bind.Send(data, dst); err != nil {
		h.log.Errorf("sending %s to %s: %v", pkt.Kind, dst, err)
	}
}

func (h *Host) evict(peer *Peer, reason DisconnectReason) {
	h.mu.Lock()
	delete(h.byID, peer.ID())
	if ep := peer.Endpoint(); ep != nil {
		if cur, ok := h.byEndpoint[ep.String()]; ok && cur == peer {
			delete(h.byEndpoint, ep.String())
		}
	}
	h.mu.Unlock()

	peer.Dispose()
	if h.metrics != nil {
		h.metrics.PeersEvicted.WithLabelValues(reason.String()).Inc()
	}
	if h.app != nil {
		h.app.OnPeerDisconnected(peer, reason)
	}
}

func (h *Host) runTicker(ctx context.Context) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.tickOnce(now)
			h.egressOnce()
		}
	}
}

func (h *Host) snapshotPeers() []*Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	peers := make([]*Peer, 0, len(h.byID))
	for _, p := range h.byID {
		peers = append(peers, p)
	}
	return peers
}

// tickOnce drives resends and liveness eviction across every peer.
func (h *Host) tickOnce(now time.Time) {
	peers := h.snapshotPeers()
	connected := 0
	occupancy := 0
	for _, p := range peers {
		if p.TickResends(now) {
			h.evict(p, ReasonRetriesExhausted)
			continue
		}
		if now.Sub(p.LastActive()) > h.cfg.LivenessWindow {
			h.evict(p, ReasonTimeout)
			continue
		}
		if p.Connected() {
			connected++
		}
		occupancy += p.receiveBuffer.Len()
	}
	if h.metrics != nil {
		h.metrics.PeersConnected.Set(float64(connected))
		h.metrics.ReorderOccupancy.Set(float64(occupancy))
	}
}

// egressOnce drains every peer's send queue and transmits via bind.
// Resent packets were already re-appended to the send queue by
// TickResends, so this loop does not distinguish fresh from
// retransmitted packets.
func (h *Host) egressOnce() {
	peers := h.snapshotPeers()
	retried := 0
	for _, p := range peers {
		ep := p.Endpoint()
		for _, pkt := range p.DrainSend() {
			if pkt.Retries > 0 {
				retried++
			}
			data, err := h.codec.Encode(pkt)
			if err != nil {
				h.log.Errorf("encoding %s for %s: %v", pkt.Kind, ep, err)
				continue
			}
			if err := h.bind.Send(data, ep); err != nil {
				h.log.Errorf("sending %s to %s: %v", pkt.Kind, ep, err)
			}
		}
	}
	if h.metrics != nil && retried > 0 {
		h.metrics.PacketsRetried.Add(float64(retried))
	}
}

// OnPacketReceived implements Listener: it is the internal listener every
// Peer this Host creates is given. Handshake packet kinds translate to
// lifecycle calls here; everything else is forwarded to the application
// listener supplied to NewHost.
func (h *Host) OnPacketReceived(peer *Peer, pkt *Packet) {
	switch pkt.Kind {
	case KindAck:
		peer.Acknowledge(pkt.AckSequence)
	case KindAccept:
		peer.ConfirmAccepted()
	case KindDeny:
		h.evict(peer, ReasonDenied)
	case KindLogin:
		// A Login from an already-known peer (e.g. a retried handshake
		// before its first Accept was received) is just accepted again;
		// AcceptLogin is idempotent.
		if err := peer.AcceptLogin(); err != nil {
			h.log.Errorf("re-accept_login for %s: %v", peer, err)
		}
	default:
		if h.app != nil {
			h.app.OnPacketReceived(peer, pkt)
		}
	}
}

func (h *Host) OnPeerConnected(peer *Peer) {
	if h.app != nil {
		h.app.OnPeerConnected(peer)
	}
}

func (h *Host) OnPeerDisconnected(peer *Peer, reason DisconnectReason) {
	if h.app != nil {
		h.app.OnPeerDisconnected(peer, reason)
	}
}

// NoIPEndpoint adapts an Endpoint for tests/tools that have no real socket
// source IP (e.g. an in-process pipe); Allow-based rate limiting treats it
// as a single shared bucket.
type NoIPEndpoint string

func (e NoIPEndpoint) String() string { return string(e) }
func (e NoIPEndpoint) IP() net.IP     { return net.IPv4zero }
