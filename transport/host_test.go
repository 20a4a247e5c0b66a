/* SPDX-License-Identifier: MIT
 *
 * End-to-end Host scenarios over an in-memory Bind, covering the
 * ingress/egress/tick loop trio.
 */

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// memEndpoint is a loopback-style in-memory address: each distinct string
// routes to a distinct memBind instance via the shared fabric.
type memEndpoint string

func (e memEndpoint) String() string { return string(e) }
func (e memEndpoint) IP() net.IP     { return net.ParseIP("127.0.0.1") }

// memFabric wires named memBinds together so Send on one delivers into the
// other's inbox, without touching a real socket.
type memFabric struct {
	mu    sync.Mutex
	binds map[string]*memBind
}

func newMemFabric() *memFabric {
	return &memFabric{binds: make(map[string]*memBind)}
}

func (f *memFabric) register(name string, b *memBind) {
	f.mu.Lock()
	f.binds[name] = b
	f.mu.Unlock()
}

type memDatagram struct {
	data []byte
	from Endpoint
}

type memBind struct {
	name   string
	fabric *memFabric
	inbox  chan memDatagram
	closed chan struct{}
	once   sync.Once
}

func newMemBind(fabric *memFabric, name string) *memBind {
	b := &memBind{
		name:   name,
		fabric: fabric,
		inbox:  make(chan memDatagram, 256),
		closed: make(chan struct{}),
	}
	fabric.register(name, b)
	return b
}

func (b *memBind) Receive(buf []byte) (int, Endpoint, error) {
	select {
	case dg := <-b.inbox:
		n := copy(buf, dg.data)
		return n, dg.from, nil
	case <-b.closed:
		return 0, nil, net.ErrClosed
	}
}

func (b *memBind) Send(data []byte, ep Endpoint) error {
	b.fabric.mu.Lock()
	dst, ok := b.fabric.binds[ep.String()]
	b.fabric.mu.Unlock()
	if !ok {
		return nil // simulates an unreachable destination: datagram vanishes
	}
	cp := append([]byte(nil), data...)
	select {
	case dst.inbox <- memDatagram{data: cp, from: memEndpoint(b.name)}:
	default:
	}
	return nil
}

func (b *memBind) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

type captureListener struct {
	mu          sync.Mutex
	connected   []string
	disconnects []DisconnectReason
	data        []*Packet
}

func (l *captureListener) OnPacketReceived(peer *Peer, pkt *Packet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data = append(l.data, pkt)
}

func (l *captureListener) OnPeerConnected(peer *Peer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = append(l.connected, peer.String())
}

func (l *captureListener) OnPeerDisconnected(peer *Peer, reason DisconnectReason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnects = append(l.disconnects, reason)
}

func (l *captureListener) connectedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.connected)
}

func newTestHost(t *testing.T, bind Bind, listener Listener) *Host {
	t.Helper()
	log := NewLogger(LogLevelSilent, "")
	return NewHost(bind, BinaryCodec{}, listener, log, nil, nil, nil, Config{
		LivenessWindow: 500 * time.Millisecond,
		TickInterval:   5 * time.Millisecond,
	})
}

// runAndStop starts host.Serve in the background and returns a stop func
// that cancels it and blocks until Serve has actually returned, so a test's
// deferred goleak.VerifyNone never races a still-unwinding goroutine.
func runAndStop(host *Host, ctx context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		host.Serve(ctx)
		close(done)
	}()
	return func() {
		cancel()
		host.Close()
		<-done
	}
}

func TestHostHandshakeConnectsBothSides(t *testing.T) {
	defer goleak.VerifyNone(t)

	fabric := newMemFabric()
	serverBind := newMemBind(fabric, "server")
	clientBind := newMemBind(fabric, "client")

	serverListener := &captureListener{}
	clientListener := &captureListener{}

	server := newTestHost(t, serverBind, serverListener)
	client := newTestHost(t, clientBind, clientListener)

	ctx, cancel := context.WithCancel(context.Background())
	stopServer := runAndStop(server, ctx, cancel)
	stopClient := runAndStop(client, ctx, cancel)
	defer stopServer()
	defer stopClient()

	if _, err := client.Connect(memEndpoint("server")); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for serverListener.connectedCount() == 0 || clientListener.connectedCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("handshake did not complete: server=%d client=%d",
				serverListener.connectedCount(), clientListener.connectedCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHostDeniesOverCapacity(t *testing.T) {
	defer goleak.VerifyNone(t)

	fabric := newMemFabric()
	serverBind := newMemBind(fabric, "server")
	clientBind := newMemBind(fabric, "client")

	server := newTestHost(t, serverBind, &captureListener{})
	clientListener := &captureListener{}
	client := newTestHost(t, clientBind, clientListener)

	ctx, cancel := context.WithCancel(context.Background())
	defer runAndStop(server, ctx, cancel)()
	defer runAndStop(client, ctx, cancel)()

	// Exhaust the server's peer table directly with placeholder entries
	// rather than spinning up MaxPeers real clients. Each still goes
	// through NewPeer so its ctx/cancel/queues are real: Host.Close (via
	// runAndStop's deferred teardown) calls Dispose on every entry in
	// byID, and a zero-value Peer's nil cancel would panic there.
	server.mu.Lock()
	for i := int64(0); i < MaxPeers; i++ {
		placeholder := NewPeer(memEndpoint(fmt.Sprintf("placeholder-%d", i)), nil, server.log)
		server.byID[i] = placeholder
	}
	server.mu.Unlock()

	if _, err := client.Connect(memEndpoint("server")); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	if clientListener.connectedCount() != 0 {
		t.Fatal("expected no connection once the server's peer table is full")
	}
}
