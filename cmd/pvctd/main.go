/* SPDX-License-Identifier: MIT
 *
 * Adapted from WireGuard LLC's main.go: flag parsing feeding a bind and a
 * long-running host, collapsed from a TUN-backed interface process to a
 * standalone reliability-layer daemon.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pvct/transport/conn"
	"github.com/pvct/transport/flags"
	"github.com/pvct/transport/ratelimiter"
	"github.com/pvct/transport/transport"
)

const version = "0.1.0"

// bindAdapter lets a conn.Bind serve as a transport.Bind: conn and transport
// each declare their own Endpoint interface, so the Receive/Send signatures
// differ even though the Endpoint method sets are identical.
type bindAdapter struct{ conn.Bind }

func (b bindAdapter) Receive(buf []byte) (int, transport.Endpoint, error) {
	n, ep, err := b.Bind.Receive(buf)
	return n, ep, err
}

func (b bindAdapter) Send(buf []byte, ep transport.Endpoint) error {
	return b.Bind.Send(buf, ep)
}

type noopListener struct{ log transport.Logger }

func (l noopListener) OnPacketReceived(peer *transport.Peer, pkt *transport.Packet) {
	l.log.Debugf("%s: packet kind=%s seq=%d", peer, pkt.Kind, pkt.Sequence)
}

func (l noopListener) OnPeerConnected(peer *transport.Peer) {
	l.log.Infof("%s: connected", peer)
}

func (l noopListener) OnPeerDisconnected(peer *transport.Peer, reason transport.DisconnectReason) {
	l.log.Infof("%s: disconnected (%s)", peer, reason)
}

func main() {
	opts := flags.NewOptions()
	if err := flags.Parse(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if opts.ShowVersion {
		fmt.Println(version)
		return
	}

	level := transport.LogLevelInfo
	switch opts.LogLevel {
	case "silent":
		level = transport.LogLevelSilent
	case "error":
		level = transport.LogLevelError
	case "debug":
		level = transport.LogLevelDebug
	}
	log := transport.NewLogger(level, "pvctd")

	bind := conn.NewStdNetBind()
	actualPort, err := bind.Open(opts.ListenPort)
	if err != nil {
		log.Errorf("binding UDP socket: %v", err)
		os.Exit(1)
	}
	log.Infof("listening on UDP port %d", actualPort)

	metrics := transport.NewMetrics(prometheus.NewRegistry())
	limiter := ratelimiter.New()

	host := transport.NewHost(
		bindAdapter{bind},
		transport.BinaryCodec{},
		noopListener{log},
		log,
		metrics,
		limiter,
		nil, // accept every login
		transport.Config{
			LivenessWindow: opts.LivenessWindow,
			TickInterval:   opts.TickInterval,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Infof("shutting down")
		host.Close()
	}()

	if err := host.Serve(ctx); err != nil {
		log.Errorf("serve: %v", err)
		os.Exit(1)
	}
}
