/* SPDX-License-Identifier: MIT
 *
 * Adapted from WireGuard LLC's conn/conn.go: the Bind/Endpoint split is kept,
 * narrowed to what a connectionless datagram transport needs: a single
 * dual-stack socket and an Endpoint that can report the source IP for
 * ratelimiter lookups (transport.Endpoint requires it). Mark/BindToInterface
 * and the separate ipv4/ipv6 listeners served WireGuard's policy-routing and
 * kernel-interface needs, which this transport has no equivalent use for.
 */

// Package conn implements the host's UDP datagram transport.
package conn

import (
	"errors"
	"net"
	"strings"
)

// A Bind listens on a single UDP port for both IPv4 and IPv6 traffic.
type Bind interface {
	// Open binds to port, or an ephemeral port if port is 0, and reports
	// the actual port bound.
	Open(port uint16) (actualPort uint16, err error)

	// Receive reads one datagram into buf, reporting its length and
	// source Endpoint.
	Receive(buf []byte) (n int, ep Endpoint, err error)

	// Send writes buf to ep.
	Send(buf []byte, ep Endpoint) error

	// Close closes the Bind.
	Close() error
}

// Endpoint identifies a remote UDP peer address. It satisfies
// transport.Endpoint.
type Endpoint interface {
	String() string
	IP() net.IP
}

func parseEndpoint(s string) (*net.UDPAddr, error) {
	host, _, err := net.SplitHostPort(s)
	if err != nil {
		return nil, err
	}
	if i := strings.LastIndexByte(host, '%'); i > 0 && strings.IndexByte(host, ':') >= 0 {
		host = host[:i]
	}
	if ip := net.ParseIP(host); ip == nil {
		return nil, errors.New("failed to parse IP address: " + host)
	}

	addr, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		return nil, err
	}
	if ip4 := addr.IP.To4(); ip4 != nil {
		addr.IP = ip4
	}
	return addr, nil
}

// ParseEndpoint parses a "host:port" string into an Endpoint suitable for
// Bind.Send.
func ParseEndpoint(s string) (Endpoint, error) {
	addr, err := parseEndpoint(s)
	if err != nil {
		return nil, err
	}
	return (*StdNetEndpoint)(addr), nil
}
