/* SPDX-License-Identifier: MIT
 *
 * Adapted from WireGuard LLC's conn/bind_std.go, collapsed from separate
 * ipv4/ipv6 listeners to one dual-stack socket: this transport has no
 * per-family blackhole/mark policy to keep separate.
 */

package conn

import (
	"errors"
	"net"
)

var (
	ErrBindAlreadyOpen   = errors.New("bind is already open")
	ErrWrongEndpointType = errors.New("endpoint type mismatch")
)

// StdNetBind implements Bind with the standard library's net package and,
// on Linux, SO_REUSEPORT via listenReusable (conn_linux.go) so a restarted
// host can rebind its port before the kernel has released prior sockets.
type StdNetBind struct {
	conn *net.UDPConn
}

func NewStdNetBind() Bind { return &StdNetBind{} }

// StdNetEndpoint is a net.UDPAddr satisfying Endpoint.
type StdNetEndpoint net.UDPAddr

var (
	_ Bind     = (*StdNetBind)(nil)
	_ Endpoint = (*StdNetEndpoint)(nil)
)

func (e *StdNetEndpoint) String() string {
	return (*net.UDPAddr)(e).String()
}

func (e *StdNetEndpoint) IP() net.IP {
	return (*net.UDPAddr)(e).IP
}

func (bind *StdNetBind) Open(port uint16) (uint16, error) {
	if bind.conn != nil {
		return 0, ErrBindAlreadyOpen
	}
	conn, err := listenReusable("udp", int(port))
	if err != nil {
		return 0, err
	}
	bind.conn = conn

	uaddr, err := net.ResolveUDPAddr("udp", conn.LocalAddr().String())
	if err != nil {
		conn.Close()
		bind.conn = nil
		return 0, err
	}
	return uint16(uaddr.Port), nil
}

func (bind *StdNetBind) Close() error {
	if bind.conn == nil {
		return nil
	}
	err := bind.conn.Close()
	bind.conn = nil
	return err
}

func (bind *StdNetBind) Receive(buf []byte) (int, Endpoint, error) {
	if bind.conn == nil {
		return 0, nil, net.ErrClosed
	}
	n, addr, err := bind.conn.ReadFromUDP(buf)
	if addr == nil {
		return n, nil, err
	}
	return n, (*StdNetEndpoint)(addr), err
}

func (bind *StdNetBind) Send(buf []byte, ep Endpoint) error {
	if bind.conn == nil {
		return net.ErrClosed
	}
	nend, ok := ep.(*StdNetEndpoint)
	if !ok {
		return ErrWrongEndpointType
	}
	_, err := bind.conn.WriteToUDP(buf, (*net.UDPAddr)(nend))
	return err
}
