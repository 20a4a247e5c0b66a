//go:build linux

/* SPDX-License-Identifier: MIT
 *
 * Adapted from WireGuard LLC's conn/conn_linux.go. The original implemented
 * a full sticky-socket source-address cache for efficient roaming; this
 * layer already rewrites a peer's endpoint explicitly on id match
 * (transport.Peer.SetEndpoint), so only the SO_REUSEPORT control hook is
 * kept, letting a restarted host rebind its port immediately instead of
 * waiting out TIME_WAIT.
 */

package conn

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func listenReusable(network string, port int) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), network, fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
