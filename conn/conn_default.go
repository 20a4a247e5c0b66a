//go:build !linux

/* Non-Linux fallback: plain net.ListenUDP, no SO_REUSEPORT. */

package conn

import "net"

func listenReusable(network string, port int) (*net.UDPConn, error) {
	return net.ListenUDP(network, &net.UDPAddr{Port: port})
}
