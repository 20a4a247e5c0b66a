/* SPDX-License-Identifier: MIT
 *
 * Adapted from WireGuard LLC's conn/bind_std_test.go: same close-then-use
 * shape, extended with a loopback round trip since this Bind has a single
 * Receive method to exercise instead of a slice of ReceiveFuncs.
 */

package conn

import (
	"strconv"
	"testing"
)

func TestStdNetBindLoopbackRoundTrip(t *testing.T) {
	server := NewStdNetBind().(*StdNetBind)
	port, err := server.Open(0)
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	client := NewStdNetBind().(*StdNetBind)
	if _, err := client.Open(0); err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	dst, err := ParseEndpoint("127.0.0.1:" + strconv.Itoa(int(port)))
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Send([]byte("hello"), dst); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 16)
	n, from, err := server.Receive(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q, want %q", buf[:n], "hello")
	}
	if from.IP() == nil {
		t.Fatal("expected a source IP on the received endpoint")
	}
}

func TestStdNetBindReceiveAfterClose(t *testing.T) {
	bind := NewStdNetBind().(*StdNetBind)
	if _, err := bind.Open(0); err != nil {
		t.Fatal(err)
	}
	bind.Close()

	buf := make([]byte, 1)
	if _, _, err := bind.Receive(buf); err == nil {
		t.Fatal("expected an error receiving on a closed bind")
	}
}

func TestStdNetBindDoubleOpenFails(t *testing.T) {
	bind := NewStdNetBind().(*StdNetBind)
	if _, err := bind.Open(0); err != nil {
		t.Fatal(err)
	}
	defer bind.Close()
	if _, err := bind.Open(0); err != ErrBindAlreadyOpen {
		t.Fatalf("expected ErrBindAlreadyOpen, got %v", err)
	}
}

