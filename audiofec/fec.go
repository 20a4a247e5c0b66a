/* SPDX-License-Identifier: MIT
 *
 * Grounded on this fork's fec/xor.go, fec/reedsolomon.go, and
 * fec/raptorq.go: those three implementations reference an
 * FECProtector/FECAlgorithmType/Packet interface that was never checked in.
 * This file is that interface, authored from the call shape the three
 * implementations already assume (Algorithm/NumDataShards/NumParityShards/
 * TotalShards/Encode/Decode).
 */

// Package audiofec applies forward error correction to unreliable media
// packets before they leave a Peer's send queue, tiered by that peer's
// measured loss rate (see SelectAlgorithm in selector.go). It never touches
// reliable control packets: those already get correctness from
// transport's resend/ack machinery.
package audiofec

import "fmt"

// FECAlgorithmType names a forward-error-correction scheme.
type FECAlgorithmType int

const (
	None FECAlgorithmType = iota
	XOR
	ReedSolomon
	RaptorQ
)

func (a FECAlgorithmType) String() string {
	switch a {
	case XOR:
		return "xor"
	case ReedSolomon:
		return "reed-solomon"
	case RaptorQ:
		return "raptorq"
	default:
		return "none"
	}
}

// Packet is one shard/symbol: a source packet, a parity shard, or a repair
// symbol, depending on position and algorithm.
type Packet []byte

// Protector encodes a group of source packets into a larger group
// (source + redundancy) and reverses that given a possibly-incomplete,
// possibly-nil-padded set of received shards.
type Protector interface {
	Algorithm() FECAlgorithmType
	NumDataShards() int
	NumParityShards() int
	TotalShards() int

	// Encode takes exactly NumDataShards() source packets and returns
	// TotalShards() packets: the sources followed by redundancy.
	Encode(sourcePackets []Packet) ([]Packet, error)

	// Decode takes a slice of length TotalShards(), with missing shards
	// represented as nil, and returns the NumDataShards() source packets.
	Decode(receivedPackets []Packet) ([]Packet, error)
}

// ErrNoProtector is returned by New when algo is None: callers should send
// the group unprotected rather than construct a Protector.
var ErrNoProtector = fmt.Errorf("audiofec: no protector for algorithm %q", None)

// New builds the Protector for algo. dataShards is the group size audiofec
// is protecting; symbolSize is only consulted for RaptorQ, where packets
// are padded to a fixed symbol size.
func New(algo FECAlgorithmType, dataShards int, symbolSize uint16) (Protector, error) {
	switch algo {
	case XOR:
		return NewXORProtector(dataShards)
	case ReedSolomon:
		return NewReedSolomonProtector(dataShards, parityShardsFor(dataShards))
	case RaptorQ:
		return NewRaptorQProtector(dataShards, symbolSize)
	default:
		return nil, ErrNoProtector
	}
}

// parityShardsFor picks a redundancy ratio for Reed-Solomon proportional to
// group size, capped so total shards stay well under a UDP datagram's
// realistic fragmentation budget.
func parityShardsFor(dataShards int) int {
	p := dataShards / 2
	if p < 1 {
		p = 1
	}
	if p > 10 {
		p = 10
	}
	return p
}
