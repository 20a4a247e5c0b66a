/* SPDX-License-Identifier: MIT
 *
 * Adapted from this fork's fec/xor.go: same single-parity XOR scheme,
 * against audiofec's own Protector interface (fec.go).
 */

package audiofec

import (
	"errors"
	"fmt"
)

// xorProtector recovers at most one missing packet out of dataShards by
// XOR-ing every other packet in the group against a single parity shard.
type xorProtector struct {
	dataShards int
}

// NewXORProtector protects dataShards source packets with one parity shard.
func NewXORProtector(dataShards int) (Protector, error) {
	if dataShards <= 0 {
		return nil, errors.New("audiofec: XOR dataShards must be positive")
	}
	return &xorProtector{dataShards: dataShards}, nil
}

func (x *xorProtector) Algorithm() FECAlgorithmType { return XOR }
func (x *xorProtector) NumDataShards() int          { return x.dataShards }
func (x *xorProtector) NumParityShards() int        { return 1 }
func (x *xorProtector) TotalShards() int            { return x.dataShards + 1 }

func (x *xorProtector) Encode(sourcePackets []Packet) ([]Packet, error) {
	if len(sourcePackets) != x.dataShards {
		return nil, fmt.Errorf("audiofec: XOR encode wants %d source packets, got %d", x.dataShards, len(sourcePackets))
	}

	maxLength := 0
	for _, p := range sourcePackets {
		if p == nil {
			return nil, errors.New("audiofec: XOR encode got a nil source packet")
		}
		if len(p) > maxLength {
			maxLength = len(p)
		}
	}

	parity := make(Packet, maxLength)
	padded := make(Packet, maxLength)
	for _, p := range sourcePackets {
		copy(padded, p)
		for i := len(p); i < maxLength; i++ {
			padded[i] = 0
		}
		for i := 0; i < maxLength; i++ {
			parity[i] ^= padded[i]
		}
	}

	out := make([]Packet, x.dataShards+1)
	copy(out, sourcePackets)
	out[x.dataShards] = parity
	return out, nil
}

func (x *xorProtector) Decode(received []Packet) ([]Packet, error) {
	if len(received) != x.dataShards+1 {
		return nil, fmt.Errorf("audiofec: XOR decode wants %d shards, got %d", x.dataShards+1, len(received))
	}

	var missing []int
	maxLength := 0
	for i, p := range received {
		if p == nil {
			missing = append(missing, i)
			continue
		}
		if len(p) > maxLength {
			maxLength = len(p)
		}
	}

	if len(missing) == 0 {
		return received[:x.dataShards], nil
	}
	if len(missing) > 1 {
		return nil, fmt.Errorf("audiofec: XOR can recover at most 1 missing shard, got %d", len(missing))
	}

	missingIndex := missing[0]
	reconstructed := make(Packet, maxLength)
	padded := make(Packet, maxLength)
	for i, p := range received {
		if i == missingIndex {
			continue
		}
		copy(padded, p)
		for j := len(p); j < maxLength; j++ {
			padded[j] = 0
		}
		for j := 0; j < maxLength; j++ {
			reconstructed[j] ^= padded[j]
		}
	}

	out := make([]Packet, x.dataShards)
	for i := 0; i < x.dataShards; i++ {
		if i == missingIndex {
			out[i] = reconstructed
		} else {
			out[i] = received[i]
		}
	}
	return out, nil
}
