/* SPDX-License-Identifier: MIT
 *
 * Adapted from this fork's fec/reedsolomon.go, against audiofec's own
 * Protector interface (fec.go).
 */

package audiofec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

type rsProtector struct {
	enc          reedsolomon.Encoder
	dataShards   int
	parityShards int
}

// NewReedSolomonProtector protects dataShards source packets with
// parityShards redundant shards, recovering up to parityShards losses.
func NewReedSolomonProtector(dataShards, parityShards int) (Protector, error) {
	enc, err := reedsolomon.New(dataShards, parityShards, reedsolomon.WithAutoGoroutines(1500))
	if err != nil {
		return nil, fmt.Errorf("audiofec: building Reed-Solomon encoder: %w", err)
	}
	return &rsProtector{enc: enc, dataShards: dataShards, parityShards: parityShards}, nil
}

func (rs *rsProtector) Algorithm() FECAlgorithmType { return ReedSolomon }
func (rs *rsProtector) NumDataShards() int          { return rs.dataShards }
func (rs *rsProtector) NumParityShards() int        { return rs.parityShards }
func (rs *rsProtector) TotalShards() int            { return rs.dataShards + rs.parityShards }

func (rs *rsProtector) Encode(sourcePackets []Packet) ([]Packet, error) {
	if len(sourcePackets) != rs.dataShards {
		return nil, fmt.Errorf("audiofec: RS encode wants %d source packets, got %d", rs.dataShards, len(sourcePackets))
	}

	shards := make([][]byte, rs.dataShards+rs.parityShards)
	maxLength := 0
	for i, p := range sourcePackets {
		if p == nil {
			return nil, fmt.Errorf("audiofec: RS encode got a nil source packet at %d", i)
		}
		shards[i] = p
		if len(p) > maxLength {
			maxLength = len(p)
		}
	}
	for i := 0; i < rs.dataShards; i++ {
		if len(shards[i]) < maxLength {
			padded := make([]byte, maxLength)
			copy(padded, shards[i])
			shards[i] = padded
		}
	}
	for i := rs.dataShards; i < rs.dataShards+rs.parityShards; i++ {
		shards[i] = make([]byte, maxLength)
	}

	if err := rs.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("audiofec: RS encode failed: %w", err)
	}

	out := make([]Packet, len(shards))
	for i, s := range shards {
		out[i] = Packet(s)
	}
	return out, nil
}

func (rs *rsProtector) Decode(received []Packet) ([]Packet, error) {
	if len(received) != rs.dataShards+rs.parityShards {
		return nil, fmt.Errorf("audiofec: RS decode wants %d shards, got %d", rs.dataShards+rs.parityShards, len(received))
	}

	shards := make([][]byte, len(received))
	missing := 0
	maxLength := 0
	for i, p := range received {
		shards[i] = p
		if p == nil {
			missing++
		} else if len(p) > maxLength {
			maxLength = len(p)
		}
	}

	if missing > rs.parityShards {
		return nil, fmt.Errorf("audiofec: RS decode missing %d shards, can recover at most %d", missing, rs.parityShards)
	}
	if missing == 0 {
		return received[:rs.dataShards], nil
	}

	for i, s := range shards {
		if s != nil && len(s) < maxLength {
			padded := make([]byte, maxLength)
			copy(padded, s)
			shards[i] = padded
		}
	}

	if err := rs.enc.ReconstructData(shards); err != nil {
		ok, _ := rs.enc.Verify(shards)
		if !ok {
			if err := rs.enc.Reconstruct(shards); err != nil {
				return nil, fmt.Errorf("audiofec: RS reconstruction failed: %w", err)
			}
		}
	}

	out := make([]Packet, rs.dataShards)
	for i := 0; i < rs.dataShards; i++ {
		if shards[i] == nil {
			return nil, fmt.Errorf("audiofec: RS data shard %d still nil after reconstruction", i)
		}
		out[i] = Packet(shards[i])
	}
	return out, nil
}
